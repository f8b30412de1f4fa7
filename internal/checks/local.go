package checks

import (
	"context"

	"github.com/scan-io-git/cloudsentinel/internal/model"
)

const (
	DomainLoggingMonitoring = "Logging & Monitoring"
	DomainReadiness         = "Readiness"
)

// localEvidence tags every offline result so it can't be mistaken for a live reading.
func localEvidence(kv ...interface{}) map[string]interface{} {
	ev := map[string]interface{}{"mode": "local"}
	for i := 0; i+1 < len(kv); i += 2 {
		ev[kv[i].(string)] = kv[i+1]
	}
	return ev
}

// fixed returns an offline check whose outcome never depends on the timeline.
func fixed(def Definition, status model.Status, recommendation string, kv ...interface{}) Check[Timeline] {
	return New(def, func(context.Context, Timeline, string) (Outcome, error) {
		return Outcome{Status: status, Evidence: localEvidence(kv...), Recommendation: recommendation}, nil
	})
}

// signal returns an offline check that warns when eventName appears in the window.
func signal(def Definition, eventName, recommendation string) Check[Timeline] {
	return New(def, func(_ context.Context, tl Timeline, _ string) (Outcome, error) {
		seen := tl.Seen(eventName)
		status := model.StatusPass
		if seen {
			status = model.StatusWarn
		}
		return Outcome{
			Status:         status,
			Evidence:       localEvidence("signal", eventName, "seen", seen),
			Recommendation: recommendation,
		}, nil
	})
}

func auditTrailCoverage(_ context.Context, tl Timeline, _ string) (Outcome, error) {
	return Outcome{
		Status:         model.StatusPass,
		Evidence:       localEvidence("store", tl.Backend),
		Recommendation: "Capture management events and alert on sensitive actions (policy changes, public access).",
	}, nil
}

func alertingBaseline(_ context.Context, tl Timeline, _ string) (Outcome, error) {
	status := model.StatusFail
	if len(tl.Events) > 0 {
		status = model.StatusWarn
	}
	return Outcome{
		Status:         status,
		Evidence:       localEvidence("events_last_7d", len(tl.Events)),
		Recommendation: "Start with a baseline: policy attachments, access key creation, and public ACL attempts.",
	}, nil
}

// LocalRegistry returns the offline checks. They read only the timeline window.
func LocalRegistry() *Registry[Timeline] {
	return mustRegistry(
		fixed(rootMFADef, model.StatusWarn,
			"Enable MFA on the root account and lock root credentials away.",
			"note", "offline lab: assumes break-glass exists, MFA not proven"),
		fixed(passwordPolicyDef, model.StatusPass,
			"Prefer SSO/STS; if passwords exist, require >=12 chars and symbols+numbers.",
			"baseline", "strong"),
		signal(oldAccessKeysDef, "CreateAccessKey",
			"Rotate/remove long-lived keys; prefer short-lived credentials (SSO/STS)."),
		signal(adminAttachmentsDef, "AttachUserPolicy",
			"Minimize broad admin policies; use least privilege and scoped roles with conditions."),
		New(Definition{
			ID:       "log.cloudtrail_enabled",
			Title:    "Audit trail coverage (timeline store)",
			Domain:   DomainLoggingMonitoring,
			Severity: model.SeverityHigh,
			Weight:   10,
		}, auditTrailCoverage),
		New(Definition{
			ID:       "log.alerting_baseline",
			Title:    "Detection baseline for high-risk events",
			Domain:   DomainLoggingMonitoring,
			Severity: model.SeverityMedium,
			Weight:   10,
		}, alertingBaseline),
		fixed(openSensitivePortsDef, model.StatusWarn,
			"Eliminate direct internet exposure on admin/database ports; use VPN/bastion/SSM.",
			"note", "offline lab: no VPC inventory"),
		signal(Definition{
			ID:       "data.s3_public_access_block",
			Title:    "Public access guardrails for object storage",
			Domain:   DomainDataProtection,
			Severity: model.SeverityHigh,
			Weight:   12,
		}, "PutBucketAcl",
			"Enable public access blocks; require explicit principals; review ACL usage."),
		fixed(Definition{
			ID:       "data.encryption_at_rest",
			Title:    "Encryption at rest for data stores",
			Domain:   DomainDataProtection,
			Severity: model.SeverityMedium,
			Weight:   8,
		}, model.StatusPass,
			"Use encryption by default and rotate keys where appropriate.",
			"baseline", "enabled"),
		fixed(Definition{
			ID:       "ready.ticketing_workflow",
			Title:    "Remediation workflow defined",
			Domain:   DomainReadiness,
			Severity: model.SeverityLow,
			Weight:   5,
		}, model.StatusPass,
			"Track findings in tickets with SLA by severity; verify fixes via scan diffs.",
			"note", "sample workflow"),
	)
}
