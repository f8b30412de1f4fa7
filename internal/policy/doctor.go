package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/accessanalyzer"
	"github.com/aws/aws-sdk-go/service/accessanalyzer/accessanalyzeriface"
	"github.com/hashicorp/go-hclog"
)

// Validation modes.
const (
	ModeLocal          = "local"
	ModeAccessAnalyzer = "access-analyzer"
)

// Finding severities.
const (
	SeverityError      = "error"
	SeverityWarning    = "warning"
	SeveritySuggestion = "suggestion"
)

// Policy types accepted by Validate.
const (
	TypeIdentity = accessanalyzer.PolicyTypeIdentityPolicy
	TypeResource = accessanalyzer.PolicyTypeResourcePolicy
)

type Finding struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Why      string `json:"why"`
	Hint     string `json:"hint,omitempty"`
}

type Response struct {
	Mode     string    `json:"mode"`
	Findings []Finding `json:"findings"`
}

// InputError is returned for requests that cannot be validated at all.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return e.Msg
}

// Doctor lints policy documents locally and, when an analyzer client is present, through
// IAM Access Analyzer.
type Doctor struct {
	analyzer accessanalyzeriface.AccessAnalyzerAPI
	logger   hclog.Logger
}

// NewDoctor creates a Doctor. A nil analyzer means local rules only.
func NewDoctor(analyzer accessanalyzeriface.AccessAnalyzerAPI, logger hclog.Logger) *Doctor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Doctor{analyzer: analyzer, logger: logger}
}

// Validate never fails on document content: malformed JSON is reported as an error finding.
// Only an unknown policy type is rejected with *InputError.
func (d *Doctor) Validate(ctx context.Context, policyJSON, policyType string) (Response, error) {
	if policyType == "" {
		policyType = TypeIdentity
	}
	if policyType != TypeIdentity && policyType != TypeResource {
		return Response{}, &InputError{Msg: fmt.Sprintf("policy_type must be %s or %s, got %q", TypeIdentity, TypeResource, policyType)}
	}

	if !json.Valid([]byte(policyJSON)) {
		var probe interface{}
		err := json.Unmarshal([]byte(policyJSON), &probe)
		return Response{Mode: ModeLocal, Findings: []Finding{{
			Severity: SeverityError,
			Message:  "Invalid JSON.",
			Why:      "IAM policies must be valid JSON to be evaluated by AWS.",
			Hint:     errString(err),
		}}}, nil
	}

	doc, err := ParseDocument(policyJSON)
	if err != nil {
		return Response{Mode: ModeLocal, Findings: []Finding{{
			Severity: SeverityError,
			Message:  "Policy document has an unexpected shape.",
			Why:      "IAM expects Statement fields to be strings, lists of strings or objects.",
			Hint:     err.Error(),
		}}}, nil
	}

	if d.analyzer == nil {
		return Response{Mode: ModeLocal, Findings: LocalFindings(doc)}, nil
	}

	findings, err := d.analyze(ctx, policyJSON, policyType)
	if err != nil {
		d.logger.Warn("access analyzer validation failed, using local rules", "error", err)
		return Response{Mode: ModeLocal, Findings: LocalFindings(doc)}, nil
	}
	return Response{Mode: ModeAccessAnalyzer, Findings: findings}, nil
}

func (d *Doctor) analyze(ctx context.Context, policyJSON, policyType string) ([]Finding, error) {
	var findings []Finding
	input := &accessanalyzer.ValidatePolicyInput{
		PolicyDocument: aws.String(policyJSON),
		PolicyType:     aws.String(policyType),
	}
	err := d.analyzer.ValidatePolicyPagesWithContext(ctx, input, func(page *accessanalyzer.ValidatePolicyOutput, _ bool) bool {
		for _, f := range page.Findings {
			findings = append(findings, Finding{
				Severity: mapFindingType(aws.StringValue(f.FindingType)),
				Message:  firstNonEmpty(aws.StringValue(f.FindingDetails), aws.StringValue(f.IssueCode), "Finding"),
				Why:      "Reported by IAM Access Analyzer policy validation.",
				Hint:     aws.StringValue(f.LearnMoreLink),
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	if len(findings) == 0 {
		findings = []Finding{{
			Severity: SeveritySuggestion,
			Message:  "No findings returned by Access Analyzer.",
			Why:      "The policy passed basic validation checks.",
			Hint:     "Still review for least privilege and add conditions.",
		}}
	}
	return findings, nil
}

func mapFindingType(t string) string {
	t = strings.ToLower(t)
	switch {
	case strings.Contains(t, "error"):
		return SeverityError
	case strings.Contains(t, "warning"):
		return SeverityWarning
	default:
		return SeveritySuggestion
	}
}

// LocalFindings applies the built-in heuristics to doc.
func LocalFindings(doc *Document) []Finding {
	var findings []Finding
	if doc.Version != "2012-10-17" && doc.Version != "2008-10-17" {
		findings = append(findings, Finding{
			Severity: SeverityWarning,
			Message:  "Policy Version is missing or unusual.",
			Why:      "AWS IAM evaluates policies based on the version; using a standard version avoids surprises.",
			Hint:     `Set "Version": "2012-10-17".`,
		})
	}

	if len(doc.Statement) == 0 {
		return []Finding{{
			Severity: SeverityError,
			Message:  "Policy has no Statement.",
			Why:      "IAM policies must contain at least one statement to be meaningful.",
			Hint:     `Add a "Statement": [...] array.`,
		}}
	}

	for _, s := range doc.Statement {
		findings = append(findings, statementFindings(s)...)
	}
	if findings == nil {
		findings = []Finding{}
	}
	return findings
}

func statementFindings(s Statement) []Finding {
	var findings []Finding
	allow := s.Effect == "Allow"

	if s.Effect != "Allow" && s.Effect != "Deny" {
		findings = append(findings, Finding{
			Severity: SeverityError,
			Message:  "Statement Effect must be Allow or Deny.",
			Why:      "Invalid effects can make policies fail validation or be ignored.",
			Hint:     "Use Effect: Allow or Deny.",
		})
	}
	if s.Action.Contains("*") {
		findings = append(findings, Finding{
			Severity: SeverityWarning,
			Message:  "Statement uses Action '*'.",
			Why:      "Wildcard actions often grant unintended permissions across services.",
			Hint:     "Replace '*' with specific actions and add conditions where possible.",
		})
	}
	if s.Resource.Contains("*") {
		findings = append(findings, Finding{
			Severity: SeverityWarning,
			Message:  "Statement uses Resource '*'.",
			Why:      "Resource wildcards can unintentionally expand access beyond intended targets.",
			Hint:     "Scope Resource to ARNs (and use conditions like aws:ResourceTag if appropriate).",
		})
	}
	if allow && s.Principal.IsPublic() {
		findings = append(findings, Finding{
			Severity: SeverityWarning,
			Message:  "Resource policy allows Principal '*'.",
			Why:      "Public access is a common cause of data exposure.",
			Hint:     "Scope Principal to specific AWS accounts/roles, or require auth via conditions.",
		})
	}
	if allow && len(s.Condition) == 0 {
		findings = append(findings, Finding{
			Severity: SeveritySuggestion,
			Message:  "Consider adding conditions (MFA, source IP, tags).",
			Why:      "Conditions reduce blast radius even if identities are compromised.",
			Hint:     "Add Condition with aws:MultiFactorAuthPresent, aws:SourceIp, aws:RequestTag, etc.",
		})
	}
	return findings
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
