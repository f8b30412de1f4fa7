// Package report renders stored snapshots for export.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scan-io-git/cloudsentinel/internal/model"
)

const (
	FormatJSON  = "json"
	FormatSARIF = "sarif"

	toolName = "cloudsentinel"
	toolURI  = "https://github.com/scan-io-git/cloudsentinel"
)

// Formats lists the accepted export formats.
var Formats = []string{FormatJSON, FormatSARIF}

// Extension returns the file extension used for a format.
func Extension(format string) string {
	if format == FormatSARIF {
		return ".sarif"
	}
	return ".json"
}

// Write renders snapshot in the requested format.
func Write(w io.Writer, snapshot *model.Snapshot, format, version string) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	case FormatSARIF:
		report, err := ToSARIF(snapshot, version)
		if err != nil {
			return err
		}
		return report.PrettyWrite(w)
	default:
		return fmt.Errorf("unsupported format %q (expected one of %s)", format, strings.Join(Formats, ", "))
	}
}

// ToSARIF builds a SARIF 2.1.0 report with one rule per check and one result per result
// that did not pass. The overall and per-domain scores are run properties.
func ToSARIF(snapshot *model.Snapshot, version string) (*sarif.Report, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI(toolName, toolURI)
	if version != "" {
		run.Tool.Driver.Version = &version
	}
	run.Properties = map[string]interface{}{
		"scan_id":       snapshot.ScanID,
		"created_at":    snapshot.CreatedAt,
		"account_id":    snapshot.AccountID,
		"region":        snapshot.Region,
		"score":         snapshot.Score,
		"domain_scores": snapshot.Breakdown.DomainScores,
	}
	if env := snapshot.Breakdown.Environment; env != nil {
		run.Properties["mode"] = env.Mode
	}

	for _, r := range snapshot.Results {
		rule := run.AddRule(r.ID).
			WithDescription(r.Title).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{
				Level: severityLevel(r.Severity),
			})
		rule.Properties = map[string]interface{}{
			"domain":     r.Domain,
			"severity":   string(r.Severity),
			"weight":     r.Weight,
			"references": r.References,
		}

		level, ok := statusLevel(r.Status)
		if !ok {
			continue
		}
		result := sarif.NewRuleResult(rule.ID).
			WithMessage(sarif.NewTextMessage(message(r))).
			WithLevel(level)
		result.Properties = map[string]interface{}{
			"status":   string(r.Status),
			"evidence": r.Evidence,
		}
		run.AddResult(result)
	}
	report.AddRun(run)
	return report, nil
}

// statusLevel maps a status to a SARIF level. Passing results produce no SARIF result.
func statusLevel(status model.Status) (string, bool) {
	switch status {
	case model.StatusFail, model.StatusError:
		return "error", true
	case model.StatusWarn:
		return "warning", true
	case model.StatusSkip:
		return "note", true
	default:
		return "", false
	}
}

func severityLevel(severity model.Severity) string {
	switch severity {
	case model.SeverityCritical, model.SeverityHigh:
		return "error"
	case model.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

func message(r model.Result) string {
	msg := fmt.Sprintf("%s: %s", r.Title, r.Status)
	if r.Recommendation != "" {
		msg += ". " + r.Recommendation
	}
	return msg
}
