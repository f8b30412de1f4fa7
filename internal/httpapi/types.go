package httpapi

import (
	"time"

	"github.com/scan-io-git/cloudsentinel/internal/model"
)

// Health is the body of GET /healthz.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Backend string `json:"backend,omitempty"`
}

// ScanDetail is the body of GET /api/scans/{id}.
type ScanDetail struct {
	Meta     model.Meta      `json:"meta"`
	Snapshot *model.Snapshot `json:"snapshot"`
}

// LatestScore is the body of GET /api/score/latest. Every field is null before the first scan.
type LatestScore struct {
	Score        *int           `json:"score"`
	ScanID       *string        `json:"scan_id"`
	CreatedAt    *time.Time     `json:"created_at,omitempty"`
	DomainScores map[string]int `json:"domain_scores,omitempty"`
}

// TimelineResponse is the body of GET /api/timeline.
type TimelineResponse struct {
	Items []model.TimelineEvent `json:"items"`
}

// PolicyRequest is the body of POST /api/policy/validate.
type PolicyRequest struct {
	PolicyJSON string `json:"policy_json"`
	PolicyType string `json:"policy_type,omitempty"`
}

// ErrorResponse carries the message of a failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
