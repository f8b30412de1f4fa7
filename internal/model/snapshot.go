package model

import "time"

// Environment records which check set produced a snapshot.
type Environment struct {
	Mode      string `json:"mode"`
	Enabled   bool   `json:"enabled"`
	AccountID string `json:"account_id,omitempty"`
	Note      string `json:"note,omitempty"`
}

// Breakdown is the scoring detail attached to a snapshot.
type Breakdown struct {
	TotalWeight  int                 `json:"total_weight"`
	Earned       float64             `json:"earned"`
	StatusCounts map[Status]int      `json:"status_counts"`
	DomainScores map[string]int      `json:"domain_scores"`
	Rules        map[Status]*float64 `json:"rules"`
	Environment  *Environment        `json:"environment,omitempty"`
}

// Snapshot is the immutable record of one scan run.
type Snapshot struct {
	ScanID    string    `json:"scan_id"`
	CreatedAt time.Time `json:"created_at"`
	AccountID string    `json:"account_id,omitempty"`
	Region    string    `json:"region"`
	Results   []Result  `json:"results"`
	Score     int       `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
}

// Meta is the listing projection of a Snapshot.
type Meta struct {
	ScanID       string         `json:"scan_id"`
	CreatedAt    time.Time      `json:"created_at"`
	AccountID    string         `json:"account_id,omitempty"`
	Region       string         `json:"region"`
	Score        int            `json:"score"`
	DomainScores map[string]int `json:"domain_scores"`
	BodyKey      string         `json:"body_key,omitempty"`
}

// Meta projects the snapshot. BodyKey is left for the storage backend to set.
func (s *Snapshot) Meta() Meta {
	domains := make(map[string]int, len(s.Breakdown.DomainScores))
	for d, v := range s.Breakdown.DomainScores {
		domains[d] = v
	}
	return Meta{
		ScanID:       s.ScanID,
		CreatedAt:    s.CreatedAt,
		AccountID:    s.AccountID,
		Region:       s.Region,
		Score:        s.Score,
		DomainScores: domains,
	}
}

// Resource identifies something a timeline event touched.
type Resource struct {
	ResourceName string `json:"resource_name"`
	ResourceType string `json:"resource_type,omitempty"`
}

// TimelineEvent is one row of the append-only timeline.
type TimelineEvent struct {
	EventTime   time.Time  `json:"event_time"`
	EventName   string     `json:"event_name"`
	EventSource string     `json:"event_source"`
	Username    string     `json:"username,omitempty"`
	Resources   []Resource `json:"resources"`
	Scenario    string     `json:"scenario,omitempty"`
	OperationID string     `json:"operation_id,omitempty"`
}
