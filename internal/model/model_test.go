package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResult(t *testing.T) {
	tests := []struct {
		name    string
		in      Result
		wantErr string
	}{
		{
			name: "defaults weight",
			in:   Result{ID: "iam.root_mfa", Status: StatusPass, Severity: SeverityHigh},
		},
		{
			name:    "unknown status",
			in:      Result{ID: "x", Status: "ok", Severity: SeverityLow},
			wantErr: `invalid status "ok": must be one of pass, fail, warn, error, skip`,
		},
		{
			name:    "unknown severity",
			in:      Result{ID: "x", Status: StatusFail, Severity: "urgent"},
			wantErr: `invalid severity "urgent": must be one of low, medium, high, critical`,
		},
		{
			name:    "negative weight",
			in:      Result{ID: "x", Status: StatusFail, Severity: SeverityLow, Weight: -1},
			wantErr: `invalid weight "-1": must be positive`,
		},
		{
			name:    "missing id",
			in:      Result{Status: StatusFail, Severity: SeverityLow},
			wantErr: "invalid id: must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewResult(tt.in)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				var verr *ValidationError
				assert.True(t, errors.As(err, &verr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultWeight, r.Weight)
			assert.NotNil(t, r.Evidence)
			assert.NotNil(t, r.References)
		})
	}
}

func TestResultJSONRejectsUnknownEnums(t *testing.T) {
	var r Result
	err := json.Unmarshal([]byte(`{"id":"a","status":"green","severity":"low","weight":1}`), &r)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"id":"a","status":"pass","severity":"extreme","weight":1}`), &r)
	assert.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","status":"warn","severity":"medium","weight":3}`), &r))
	assert.Equal(t, StatusWarn, r.Status)
	assert.Equal(t, SeverityMedium, r.Severity)
}

func TestSnapshotMeta(t *testing.T) {
	s := Snapshot{
		ScanID:    "0192",
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		AccountID: "123456789012",
		Region:    "eu-west-1",
		Score:     75,
		Breakdown: Breakdown{DomainScores: map[string]int{"Identity & Access": 50}},
	}

	m := s.Meta()
	assert.Equal(t, s.ScanID, m.ScanID)
	assert.Equal(t, s.CreatedAt, m.CreatedAt)
	assert.Equal(t, 75, m.Score)
	assert.Equal(t, map[string]int{"Identity & Access": 50}, m.DomainScores)

	m.DomainScores["Identity & Access"] = 0
	assert.Equal(t, 50, s.Breakdown.DomainScores["Identity & Access"])
}

func TestBreakdownStatusKeys(t *testing.T) {
	b := Breakdown{StatusCounts: map[Status]int{StatusPass: 2, StatusSkip: 0}}
	data, err := json.Marshal(b.StatusCounts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pass":2,"skip":0}`, string(data))

	var back map[Status]int
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, b.StatusCounts, back)
}
