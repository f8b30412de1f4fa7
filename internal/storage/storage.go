// Package storage defines the persistence contract for scan snapshots and the timeline.
// Backends live in subpackages and are selected with Open.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scan-io-git/cloudsentinel/internal/model"
)

var (
	// ErrNotFound is returned by GetScan for unknown scan ids.
	ErrNotFound = errors.New("scan not found")
	// ErrAlreadyExists is returned by PutScan when the scan id is taken. The stored scan is
	// left untouched.
	ErrAlreadyExists = errors.New("scan already exists")
)

const (
	DefaultListLimit     = 25
	MaxListLimit         = 100
	DefaultTimelineLimit = 1000
)

// TimeKeyLayout is a fixed-width UTC layout, so keys sort lexicographically in time order.
const TimeKeyLayout = "2006-01-02T15:04:05.000000000Z"

// Store is implemented by every backend. All methods are safe for concurrent use.
type Store interface {
	// PutScan persists the snapshot body and its Meta atomically: after an error neither
	// is visible. A duplicate scan id yields ErrAlreadyExists.
	PutScan(ctx context.Context, snapshot *model.Snapshot) error
	// ListScans returns at most limit Metas, newest first.
	ListScans(ctx context.Context, limit int) ([]model.Meta, error)
	// GetScan returns ErrNotFound when the id is unknown.
	GetScan(ctx context.Context, scanID string) (model.Meta, *model.Snapshot, error)

	// AppendEvents appends in the given order. scenario and operationID fill the events
	// that don't carry their own.
	AppendEvents(ctx context.Context, events []model.TimelineEvent, scenario, operationID string) error
	// ListTimeline returns events ascending by event time. A zero since means no lower bound.
	ListTimeline(ctx context.Context, since time.Time, limit int) ([]model.TimelineEvent, error)
	// ResetTimeline irreversibly removes every timeline event.
	ResetTimeline(ctx context.Context) error

	// Backend names the storage layout, e.g. "embedded".
	Backend() string
	Close() error
}

// TimeKey formats t as a sortable key.
func TimeKey(t time.Time) string {
	return t.UTC().Format(TimeKeyLayout)
}

// ParseTimeKey is the inverse of TimeKey.
func ParseTimeKey(s string) (time.Time, error) {
	t, err := time.Parse(TimeKeyLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time key %q: %w", s, err)
	}
	return t.UTC(), nil
}

// ClampLimit maps a caller supplied limit onto [1, MaxListLimit], using DefaultListLimit
// for non-positive values.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// ValidateSnapshot rejects snapshots that can't be indexed.
func ValidateSnapshot(s *model.Snapshot) error {
	if s == nil {
		return errors.New("snapshot is nil")
	}
	if s.ScanID == "" {
		return errors.New("snapshot has no scan id")
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("snapshot %s has no created_at", s.ScanID)
	}
	return nil
}

func EncodeSnapshot(s *model.Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot %s: %w", s.ScanID, err)
	}
	return data, nil
}

func DecodeSnapshot(data []byte) (*model.Snapshot, error) {
	var s model.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}

// Stamp returns copies of events carrying scenario and operationID where unset, with
// event times normalized to UTC.
func Stamp(events []model.TimelineEvent, scenario, operationID string) []model.TimelineEvent {
	out := make([]model.TimelineEvent, len(events))
	for i, e := range events {
		if e.Scenario == "" {
			e.Scenario = scenario
		}
		if e.OperationID == "" {
			e.OperationID = operationID
		}
		if e.Resources == nil {
			e.Resources = []model.Resource{}
		}
		e.EventTime = e.EventTime.UTC()
		out[i] = e
	}
	return out
}
