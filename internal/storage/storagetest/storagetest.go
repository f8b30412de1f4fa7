// Package storagetest holds the behaviour every storage.Store backend must satisfy.
package storagetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) storage.Store

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Snapshot builds a small scored snapshot.
func Snapshot(id string, createdAt time.Time, score int) *model.Snapshot {
	return &model.Snapshot{
		ScanID:    id,
		CreatedAt: createdAt,
		AccountID: "123456789012",
		Region:    "eu-west-1",
		Score:     score,
		Results: []model.Result{{
			ID:         "iam.root_mfa",
			Title:      "Root account MFA enabled",
			Domain:     "Identity & Access",
			Severity:   model.SeverityCritical,
			Status:     model.StatusPass,
			Weight:     10,
			Evidence:   map[string]interface{}{"mfa_enabled": true},
			References: []string{},
		}},
		Breakdown: model.Breakdown{
			TotalWeight:  10,
			Earned:       float64(score) / 10,
			StatusCounts: map[model.Status]int{model.StatusPass: 1},
			DomainScores: map[string]int{"Identity & Access": score},
			Environment:  &model.Environment{Mode: "local"},
		},
	}
}

// Run executes the conformance suite against stores produced by factory.
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st storage.Store)
	}{
		{"PutAndGet", testPutAndGet},
		{"GetUnknown", testGetUnknown},
		{"DuplicatePutKeepsOriginal", testDuplicatePut},
		{"CreatedAtMicroseconds", testCreatedAtMicroseconds},
		{"ListNewestFirst", testListNewestFirst},
		{"ListEmpty", testListEmpty},
		{"ConcurrentPut", testConcurrentPut},
		{"TimelineOrder", testTimelineOrder},
		{"TimelineSince", testTimelineSince},
		{"TimelineLimitKeepsNewest", testTimelineLimit},
		{"TimelineReset", testTimelineReset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := factory(t)
			t.Cleanup(func() { st.Close() })
			tt.fn(t, st)
		})
	}
}

func testPutAndGet(t *testing.T, st storage.Store) {
	ctx := context.Background()
	snap := Snapshot("scan-a", base, 80)
	require.NoError(t, st.PutScan(ctx, snap))

	meta, got, err := st.GetScan(ctx, "scan-a")
	require.NoError(t, err)
	assert.Equal(t, "scan-a", meta.ScanID)
	assert.True(t, meta.CreatedAt.Equal(base), "created_at %s", meta.CreatedAt)
	assert.Equal(t, "123456789012", meta.AccountID)
	assert.Equal(t, "eu-west-1", meta.Region)
	assert.Equal(t, 80, meta.Score)
	assert.Equal(t, map[string]int{"Identity & Access": 80}, meta.DomainScores)

	require.NotNil(t, got)
	assert.Equal(t, snap.ScanID, got.ScanID)
	assert.Equal(t, snap.Score, got.Score)
	want, err := json.Marshal(snap.Results)
	require.NoError(t, err)
	have, err := json.Marshal(got.Results)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(have))
	require.NotNil(t, got.Breakdown.Environment)
	assert.Equal(t, "local", got.Breakdown.Environment.Mode)
}

func testGetUnknown(t *testing.T, st storage.Store) {
	_, snap, err := st.GetScan(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Nil(t, snap)
}

func testDuplicatePut(t *testing.T, st storage.Store) {
	ctx := context.Background()
	require.NoError(t, st.PutScan(ctx, Snapshot("twice", base, 10)))
	assert.ErrorIs(t, st.PutScan(ctx, Snapshot("twice", base.Add(time.Minute), 90)), storage.ErrAlreadyExists)

	metas, err := st.ListScans(ctx, 10)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, 10, metas[0].Score)

	meta, got, err := st.GetScan(ctx, "twice")
	require.NoError(t, err)
	assert.Equal(t, 10, meta.Score)
	assert.Equal(t, 10, got.Score)
	assert.True(t, got.CreatedAt.Equal(base))
}

func testCreatedAtMicroseconds(t *testing.T, st storage.Store) {
	ctx := context.Background()
	at := base.Add(123456 * time.Microsecond)
	require.NoError(t, st.PutScan(ctx, Snapshot("micro", at, 10)))

	meta, got, err := st.GetScan(ctx, "micro")
	require.NoError(t, err)
	assert.True(t, meta.CreatedAt.Equal(at), "meta created_at %s", meta.CreatedAt)
	assert.True(t, meta.CreatedAt.Equal(got.CreatedAt), "meta %s body %s", meta.CreatedAt, got.CreatedAt)

	metas, err := st.ListScans(ctx, 1)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.True(t, metas[0].CreatedAt.Equal(at))
}

func testListNewestFirst(t *testing.T, st storage.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, st.PutScan(ctx, Snapshot(fmt.Sprintf("scan-%d", i), base.Add(time.Duration(i)*time.Minute), 10*i)))
	}

	metas, err := st.ListScans(ctx, 3)
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, "scan-4", metas[0].ScanID)
	assert.Equal(t, "scan-3", metas[1].ScanID)
	assert.Equal(t, "scan-2", metas[2].ScanID)
	assert.Equal(t, 40, metas[0].Score)

	all, err := st.ListScans(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func testListEmpty(t *testing.T, st storage.Store) {
	metas, err := st.ListScans(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, metas)
	assert.Empty(t, metas)
}

func testConcurrentPut(t *testing.T, st storage.Store) {
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- st.PutScan(ctx, Snapshot(fmt.Sprintf("c-%d", i), base.Add(time.Duration(i)*time.Second), i))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	metas, err := st.ListScans(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, metas, 8)
	for i := 1; i < len(metas); i++ {
		assert.False(t, metas[i].CreatedAt.After(metas[i-1].CreatedAt))
	}
}

func event(name string, at time.Time) model.TimelineEvent {
	return model.TimelineEvent{
		EventTime:   at,
		EventName:   name,
		EventSource: "iam.amazonaws.com",
		Username:    "local-user",
		Resources:   []model.Resource{{ResourceName: "cloudsentinel-sim-user-local", ResourceType: "AWS::IAM::User"}},
	}
}

func names(events []model.TimelineEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventName)
	}
	return out
}

func testTimelineOrder(t *testing.T, st storage.Store) {
	ctx := context.Background()
	require.NoError(t, st.AppendEvents(ctx, []model.TimelineEvent{
		event("Second", base.Add(time.Second)),
		event("SameA", base),
		event("SameB", base),
	}, "iam-user", "op-1"))
	require.NoError(t, st.AppendEvents(ctx, []model.TimelineEvent{event("SameC", base)}, "iam-user", "op-2"))

	events, err := st.ListTimeline(ctx, time.Time{}, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"SameA", "SameB", "SameC", "Second"}, names(events))
	assert.Equal(t, "op-1", events[0].OperationID)
	assert.Equal(t, "op-2", events[2].OperationID)
	assert.Equal(t, "iam-user", events[0].Scenario)
	assert.Equal(t, "local-user", events[0].Username)
	require.Len(t, events[0].Resources, 1)
	assert.Equal(t, "cloudsentinel-sim-user-local", events[0].Resources[0].ResourceName)
	assert.True(t, events[3].EventTime.Equal(base.Add(time.Second)))
}

func testTimelineSince(t *testing.T, st storage.Store) {
	ctx := context.Background()
	require.NoError(t, st.AppendEvents(ctx, []model.TimelineEvent{
		event("Old", base.Add(-time.Hour)),
		event("Edge", base),
		event("New", base.Add(time.Hour)),
	}, "s3-public-acl", "op-1"))

	events, err := st.ListTimeline(ctx, base, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"Edge", "New"}, names(events))

	events, err = st.ListTimeline(ctx, base.Add(2*time.Hour), 100)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func testTimelineLimit(t *testing.T, st storage.Store) {
	ctx := context.Background()
	var batch []model.TimelineEvent
	for i := 0; i < 6; i++ {
		batch = append(batch, event(fmt.Sprintf("E%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	require.NoError(t, st.AppendEvents(ctx, batch, "iam-user", "op-1"))

	events, err := st.ListTimeline(ctx, time.Time{}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"E4", "E5"}, names(events))
}

func testTimelineReset(t *testing.T, st storage.Store) {
	ctx := context.Background()
	require.NoError(t, st.AppendEvents(ctx, []model.TimelineEvent{event("A", base), event("B", base)}, "iam-user", "op-1"))
	require.NoError(t, st.ResetTimeline(ctx))

	events, err := st.ListTimeline(ctx, time.Time{}, 100)
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, st.AppendEvents(ctx, []model.TimelineEvent{event("Cleanup", base)}, "cleanup", "op-2"))
	events, err = st.ListTimeline(ctx, time.Time{}, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cleanup"}, names(events))

	// Scans survive a timeline reset.
	require.NoError(t, st.PutScan(ctx, Snapshot("kept", base, 50)))
	require.NoError(t, st.ResetTimeline(ctx))
	_, _, err = st.GetScan(ctx, "kept")
	assert.NoError(t, err)
}
