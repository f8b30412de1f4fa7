package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/cloudsentinel/internal/httpapi"
	"github.com/scan-io-git/cloudsentinel/internal/policy"
	"github.com/scan-io-git/cloudsentinel/internal/scanner"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
	"github.com/scan-io-git/cloudsentinel/internal/storage/sqlite"
	"github.com/scan-io-git/cloudsentinel/internal/timeline"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	logger := hclog.NewNullLogger()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "sentinel.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{Home: t.TempDir()}
	config.ApplyDefaults(cfg)
	srv := httpapi.New(
		scanner.New(cfg, nil, store, logger),
		store,
		timeline.NewSimulator(store, cfg.Simulator, logger),
		policy.NewDoctor(nil, logger),
		logger,
		"test",
	)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return New(ts.URL+"/", logger, cfg)
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)

	latest, err := c.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	snap, err := c.Scan(ctx)
	require.NoError(t, err)

	metas, err := c.ListScans(ctx, 10)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, snap.ScanID, metas[0].ScanID)

	meta, got, err := c.GetScan(ctx, snap.ScanID)
	require.NoError(t, err)
	assert.Equal(t, snap.Score, meta.Score)
	assert.Len(t, got.Results, len(snap.Results))

	latest, err = c.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, snap.ScanID, latest.ScanID)
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	_, _, err := c.GetScan(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "server responded with 404: scan not found", err.Error())

	_, err = c.Simulate(ctx, "bogus")
	assert.True(t, IsBadRequest(err))

	_, err = c.ListScans(ctx, 500)
	assert.True(t, IsBadRequest(err))
}

func TestClientSimulateTimelinePolicy(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	resp, err := c.Simulate(ctx, "s3-public-acl")
	require.NoError(t, err)
	assert.Equal(t, "s3-public-acl", resp.Scenario)

	events, err := c.Timeline(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "PutBucketAcl", events[1].EventName)

	events, err = c.Timeline(ctx, resp.StartedAt.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, events, 1)

	pol, err := c.ValidatePolicy(ctx, `{"Version":"2012-10-17","Statement":[]}`, "")
	require.NoError(t, err)
	assert.Equal(t, policy.ModeLocal, pol.Mode)
}
