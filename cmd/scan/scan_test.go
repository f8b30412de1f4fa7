package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sentinelcmd "github.com/scan-io-git/cloudsentinel/internal/cmd"
	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
)

func openLocal(t *testing.T) sentinelcmd.Backend {
	t.Helper()
	cfg := &config.Config{Home: t.TempDir()}
	config.ApplyDefaults(cfg)
	b, err := sentinelcmd.Open(context.Background(), cfg, "", hclog.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestRunScan(t *testing.T) {
	b := openLocal(t)

	var out bytes.Buffer
	require.NoError(t, runScan(context.Background(), b, RunOptionsScan{}, &out))

	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	assert.NotEmpty(t, snap.ScanID)
	assert.Len(t, snap.Results, 10)
	require.NotNil(t, snap.Breakdown.Environment)
	assert.Equal(t, config.ModeLocal, snap.Breakdown.Environment.Mode)

	metas, err := b.ListScans(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, snap.ScanID, metas[0].ScanID)
}

func TestRunScanSummary(t *testing.T) {
	b := openLocal(t)

	var out bytes.Buffer
	require.NoError(t, runScan(context.Background(), b, RunOptionsScan{Summary: true}, &out))

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &fields))
	assert.Contains(t, fields, "scan_id")
	assert.Contains(t, fields, "domain_scores")
	assert.NotContains(t, fields, "results")
}
