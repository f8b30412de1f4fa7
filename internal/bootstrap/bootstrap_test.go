package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/cloudsentinel/internal/storage/split"
	"github.com/scan-io-git/cloudsentinel/internal/storage/sqlite"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
)

func newConfig(t *testing.T) *config.Config {
	cfg := &config.Config{Home: t.TempDir()}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestOpenEmbeddedStore(t *testing.T) {
	cfg := newConfig(t)
	st, err := OpenStore(context.Background(), cfg, hclog.NewNullLogger())
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, sqlite.BackendName, st.Backend())
	assert.FileExists(t, filepath.Join(cfg.Home, "sentinel.db"))
}

func TestOpenStoreRejectsUnknownLayouts(t *testing.T) {
	cfg := newConfig(t)
	cfg.Storage.Backend = "tape"
	_, err := OpenStore(context.Background(), cfg, hclog.NewNullLogger())
	assert.EqualError(t, err, `unsupported storage backend "tape"`)

	cfg.Storage.Backend = config.BackendSplit
	cfg.Storage.Split.Blob = config.BlobFilesystem
	cfg.Storage.Split.Index = "redis"
	_, err = OpenStore(context.Background(), cfg, hclog.NewNullLogger())
	assert.EqualError(t, err, `unsupported split index "redis"`)
}

func TestOpenBlobs(t *testing.T) {
	cfg := newConfig(t)
	cfg.Storage.Split.Blob = config.BlobFilesystem
	blobs, err := openBlobs(cfg)
	require.NoError(t, err)
	assert.IsType(t, &split.FilesystemBlobs{}, blobs)
	assert.DirExists(t, cfg.Storage.Split.Filesystem.Folder)

	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	cfg.Storage.Split.Blob = config.BlobS3
	cfg.Storage.Split.S3.Bucket = "bucket"
	blobs, err = openBlobs(cfg)
	require.NoError(t, err)
	assert.Equal(t, "s3", blobs.Name())
}

func TestNewDoctorLocalMode(t *testing.T) {
	cfg := newConfig(t)
	doctor := NewDoctor(cfg, hclog.NewNullLogger())
	resp, err := doctor.Validate(context.Background(), `{"Version":"2012-10-17","Statement":[]}`, "")
	require.NoError(t, err)
	assert.Equal(t, "local", resp.Mode)
}
