package split

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
	"github.com/scan-io-git/cloudsentinel/internal/storage/storagetest"
)

const (
	scansTable    = "cloudsentinel-scans"
	timelineTable = "cloudsentinel-timeline"
	bucket        = "cloudsentinel-artifacts"
)

func newDynamoIndex(t *testing.T, ddb *fakeDynamo) *DynamoIndex {
	t.Helper()
	idx := NewDynamoIndex(ddb, scansTable, timelineTable, hclog.NewNullLogger())
	require.NoError(t, idx.EnsureTables(context.Background()))
	return idx
}

func newFSBlobs(t *testing.T) *FilesystemBlobs {
	t.Helper()
	blobs, err := NewFilesystemBlobs(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	return blobs
}

func TestConformanceDynamoFilesystem(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		ddb := newFakeDynamo()
		ddb.pageSize = 2
		return New(newDynamoIndex(t, ddb), newFSBlobs(t), hclog.NewNullLogger())
	})
}

func TestConformanceDynamoS3(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New(newDynamoIndex(t, newFakeDynamo()), NewS3Blobs(newFakeS3(), bucket, "scans/"), hclog.NewNullLogger())
	})
}

func TestConformancePostgres(t *testing.T) {
	dsn := os.Getenv("SENTINEL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SENTINEL_TEST_POSTGRES_DSN is not set")
	}
	storagetest.Run(t, func(t *testing.T) storage.Store {
		ctx := context.Background()
		idx, err := ConnectPostgres(ctx, dsn, 4, hclog.NewNullLogger())
		require.NoError(t, err)
		_, err = idx.pool.Exec(ctx, `TRUNCATE scans, timeline RESTART IDENTITY`)
		require.NoError(t, err)
		return New(idx, newFSBlobs(t), hclog.NewNullLogger())
	})
}

func TestEnsureTablesIsIdempotent(t *testing.T) {
	ddb := newFakeDynamo()
	idx := newDynamoIndex(t, ddb)
	require.NoError(t, idx.EnsureTables(context.Background()))
	assert.Equal(t, []string{scansTable, timelineTable}, ddb.created)
	assert.Equal(t, [2]string{"kind", "sort_key"}, ddb.tables[scansTable].indexes[ScansByTimeIndex])
}

func TestS3BlobsUseEncryptionAndPrefix(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	st := New(newDynamoIndex(t, newFakeDynamo()), NewS3Blobs(client, bucket, "scans/"), hclog.NewNullLogger())

	require.NoError(t, st.PutScan(ctx, storagetest.Snapshot("scan-1", time.Now().UTC(), 90)))
	require.Len(t, client.puts, 1)
	put := client.puts[0]
	assert.Equal(t, "scans/scan-1.json", aws.StringValue(put.Key))
	assert.Equal(t, s3.ServerSideEncryptionAes256, aws.StringValue(put.ServerSideEncryption))
	assert.Equal(t, "application/json", aws.StringValue(put.ContentType))

	meta, _, err := st.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "scans/scan-1.json", meta.BodyKey)
	assert.Equal(t, "dynamodb+s3", st.Describe())
}

type failingIndex struct {
	Index
	err error
}

func (f failingIndex) PutMeta(context.Context, model.Meta) error { return f.err }

func TestPutScanRemovesBodyWhenIndexFails(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	idx := failingIndex{Index: newDynamoIndex(t, newFakeDynamo()), err: errors.New("throttled")}
	st := New(idx, NewS3Blobs(client, bucket, "scans/"), hclog.NewNullLogger())

	err := st.PutScan(ctx, storagetest.Snapshot("orphan", time.Now().UTC(), 10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	assert.Empty(t, client.objects)
	assert.Equal(t, []string{bucket + "/scans/orphan.json"}, client.deletes)

	metas, err := st.ListScans(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, metas)
	_, _, err = st.GetScan(ctx, "orphan")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPutScanFailsWhenBodyFails(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	client.putErr = errors.New("access denied")
	st := New(newDynamoIndex(t, newFakeDynamo()), NewS3Blobs(client, bucket, "scans/"), hclog.NewNullLogger())

	err := st.PutScan(ctx, storagetest.Snapshot("nobody", time.Now().UTC(), 10))
	require.Error(t, err)
	_, _, err = st.GetScan(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetScanReportsMissingBody(t *testing.T) {
	ctx := context.Background()
	blobs := newFSBlobs(t)
	st := New(newDynamoIndex(t, newFakeDynamo()), blobs, hclog.NewNullLogger())
	require.NoError(t, st.PutScan(ctx, storagetest.Snapshot("gone", time.Now().UTC(), 10)))
	require.NoError(t, blobs.Delete(ctx, "gone.json"))

	_, _, err := st.GetScan(ctx, "gone")
	require.Error(t, err)
	assert.False(t, errors.Is(err, storage.ErrNotFound))
	assert.Contains(t, err.Error(), "missing")
}

func TestDuplicateScanIsRejected(t *testing.T) {
	ctx := context.Background()
	blobs := newFSBlobs(t)
	st := New(newDynamoIndex(t, newFakeDynamo()), blobs, hclog.NewNullLogger())
	snap := storagetest.Snapshot("twice", time.Now().UTC(), 10)
	require.NoError(t, st.PutScan(ctx, snap))

	again := storagetest.Snapshot("twice", time.Now().UTC(), 90)
	assert.ErrorIs(t, st.PutScan(ctx, again), storage.ErrAlreadyExists)

	meta, got, err := st.GetScan(ctx, "twice")
	require.NoError(t, err)
	assert.Equal(t, 10, meta.Score)
	assert.Equal(t, 10, got.Score)

	body, err := blobs.Get(ctx, "twice.json")
	require.NoError(t, err)
	assert.Contains(t, string(body), `"score":10`)
}

// racingIndex hides existing Metas from GetMeta, as when two puts for one id interleave.
type racingIndex struct {
	Index
}

func (racingIndex) GetMeta(_ context.Context, _ string) (model.Meta, error) {
	return model.Meta{}, storage.ErrNotFound
}

func TestDuplicateRaceKeepsBody(t *testing.T) {
	ctx := context.Background()
	blobs := newFSBlobs(t)
	index := newDynamoIndex(t, newFakeDynamo())
	require.NoError(t, New(index, blobs, hclog.NewNullLogger()).PutScan(ctx, storagetest.Snapshot("race", time.Now().UTC(), 10)))

	st := New(racingIndex{index}, blobs, hclog.NewNullLogger())
	assert.ErrorIs(t, st.PutScan(ctx, storagetest.Snapshot("race", time.Now().UTC(), 10)), storage.ErrAlreadyExists)

	_, err := blobs.Get(ctx, "race.json")
	assert.NoError(t, err)
}

func TestDynamoTimelineBatchesAndRetries(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDynamo()
	ddb.unprocessOnce = true
	st := New(newDynamoIndex(t, ddb), newFSBlobs(t), hclog.NewNullLogger())

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var events []model.TimelineEvent
	for i := 0; i < 60; i++ {
		events = append(events, model.TimelineEvent{
			EventTime:   base.Add(time.Duration(i) * time.Millisecond),
			EventName:   fmt.Sprintf("E%02d", i),
			EventSource: "iam.amazonaws.com",
		})
	}
	require.NoError(t, st.AppendEvents(ctx, events, "iam-user", "op-1"))
	// 3 chunks plus one resubmission of the bounced request.
	assert.Equal(t, 4, ddb.batchCalls)

	got, err := st.ListTimeline(ctx, time.Time{}, 1000)
	require.NoError(t, err)
	require.Len(t, got, 60)
	assert.Equal(t, "E00", got[0].EventName)
	assert.Equal(t, "E59", got[59].EventName)
	assert.NotNil(t, got[0].Resources)

	require.NoError(t, st.ResetTimeline(ctx))
	got, err = st.ListTimeline(ctx, time.Time{}, 1000)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFilesystemBlobsRejectEscapes(t *testing.T) {
	ctx := context.Background()
	blobs := newFSBlobs(t)
	_, err := blobs.Put(ctx, "../outside.json", []byte("{}"))
	assert.Error(t, err)

	key, err := blobs.Put(ctx, "inside.json", []byte(`{"ok":true}`))
	require.NoError(t, err)
	data, err := blobs.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))

	_, err = blobs.Get(ctx, "absent.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, blobs.Delete(ctx, "absent.json"))

	entries, err := os.ReadDir(blobs.folder)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}
