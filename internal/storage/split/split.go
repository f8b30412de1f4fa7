// Package split implements the storage backend that keeps scan metadata in an Index and
// snapshot bodies in a BlobStore.
package split

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
)

const BackendName = "split"

// Index stores Metas and the timeline.
type Index interface {
	// PutMeta fails when a Meta with the same scan id exists.
	PutMeta(ctx context.Context, meta model.Meta) error
	ListMetas(ctx context.Context, limit int) ([]model.Meta, error)
	// GetMeta returns storage.ErrNotFound for unknown ids.
	GetMeta(ctx context.Context, scanID string) (model.Meta, error)

	// AppendEvents receives events already stamped with scenario and operation id.
	AppendEvents(ctx context.Context, events []model.TimelineEvent) error
	ListTimeline(ctx context.Context, since time.Time, limit int) ([]model.TimelineEvent, error)
	ResetTimeline(ctx context.Context) error

	Name() string
	Close() error
}

// BlobStore stores snapshot bodies.
type BlobStore interface {
	// Put writes body under a key derived from name and returns that key.
	Put(ctx context.Context, name string, body []byte) (string, error)
	// Get returns storage.ErrNotFound for unknown keys.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error

	Name() string
}

// Store composes an Index and a BlobStore into a storage.Store.
type Store struct {
	index  Index
	blobs  BlobStore
	logger hclog.Logger

	// timelineMu makes ResetTimeline exclusive against appends and reads.
	timelineMu sync.RWMutex
}

var _ storage.Store = (*Store)(nil)

func New(index Index, blobs BlobStore, logger hclog.Logger) *Store {
	return &Store{index: index, blobs: blobs, logger: logger}
}

func (s *Store) Backend() string { return BackendName }

// Describe names the adapters, e.g. "dynamodb+s3".
func (s *Store) Describe() string {
	return s.index.Name() + "+" + s.blobs.Name()
}

func (s *Store) Close() error {
	return s.index.Close()
}

func blobName(scanID string) string {
	return scanID + ".json"
}

// PutScan writes the body first and the Meta second. When the Meta write fails the body
// is deleted again, so the index never points at a missing body. A taken scan id is
// refused before the body is written, since both would share the blob key.
func (s *Store) PutScan(ctx context.Context, snapshot *model.Snapshot) error {
	if err := storage.ValidateSnapshot(snapshot); err != nil {
		return err
	}
	body, err := storage.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	_, err = s.index.GetMeta(ctx, snapshot.ScanID)
	switch {
	case err == nil:
		return fmt.Errorf("scan %s: %w", snapshot.ScanID, storage.ErrAlreadyExists)
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to check scan %s: %w", snapshot.ScanID, err)
	}

	key, err := s.blobs.Put(ctx, blobName(snapshot.ScanID), body)
	if err != nil {
		return fmt.Errorf("failed to store snapshot body: %w", err)
	}

	meta := snapshot.Meta()
	meta.CreatedAt = meta.CreatedAt.UTC()
	meta.BodyKey = key
	if err := s.index.PutMeta(ctx, meta); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Lost a race for the id: the body now belongs to the indexed scan.
			s.logger.Warn("concurrent put for the same scan id", "scan_id", snapshot.ScanID)
			return err
		}
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Error("failed to remove orphaned snapshot body", "key", key, "error", delErr)
			return errors.Join(fmt.Errorf("failed to index scan %s: %w", snapshot.ScanID, err), delErr)
		}
		return fmt.Errorf("failed to index scan %s: %w", snapshot.ScanID, err)
	}

	s.logger.Debug("scan stored", "scan_id", snapshot.ScanID, "key", key)
	return nil
}

func (s *Store) ListScans(ctx context.Context, limit int) ([]model.Meta, error) {
	metas, err := s.index.ListMetas(ctx, storage.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	if metas == nil {
		metas = []model.Meta{}
	}
	return metas, nil
}

func (s *Store) GetScan(ctx context.Context, scanID string) (model.Meta, *model.Snapshot, error) {
	meta, err := s.index.GetMeta(ctx, scanID)
	if err != nil {
		return model.Meta{}, nil, err
	}

	body, err := s.blobs.Get(ctx, meta.BodyKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Meta{}, nil, fmt.Errorf("scan %s is indexed but its body %q is missing", scanID, meta.BodyKey)
		}
		return model.Meta{}, nil, fmt.Errorf("failed to load snapshot body: %w", err)
	}

	snapshot, err := storage.DecodeSnapshot(body)
	if err != nil {
		return model.Meta{}, nil, fmt.Errorf("scan %s: %w", scanID, err)
	}
	return meta, snapshot, nil
}

func (s *Store) AppendEvents(ctx context.Context, events []model.TimelineEvent, scenario, operationID string) error {
	if len(events) == 0 {
		return nil
	}
	s.timelineMu.RLock()
	defer s.timelineMu.RUnlock()
	return s.index.AppendEvents(ctx, storage.Stamp(events, scenario, operationID))
}

func (s *Store) ListTimeline(ctx context.Context, since time.Time, limit int) ([]model.TimelineEvent, error) {
	if limit <= 0 {
		limit = storage.DefaultTimelineLimit
	}
	s.timelineMu.RLock()
	defer s.timelineMu.RUnlock()
	events, err := s.index.ListTimeline(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.TimelineEvent{}
	}
	return events, nil
}

func (s *Store) ResetTimeline(ctx context.Context) error {
	s.timelineMu.Lock()
	defer s.timelineMu.Unlock()
	return s.index.ResetTimeline(ctx)
}
