package split

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scan-io-git/cloudsentinel/internal/storage"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/files"
)

// FilesystemBlobs keeps bodies as files inside one folder. Keys are file names.
type FilesystemBlobs struct {
	folder string
}

var _ BlobStore = (*FilesystemBlobs)(nil)

func NewFilesystemBlobs(folder string) (*FilesystemBlobs, error) {
	folder, err := files.ExpandPath(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to expand artifacts folder: %w", err)
	}
	if err := files.CreateFolderIfNotExists(folder); err != nil {
		return nil, fmt.Errorf("failed to create artifacts folder: %w", err)
	}
	return &FilesystemBlobs{folder: folder}, nil
}

func (b *FilesystemBlobs) Name() string { return "filesystem" }

func (b *FilesystemBlobs) path(key string) (string, error) {
	return files.EnsureWithinRoot(b.folder, filepath.Join(b.folder, key))
}

// Put writes into a temp file in the same folder and renames it into place, so readers
// never see a partial body.
func (b *FilesystemBlobs) Put(ctx context.Context, name string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, err := b.path(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(b.folder, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("failed to move body into place: %w", err)
	}
	return name, nil
}

func (b *FilesystemBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", target, err)
	}
	return data, nil
}

func (b *FilesystemBlobs) Delete(ctx context.Context, key string) error {
	target, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", target, err)
	}
	return nil
}
