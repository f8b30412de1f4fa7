package scans

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/scan-io-git/cloudsentinel/cmd/version"
	sentinelcmd "github.com/scan-io-git/cloudsentinel/internal/cmd"
	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/report"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
	"github.com/scan-io-git/cloudsentinel/pkg/shared"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/files"
)

// Subcommand actions
const (
	actionList   = "list"
	actionGet    = "get"
	actionLatest = "latest"
	actionExport = "export"

	latestAlias = "latest"
)

// scanDetail is what the get subcommand prints.
type scanDetail struct {
	Meta     model.Meta      `json:"meta"`
	Snapshot *model.Snapshot `json:"snapshot"`
}

// exportResult is printed when a report was written to a file.
type exportResult struct {
	ScanID string `json:"scan_id"`
	Format string `json:"format"`
	Path   string `json:"path"`
}

func runAction(ctx context.Context, backend sentinelcmd.Backend, action string, options RunOptionsScans, w io.Writer) error {
	switch action {
	case actionList:
		metas, err := backend.ListScans(ctx, options.Limit)
		if err != nil {
			return err
		}
		return shared.PrintJSON(w, metas)
	case actionGet:
		meta, snapshot, err := backend.GetScan(ctx, options.ScanID)
		if err != nil {
			return err
		}
		return shared.PrintJSON(w, scanDetail{Meta: meta, Snapshot: snapshot})
	case actionLatest:
		meta, err := backend.Latest(ctx)
		if err != nil {
			return err
		}
		if meta == nil {
			return fmt.Errorf("no scans stored yet: %w", storage.ErrNotFound)
		}
		return shared.PrintJSON(w, meta)
	case actionExport:
		return exportScan(ctx, backend, options, w)
	default:
		return fmt.Errorf("unknown scans action %q", action)
	}
}

// exportScan renders a snapshot and writes it to options.OutputPath, or to w when no path is set.
func exportScan(ctx context.Context, backend sentinelcmd.Backend, options RunOptionsScans, w io.Writer) error {
	scanID := options.ScanID
	if scanID == latestAlias {
		meta, err := backend.Latest(ctx)
		if err != nil {
			return err
		}
		if meta == nil {
			return fmt.Errorf("no scans stored yet: %w", storage.ErrNotFound)
		}
		scanID = meta.ScanID
	}

	_, snapshot, err := backend.GetScan(ctx, scanID)
	if err != nil {
		return err
	}

	if options.OutputPath == "" {
		return report.Write(w, snapshot, options.Format, version.CoreVersion)
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, snapshot, options.Format, version.CoreVersion); err != nil {
		return err
	}

	path, folder, err := files.DetermineFileFullPath(options.OutputPath, scanID+report.Extension(options.Format))
	if err != nil {
		return err
	}
	if err := files.CreateFolderIfNotExists(folder); err != nil {
		return err
	}
	if err := files.WriteJsonFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write report to %q: %w", path, err)
	}
	return shared.PrintJSON(w, exportResult{ScanID: scanID, Format: options.Format, Path: path})
}
