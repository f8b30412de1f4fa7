// Package sqlite implements the embedded storage backend: one SQLite file holding the scan
// index, the snapshot bodies and the timeline.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pressly/goose/v3"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/files"
)

const (
	BackendName = "embedded"

	driverName  = "sqlite"
	busyTimeout = 5 * time.Second
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store is the embedded storage.Store.
type Store struct {
	db     *sql.DB
	path   string
	logger hclog.Logger
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path and applies pending migrations.
func Open(ctx context.Context, path string, logger hclog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if err := files.CreateFolderIfNotExists(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to prepare database folder: %w", err)
	}

	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}
	// A single connection serializes writers and keeps pragmas consistent.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %q: %w", path, err)
	}
	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("embedded store opened", "path", path)
	return &Store{db: db, path: path, logger: logger}, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + q.Encode()
}

func migrate(ctx context.Context, db *sql.DB, logger hclog.Logger) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		logger.Debug("migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

func (s *Store) Backend() string { return BackendName }

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.db.Close()
}

// PutScan writes the body and its index row in one transaction.
func (s *Store) PutScan(ctx context.Context, snapshot *model.Snapshot) (err error) {
	if err := storage.ValidateSnapshot(snapshot); err != nil {
		return err
	}
	body, err := storage.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	domains, err := json.Marshal(snapshot.Breakdown.DomainScores)
	if err != nil {
		return fmt.Errorf("failed to encode domain scores: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scans (scan_id, created_at, account_id, region, score, domain_scores, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snapshot.ScanID,
		storage.TimeKey(snapshot.CreatedAt),
		snapshot.AccountID,
		snapshot.Region,
		snapshot.Score,
		string(domains),
		string(body),
	)
	// scan_id is the only constrained column written here.
	if isConstraint(err) {
		return fmt.Errorf("scan %s: %w", snapshot.ScanID, storage.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert scan %s: %w", snapshot.ScanID, err)
	}
	return nil
}

func isConstraint(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	// Extended codes carry the primary result code in the low byte.
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func (s *Store) ListScans(ctx context.Context, limit int) ([]model.Meta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scan_id, created_at, account_id, region, score, domain_scores
		 FROM scans ORDER BY created_at DESC, scan_id DESC LIMIT ?`,
		storage.ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	metas := []model.Meta{}
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scans: %w", err)
	}
	return metas, nil
}

func (s *Store) GetScan(ctx context.Context, scanID string) (model.Meta, *model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT scan_id, created_at, account_id, region, score, domain_scores, body
		 FROM scans WHERE scan_id = ?`,
		scanID,
	)

	var (
		meta              model.Meta
		createdAt, domain string
		body              string
	)
	err := row.Scan(&meta.ScanID, &createdAt, &meta.AccountID, &meta.Region, &meta.Score, &domain, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Meta{}, nil, storage.ErrNotFound
	}
	if err != nil {
		return model.Meta{}, nil, fmt.Errorf("failed to get scan %s: %w", scanID, err)
	}
	if err := fillMeta(&meta, createdAt, domain); err != nil {
		return model.Meta{}, nil, err
	}

	snapshot, err := storage.DecodeSnapshot([]byte(body))
	if err != nil {
		return model.Meta{}, nil, fmt.Errorf("scan %s: %w", scanID, err)
	}
	return meta, snapshot, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeta(row rowScanner) (model.Meta, error) {
	var (
		meta              model.Meta
		createdAt, domain string
	)
	if err := row.Scan(&meta.ScanID, &createdAt, &meta.AccountID, &meta.Region, &meta.Score, &domain); err != nil {
		return model.Meta{}, fmt.Errorf("failed to scan row: %w", err)
	}
	if err := fillMeta(&meta, createdAt, domain); err != nil {
		return model.Meta{}, err
	}
	return meta, nil
}

func fillMeta(meta *model.Meta, createdAt, domain string) error {
	t, err := storage.ParseTimeKey(createdAt)
	if err != nil {
		return err
	}
	meta.CreatedAt = t
	meta.DomainScores = map[string]int{}
	if err := json.Unmarshal([]byte(domain), &meta.DomainScores); err != nil {
		return fmt.Errorf("scan %s has malformed domain scores: %w", meta.ScanID, err)
	}
	return nil
}

// AppendEvents inserts the events in one transaction; seq keeps insertion order among
// events with equal times.
func (s *Store) AppendEvents(ctx context.Context, events []model.TimelineEvent, scenario, operationID string) (err error) {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	for _, e := range storage.Stamp(events, scenario, operationID) {
		resources, mErr := json.Marshal(e.Resources)
		if mErr != nil {
			return fmt.Errorf("failed to encode resources of %s: %w", e.EventName, mErr)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO timeline (event_time, event_name, event_source, username, resources, scenario, operation_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			storage.TimeKey(e.EventTime), e.EventName, e.EventSource, e.Username, string(resources), e.Scenario, e.OperationID,
		)
		if err != nil {
			return fmt.Errorf("failed to append event %s: %w", e.EventName, err)
		}
	}
	return nil
}

// ListTimeline returns the newest limit events at or after since, oldest first.
func (s *Store) ListTimeline(ctx context.Context, since time.Time, limit int) ([]model.TimelineEvent, error) {
	lower := ""
	if !since.IsZero() {
		lower = storage.TimeKey(since)
	}
	if limit <= 0 {
		limit = storage.DefaultTimelineLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_time, event_name, event_source, username, resources, scenario, operation_id FROM (
		     SELECT * FROM timeline WHERE event_time >= ? ORDER BY event_time DESC, seq DESC LIMIT ?
		 ) ORDER BY event_time ASC, seq ASC`,
		lower, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeline: %w", err)
	}
	defer rows.Close()

	events := []model.TimelineEvent{}
	for rows.Next() {
		var (
			e                    model.TimelineEvent
			eventTime, resources string
		)
		if err := rows.Scan(&eventTime, &e.EventName, &e.EventSource, &e.Username, &resources, &e.Scenario, &e.OperationID); err != nil {
			return nil, fmt.Errorf("failed to scan timeline row: %w", err)
		}
		if e.EventTime, err = storage.ParseTimeKey(eventTime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(resources), &e.Resources); err != nil {
			return nil, fmt.Errorf("event %s has malformed resources: %w", e.EventName, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read timeline: %w", err)
	}
	return events, nil
}

func (s *Store) ResetTimeline(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM timeline`); err != nil {
		return fmt.Errorf("failed to reset timeline: %w", err)
	}
	return nil
}
