package split

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
)

const (
	defaultMaxConns   = 10
	healthCheckPeriod = 30 * time.Second

	pgUniqueViolation = "23505"
)

//go:embed migrations/*.sql
var postgresMigrations embed.FS

// PostgresIndex keeps Metas and the timeline in PostgreSQL.
type PostgresIndex struct {
	pool   *pgxpool.Pool
	logger hclog.Logger
}

var _ Index = (*PostgresIndex)(nil)

// ConnectPostgres opens a pool, checks connectivity and applies pending migrations.
func ConnectPostgres(ctx context.Context, dsn string, maxConns int32, logger hclog.Logger) (*PostgresIndex, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	cfg.MaxConns = defaultMaxConns
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.HealthCheckPeriod = healthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	idx := &PostgresIndex{pool: pool, logger: logger}
	if err := idx.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PostgresIndex) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(postgresMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		p.logger.Debug("migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

func (p *PostgresIndex) Name() string { return "postgres" }

func (p *PostgresIndex) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresIndex) PutMeta(ctx context.Context, meta model.Meta) error {
	domains, err := json.Marshal(meta.DomainScores)
	if err != nil {
		return fmt.Errorf("failed to encode domain scores: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO scans (scan_id, created_at, account_id, region, score, domain_scores, body_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		meta.ScanID, meta.CreatedAt.UTC(), meta.AccountID, meta.Region, meta.Score, domains, meta.BodyKey,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("scan %s: %w", meta.ScanID, storage.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert meta %s: %w", meta.ScanID, err)
	}
	return nil
}

const metaColumns = `scan_id, created_at, account_id, region, score, domain_scores, body_key`

func (p *PostgresIndex) ListMetas(ctx context.Context, limit int) ([]model.Meta, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+metaColumns+` FROM scans ORDER BY created_at DESC, scan_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	metas := []model.Meta{}
	for rows.Next() {
		meta, err := scanPgMeta(rows)
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

func (p *PostgresIndex) GetMeta(ctx context.Context, scanID string) (model.Meta, error) {
	meta, err := scanPgMeta(p.pool.QueryRow(ctx, `SELECT `+metaColumns+` FROM scans WHERE scan_id = $1`, scanID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Meta{}, storage.ErrNotFound
	}
	return meta, err
}

func scanPgMeta(row pgx.Row) (model.Meta, error) {
	var (
		meta    model.Meta
		domains []byte
	)
	if err := row.Scan(&meta.ScanID, &meta.CreatedAt, &meta.AccountID, &meta.Region, &meta.Score, &domains, &meta.BodyKey); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Meta{}, err
		}
		return model.Meta{}, fmt.Errorf("failed to scan meta: %w", err)
	}
	meta.CreatedAt = meta.CreatedAt.UTC()
	meta.DomainScores = map[string]int{}
	if err := json.Unmarshal(domains, &meta.DomainScores); err != nil {
		return model.Meta{}, fmt.Errorf("scan %s has malformed domain scores: %w", meta.ScanID, err)
	}
	return meta, nil
}

func (p *PostgresIndex) AppendEvents(ctx context.Context, events []model.TimelineEvent) (err error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	for _, e := range events {
		resources, mErr := json.Marshal(e.Resources)
		if mErr != nil {
			return fmt.Errorf("failed to encode resources of %s: %w", e.EventName, mErr)
		}
		if _, err = tx.Exec(ctx,
			`INSERT INTO timeline (event_time, event_name, event_source, username, resources, scenario, operation_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.EventTime, e.EventName, e.EventSource, e.Username, resources, e.Scenario, e.OperationID,
		); err != nil {
			return fmt.Errorf("failed to append event %s: %w", e.EventName, err)
		}
	}
	return nil
}

func (p *PostgresIndex) ListTimeline(ctx context.Context, since time.Time, limit int) ([]model.TimelineEvent, error) {
	query := `SELECT event_time, event_name, event_source, username, resources, scenario, operation_id FROM (
	              SELECT * FROM timeline %s ORDER BY event_time DESC, seq DESC LIMIT $1
	          ) newest ORDER BY event_time ASC, seq ASC`
	args := []any{limit}
	where := ""
	if !since.IsZero() {
		where = "WHERE event_time >= $2"
		args = append(args, since.UTC())
	}

	rows, err := p.pool.Query(ctx, fmt.Sprintf(query, where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeline: %w", err)
	}
	defer rows.Close()

	events := []model.TimelineEvent{}
	for rows.Next() {
		var (
			e         model.TimelineEvent
			resources []byte
		)
		if err := rows.Scan(&e.EventTime, &e.EventName, &e.EventSource, &e.Username, &resources, &e.Scenario, &e.OperationID); err != nil {
			return nil, fmt.Errorf("failed to scan timeline row: %w", err)
		}
		e.EventTime = e.EventTime.UTC()
		if err := json.Unmarshal(resources, &e.Resources); err != nil {
			return nil, fmt.Errorf("event %s has malformed resources: %w", e.EventName, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read timeline: %w", err)
	}
	return events, nil
}

func (p *PostgresIndex) ResetTimeline(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM timeline`); err != nil {
		return fmt.Errorf("failed to reset timeline: %w", err)
	}
	return nil
}
