// Package scanner runs one check set, scores it and persists the snapshot.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/cloudsentinel/internal/checks"
	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/scoring"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
)

// FallbackNote is recorded when live mode was requested but the account could not be reached.
const FallbackNote = "live scanning is enabled but AWS credentials were not detected; ran offline checks instead."

// EnvFactory builds the live environment for a region.
type EnvFactory func(region string) (checks.Environment, error)

// Scanner selects the check set, runs it and stores the result.
type Scanner struct {
	cfg        *config.Config
	envFactory EnvFactory
	store      storage.Store
	logger     hclog.Logger

	live  *checks.Registry[checks.Environment]
	local *checks.Registry[checks.Timeline]
	now   func() time.Time
}

func New(cfg *config.Config, envFactory EnvFactory, store storage.Store, logger hclog.Logger) *Scanner {
	return &Scanner{
		cfg:        cfg,
		envFactory: envFactory,
		store:      store,
		logger:     logger,
		live:       checks.LiveRegistry(),
		local:      checks.LocalRegistry(),
		now:        scanTime,
	}
}

// scanTime is truncated to microseconds, the precision Postgres keeps, so every backend
// returns the same created_at.
func scanTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Run performs one scan. Work continues on a context detached from ctx, so a caller that
// stops waiting still gets the snapshot persisted. A storage failure fails the scan.
func (s *Scanner) Run(ctx context.Context) (*model.Snapshot, error) {
	ctx = context.WithoutCancel(ctx)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate scan id: %w", err)
	}
	snapshot := &model.Snapshot{
		ScanID:    id.String(),
		CreatedAt: s.now(),
		Region:    s.cfg.AWS.Region,
	}
	logger := s.logger.With("scan_id", snapshot.ScanID)

	env := &model.Environment{Mode: config.ModeLocal, Enabled: config.LiveEnabled(s.cfg)}
	var results []model.Result

	liveEnv, account, ok := s.resolveLive(ctx, logger)
	switch {
	case ok:
		env.Mode = config.ModeLive
		env.AccountID = account
		snapshot.AccountID = account
		logger.Info("running live checks", "account_id", account, "checks", s.live.Len())
		results = s.live.Run(ctx, liveEnv, snapshot.Region, s.runOptions(logger))
	default:
		if env.Enabled {
			env.Note = FallbackNote
		}
		results, err = s.runLocal(ctx, snapshot.Region, logger)
		if err != nil {
			return nil, err
		}
	}

	snapshot.Results = results
	snapshot.Score, snapshot.Breakdown = scoring.Compute(results)
	snapshot.Breakdown.Environment = env

	if err := s.store.PutScan(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to persist scan %s: %w", snapshot.ScanID, err)
	}
	logger.Info("scan completed", "mode", env.Mode, "score", snapshot.Score)
	return snapshot, nil
}

// resolveLive returns a usable environment when live mode is configured and the caller
// identity resolves.
func (s *Scanner) resolveLive(ctx context.Context, logger hclog.Logger) (checks.Environment, string, bool) {
	if !config.LiveEnabled(s.cfg) {
		return nil, "", false
	}
	if s.envFactory == nil {
		logger.Warn("live mode configured without an environment factory")
		return nil, "", false
	}
	env, err := s.envFactory(s.cfg.AWS.Region)
	if err != nil {
		logger.Warn("unable to build aws environment, falling back to offline checks", "error", err)
		return nil, "", false
	}
	idCtx, cancel := context.WithTimeout(ctx, s.identityTimeout())
	defer cancel()
	account, err := env.ResolveIdentity(idCtx)
	if err != nil {
		logger.Warn("unable to resolve aws identity, falling back to offline checks", "error", err)
		return nil, "", false
	}
	return env, account, true
}

// identityTimeout bounds the STS call, which runs on the detached scan context.
func (s *Scanner) identityTimeout() time.Duration {
	if s.cfg.Scan.CheckTimeout > 0 {
		return s.cfg.Scan.CheckTimeout
	}
	return config.DefaultCheckTimeout
}

func (s *Scanner) runLocal(ctx context.Context, region string, logger hclog.Logger) ([]model.Result, error) {
	since := s.now().Add(-s.cfg.Scan.TimelineWindow)
	events, err := s.store.ListTimeline(ctx, since, s.cfg.Scan.TimelineLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline: %w", err)
	}
	logger.Info("running offline checks", "events", len(events), "checks", s.local.Len())
	tl := checks.Timeline{Events: events, Since: since, Backend: s.store.Backend()}
	return s.local.Run(ctx, tl, region, s.runOptions(logger)), nil
}

func (s *Scanner) runOptions(logger hclog.Logger) checks.RunOptions {
	return checks.RunOptions{
		Concurrency: s.cfg.Scan.Concurrency,
		Timeout:     s.cfg.Scan.CheckTimeout,
		Logger:      logger,
	}
}

// Latest returns the newest stored Meta, or nil when nothing has been scanned yet.
func Latest(ctx context.Context, store storage.Store) (*model.Meta, error) {
	metas, err := store.ListScans(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, nil
	}
	return &metas[0], nil
}
