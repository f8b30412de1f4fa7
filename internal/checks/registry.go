package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/pkg/shared"
)

// Registry is an ordered, immutable set of checks. Order only affects display.
type Registry[E any] struct {
	checks []Check[E]
}

// NewRegistry validates every definition and rejects duplicate ids.
func NewRegistry[E any](checks ...Check[E]) (*Registry[E], error) {
	seen := make(map[string]struct{}, len(checks))
	for _, c := range checks {
		def := c.Definition()
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, ok := seen[def.ID]; ok {
			return nil, fmt.Errorf("duplicate check id %q", def.ID)
		}
		seen[def.ID] = struct{}{}
	}
	return &Registry[E]{checks: append([]Check[E](nil), checks...)}, nil
}

func mustRegistry[E any](checks ...Check[E]) *Registry[E] {
	r, err := NewRegistry(checks...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry[E]) Len() int {
	return len(r.checks)
}

// Definitions returns the definitions in registry order.
func (r *Registry[E]) Definitions() []Definition {
	defs := make([]Definition, len(r.checks))
	for i, c := range r.checks {
		defs[i] = c.Definition()
	}
	return defs
}

// RunOptions bound a registry run.
type RunOptions struct {
	Concurrency int
	Timeout     time.Duration
	Logger      hclog.Logger
}

// Run evaluates every check against env with at most opts.Concurrency checks in flight.
// A check that exceeds opts.Timeout is quarantined as an error result. Results come back
// in registry order whatever the completion order was.
func (r *Registry[E]) Run(ctx context.Context, env E, region string, opts RunOptions) []model.Result {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	results := make([]model.Result, len(r.checks))
	shared.ForEveryWithBoundedGoroutines(opts.Concurrency, r.checks, func(i int, c Check[E]) {
		def := c.Definition()
		start := time.Now()
		results[i] = evaluate(ctx, c, env, region, opts.Timeout)
		logger.Debug("check finished",
			"id", def.ID,
			"status", results[i].Status,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
		if results[i].Status == model.StatusError {
			logger.Warn("check quarantined", "id", def.ID, "error", results[i].Evidence["error"])
		}
	})
	return results
}

func evaluate[E any](ctx context.Context, c Check[E], env E, region string, timeout time.Duration) model.Result {
	def := c.Definition()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan model.Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- def.ErrorResult(fmt.Errorf("check panicked: %v", rec))
			}
		}()
		done <- c.Evaluate(ctx, env, region)
	}()

	select {
	case r := <-done:
		if err := r.Validate(); err != nil {
			return def.ErrorResult(fmt.Errorf("invalid result: %w", err))
		}
		return r
	case <-ctx.Done():
		if timeout > 0 && ctx.Err() == context.DeadlineExceeded {
			return def.ErrorResult(fmt.Errorf("check timed out after %s", timeout))
		}
		return def.ErrorResult(fmt.Errorf("check cancelled: %w", ctx.Err()))
	}
}
