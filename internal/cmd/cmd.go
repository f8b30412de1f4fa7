// Package cmd gives CLI commands one surface over the local stores and a remote server.
package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/cloudsentinel/internal/apiclient"
	"github.com/scan-io-git/cloudsentinel/internal/bootstrap"
	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/policy"
	"github.com/scan-io-git/cloudsentinel/internal/scanner"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
	"github.com/scan-io-git/cloudsentinel/internal/timeline"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
	sentinelerrors "github.com/scan-io-git/cloudsentinel/pkg/shared/errors"
)

// Mode constants
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// TimelineLimit caps the events a command prints, matching the server endpoint.
const TimelineLimit = 200

// Backend is implemented by the local services and by the API client.
type Backend interface {
	Scan(ctx context.Context) (*model.Snapshot, error)
	ListScans(ctx context.Context, limit int) ([]model.Meta, error)
	GetScan(ctx context.Context, scanID string) (model.Meta, *model.Snapshot, error)
	Latest(ctx context.Context) (*model.Meta, error)
	Simulate(ctx context.Context, scenario string) (timeline.SimulateResponse, error)
	Timeline(ctx context.Context, since time.Time) ([]model.TimelineEvent, error)
	ValidatePolicy(ctx context.Context, policyJSON, policyType string) (policy.Response, error)
	Close() error
}

// DetermineMode picks remote mode when a server address is given.
func DetermineMode(serverURL string) string {
	if serverURL != "" {
		return ModeRemote
	}
	return ModeLocal
}

// ExitCodeFor maps rejected input, local or remote, to the validation exit code.
func ExitCodeFor(err error) int {
	var scenarioErr *timeline.ScenarioError
	var inputErr *policy.InputError
	switch {
	case errors.As(err, &scenarioErr), errors.As(err, &inputErr), apiclient.IsBadRequest(err):
		return sentinelerrors.ExitCodeValidation
	default:
		return sentinelerrors.ExitCodeFailure
	}
}

// Fail wraps err into a CommandError carrying the command arguments.
func Fail(args interface{}, err error) error {
	return sentinelerrors.NewCommandError(args, nil, err, ExitCodeFor(err))
}

// Open returns the backend for the mode implied by serverURL.
func Open(ctx context.Context, cfg *config.Config, serverURL string, logger hclog.Logger) (Backend, error) {
	if DetermineMode(serverURL) == ModeRemote {
		return &Remote{Client: apiclient.New(serverURL, logger.Named("apiclient"), cfg)}, nil
	}

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewLocal(store, bootstrap.NewScanner(cfg, store, logger), bootstrap.NewSimulator(cfg, store, logger), bootstrap.NewDoctor(cfg, logger)), nil
}

// Remote forwards every call to a sentinel server.
type Remote struct {
	*apiclient.Client
}

func (r *Remote) Close() error { return nil }

type scanRunner interface {
	Run(ctx context.Context) (*model.Snapshot, error)
}

type scenarioRunner interface {
	Run(ctx context.Context, scenario string) (timeline.SimulateResponse, error)
}

type policyValidator interface {
	Validate(ctx context.Context, policyJSON, policyType string) (policy.Response, error)
}

// Local serves commands from the configured store in-process.
type Local struct {
	store     storage.Store
	scanner   scanRunner
	simulator scenarioRunner
	doctor    policyValidator
}

func NewLocal(store storage.Store, s scanRunner, sim scenarioRunner, doctor policyValidator) *Local {
	return &Local{store: store, scanner: s, simulator: sim, doctor: doctor}
}

func (l *Local) Scan(ctx context.Context) (*model.Snapshot, error) {
	return l.scanner.Run(ctx)
}

func (l *Local) ListScans(ctx context.Context, limit int) ([]model.Meta, error) {
	return l.store.ListScans(ctx, limit)
}

func (l *Local) GetScan(ctx context.Context, scanID string) (model.Meta, *model.Snapshot, error) {
	return l.store.GetScan(ctx, scanID)
}

func (l *Local) Latest(ctx context.Context) (*model.Meta, error) {
	return scanner.Latest(ctx, l.store)
}

func (l *Local) Simulate(ctx context.Context, scenario string) (timeline.SimulateResponse, error) {
	return l.simulator.Run(ctx, scenario)
}

func (l *Local) Timeline(ctx context.Context, since time.Time) ([]model.TimelineEvent, error) {
	return l.store.ListTimeline(ctx, since, TimelineLimit)
}

func (l *Local) ValidatePolicy(ctx context.Context, policyJSON, policyType string) (policy.Response, error) {
	return l.doctor.Validate(ctx, policyJSON, policyType)
}

func (l *Local) Close() error {
	return l.store.Close()
}
