// Package timeline produces audit events: a local simulator that writes synthetic events
// to the store, and a CloudTrail reader for live accounts.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
)

const (
	ScenarioIAMUser            = "iam-user"
	ScenarioS3PublicACL        = "s3-public-acl"
	ScenarioAdminAttachAttempt = "admin-attach-attempt"
	ScenarioCleanup            = "cleanup"

	simulatorSource = "cloudsentinel.local"
)

// ScenarioError rejects a scenario name or a disabled scenario.
type ScenarioError struct {
	Scenario string
	Reason   string
}

func (e *ScenarioError) Error() string {
	return fmt.Sprintf("scenario %q: %s", e.Scenario, e.Reason)
}

// SimulateResponse describes one simulator run.
type SimulateResponse struct {
	OperationID string    `json:"operation_id"`
	Scenario    string    `json:"scenario"`
	StartedAt   time.Time `json:"started_at"`
	Notes       string    `json:"notes,omitempty"`
}

// Simulator writes the events a scenario would leave in an audit log. It never touches a
// cloud account.
type Simulator struct {
	store  storage.Store
	cfg    config.Simulator
	logger hclog.Logger
	now    func() time.Time
}

func NewSimulator(store storage.Store, cfg config.Simulator, logger hclog.Logger) *Simulator {
	return &Simulator{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Prefix is the resource name prefix shared by every simulated resource.
func Prefix(projectTag string) string {
	return projectTag + "-sim-"
}

type step struct {
	offset       time.Duration
	name         string
	source       string
	resource     string
	resourceType string
}

type scenario struct {
	steps []step
	// gated scenarios run only with simulator.allow_admin_sim.
	gated bool
	notes string
}

var scenarios = map[string]scenario{
	ScenarioIAMUser: {
		steps: []step{
			{0, "CreateUser", "iam.amazonaws.com", "user-local", "AWS::IAM::User"},
			{900 * time.Millisecond, "PutUserPolicy", "iam.amazonaws.com", "user-local", "AWS::IAM::User"},
		},
	},
	ScenarioS3PublicACL: {
		steps: []step{
			{0, "CreateBucket", "s3.amazonaws.com", "bucket-local", "AWS::S3::Bucket"},
			{1200 * time.Millisecond, "PutBucketAcl", "s3.amazonaws.com", "bucket-local", "AWS::S3::Bucket"},
		},
	},
	ScenarioAdminAttachAttempt: {
		steps: []step{
			{0, "AttachUserPolicy", "iam.amazonaws.com", "user-local", "AWS::IAM::User"},
		},
		gated: true,
	},
	ScenarioCleanup: {
		steps: []step{
			{0, "Cleanup", simulatorSource, "", ""},
		},
		notes: "timeline cleared",
	},
}

// Scenarios lists the accepted scenario names in sorted order.
func Scenarios() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run appends the events of the named scenario. cleanup first clears the timeline and then
// records a single Cleanup marker.
func (s *Simulator) Run(ctx context.Context, name string) (SimulateResponse, error) {
	sc, ok := scenarios[name]
	if !ok {
		return SimulateResponse{}, &ScenarioError{Scenario: name, Reason: "unknown scenario"}
	}
	if sc.gated && !config.GetBoolValue(s.cfg, "AllowAdminSim", false) {
		return SimulateResponse{}, &ScenarioError{
			Scenario: name,
			Reason:   "admin attach simulation is disabled (set simulator.allow_admin_sim or SENTINEL_ALLOW_ADMIN_SIM=1)",
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return SimulateResponse{}, fmt.Errorf("failed to generate operation id: %w", err)
	}
	started := s.now()

	if name == ScenarioCleanup {
		if err := s.store.ResetTimeline(ctx); err != nil {
			return SimulateResponse{}, err
		}
	}
	if err := s.store.AppendEvents(ctx, s.events(sc, started), name, id.String()); err != nil {
		return SimulateResponse{}, err
	}

	s.logger.Info("scenario simulated", "scenario", name, "operation_id", id.String(), "events", len(sc.steps))
	return SimulateResponse{
		OperationID: id.String(),
		Scenario:    name,
		StartedAt:   started,
		Notes:       sc.notes,
	}, nil
}

func (s *Simulator) events(sc scenario, start time.Time) []model.TimelineEvent {
	prefix := Prefix(s.cfg.ProjectTag)
	user := config.SetThen(s.cfg.Owner, config.DefaultSimulatorOwner)
	events := make([]model.TimelineEvent, 0, len(sc.steps))
	for _, st := range sc.steps {
		resources := []model.Resource{}
		if st.resource != "" {
			resources = append(resources, model.Resource{ResourceName: prefix + st.resource, ResourceType: st.resourceType})
		}
		events = append(events, model.TimelineEvent{
			EventTime:   start.Add(st.offset),
			EventName:   st.name,
			EventSource: st.source,
			Username:    user,
			Resources:   resources,
		})
	}
	return events
}
