package timeline

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/cloudsentinel/internal/bootstrap"
	sentinelcmd "github.com/scan-io-git/cloudsentinel/internal/cmd"
	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/pkg/shared"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/errors"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/logger"
)

// Timeline sources
const (
	SourceLocal      = "local"
	SourceCloudTrail = "cloudtrail"
)

// RunOptionsTimeline holds the arguments for the timeline command.
type RunOptionsTimeline struct {
	Since  string `json:"since,omitempty"`
	Source string `json:"source"`

	since time.Time
}

// Global variables for configuration and command arguments
var (
	AppConfig            *config.Config
	serverURL            string
	timelineOptions      RunOptionsTimeline
	exampleTimelineUsage = `  # Printing the recorded local timeline
  sentinel timeline

  # Printing events of the last 24 hours
  sentinel timeline --since 24h

  # Printing events after an RFC 3339 timestamp
  sentinel timeline --since 2025-06-01T00:00:00Z

  # Reading simulator resources from the account's CloudTrail
  sentinel timeline --source cloudtrail --since 1h`
)

// TimelineCmd represents the timeline command.
var TimelineCmd = &cobra.Command{
	Use:                   "timeline [--since TIME|DURATION] [--source local|cloudtrail]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleTimelineUsage,
	Short:                 "Prints timeline events, oldest first",
	Args:                  cobra.NoArgs,
	RunE:                  runTimelineCommand,
}

// eventLookup is satisfied by the local backends and the CloudTrail source.
type eventLookup func(ctx context.Context, since time.Time) ([]model.TimelineEvent, error)

// Init initializes the global configuration variable.
func Init(cfg *config.Config, server string) {
	AppConfig = cfg
	serverURL = server
}

// runTimelineCommand executes the timeline command.
func runTimelineCommand(cmd *cobra.Command, args []string) error {
	logger := logger.NewLogger(AppConfig, "core-timeline")
	ctx := cmd.Context()

	if err := validateTimelineArgs(&timelineOptions, sentinelcmd.DetermineMode(serverURL), time.Now()); err != nil {
		logger.Error("invalid timeline arguments", "error", err)
		return errors.NewValidationError(timelineOptions, err)
	}

	var lookup eventLookup
	if timelineOptions.Source == SourceCloudTrail {
		source, err := bootstrap.NewCloudTrailSource(AppConfig)
		if err != nil {
			logger.Error("failed to create cloudtrail source", "error", err)
			return sentinelcmd.Fail(timelineOptions, err)
		}
		lookup = source.Lookup
	} else {
		backend, err := sentinelcmd.Open(ctx, AppConfig, serverURL, logger)
		if err != nil {
			logger.Error("failed to open backend", "error", err)
			return sentinelcmd.Fail(timelineOptions, err)
		}
		defer backend.Close()
		lookup = backend.Timeline
	}

	if err := runTimeline(ctx, lookup, timelineOptions, cmd.OutOrStdout()); err != nil {
		logger.Error("timeline command failed", "source", timelineOptions.Source, "error", err)
		return sentinelcmd.Fail(timelineOptions, err)
	}
	return nil
}

func runTimeline(ctx context.Context, lookup eventLookup, options RunOptionsTimeline, w io.Writer) error {
	events, err := lookup(ctx, options.since)
	if err != nil {
		return err
	}
	if events == nil {
		events = []model.TimelineEvent{}
	}
	return shared.PrintJSON(w, events)
}

// Initialize flags for the timeline command.
func init() {
	TimelineCmd.Flags().StringVar(&timelineOptions.Since, "since", "", "Only print events at or after this RFC 3339 time, or within this duration before now (e.g. 24h).")
	TimelineCmd.Flags().StringVar(&timelineOptions.Source, "source", SourceLocal, "Where to read events from: local or cloudtrail.")
	TimelineCmd.Flags().BoolP("help", "h", false, "Show help for the timeline command.")
}
