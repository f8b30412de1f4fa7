package simulate

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	sentinelcmd "github.com/scan-io-git/cloudsentinel/internal/cmd"
	"github.com/scan-io-git/cloudsentinel/internal/timeline"
	"github.com/scan-io-git/cloudsentinel/pkg/shared"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/errors"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/logger"
)

// RunOptionsSimulate holds the arguments for the simulate command.
type RunOptionsSimulate struct {
	Scenario string `json:"scenario"`
}

// Global variables for configuration and command arguments
var (
	AppConfig            *config.Config
	serverURL            string
	exampleSimulateUsage = `  # Recording a simulated IAM user creation into the local timeline
  sentinel simulate iam-user

  # Clearing every recorded event
  sentinel simulate cleanup

  # Running a scenario on a running server
  sentinel --server http://127.0.0.1:8080 simulate s3-public-acl`
)

// SimulateCmd represents the simulate command.
var SimulateCmd = &cobra.Command{
	Use:                   "simulate SCENARIO",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleSimulateUsage,
	Short:                 "Records the events of a simulated scenario into the local timeline",
	Long: fmt.Sprintf(`Records the events of a simulated scenario into the local timeline.

List of available scenarios:
  %s`, strings.Join(timeline.Scenarios(), "\n  ")),
	RunE: runSimulateCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config, server string) {
	AppConfig = cfg
	serverURL = server
}

// runSimulateCommand executes the simulate command.
func runSimulateCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	logger := logger.NewLogger(AppConfig, "core-simulate")
	ctx := cmd.Context()

	options := RunOptionsSimulate{}
	if err := validateSimulateArgs(&options, args); err != nil {
		logger.Error("invalid simulate arguments", "error", err)
		return errors.NewValidationError(options, err)
	}

	backend, err := sentinelcmd.Open(ctx, AppConfig, serverURL, logger)
	if err != nil {
		logger.Error("failed to open backend", "error", err)
		return sentinelcmd.Fail(options, err)
	}
	defer backend.Close()

	if err := runSimulate(ctx, backend, options, cmd.OutOrStdout()); err != nil {
		logger.Error("simulate command failed", "scenario", options.Scenario, "error", err)
		return sentinelcmd.Fail(options, err)
	}

	logger.Info("simulate command completed successfully", "scenario", options.Scenario)
	return nil
}

// validateSimulateArgs validates the arguments provided to the simulate command.
// Whether a known scenario is allowed to run is decided by the simulator.
func validateSimulateArgs(options *RunOptionsSimulate, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("exactly one scenario must be specified")
	}
	options.Scenario = strings.TrimSpace(args[0])
	if options.Scenario == "" {
		return fmt.Errorf("the scenario name is empty")
	}
	return nil
}

func runSimulate(ctx context.Context, backend sentinelcmd.Backend, options RunOptionsSimulate, w io.Writer) error {
	resp, err := backend.Simulate(ctx, options.Scenario)
	if err != nil {
		return err
	}
	return shared.PrintJSON(w, resp)
}
