package scan

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	sentinelcmd "github.com/scan-io-git/cloudsentinel/internal/cmd"
	"github.com/scan-io-git/cloudsentinel/pkg/shared"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/logger"
)

// RunOptionsScan holds the arguments for the scan command.
type RunOptionsScan struct {
	Summary bool `json:"summary"`
}

// Global variables for configuration and command arguments
var (
	AppConfig        *config.Config
	serverURL        string
	scanOptions      RunOptionsScan
	exampleScanUsage = `  # Running a scan with the configured mode and storing the snapshot
  sentinel scan

  # Printing only the score and domain scores of the new snapshot
  sentinel scan --summary

  # Triggering a scan on a running server
  sentinel --server http://127.0.0.1:8080 scan`
)

// ScanCmd represents the scan command.
var ScanCmd = &cobra.Command{
	Use:                   "scan [--summary]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleScanUsage,
	Short:                 "Runs every posture check, scores the results and stores the snapshot",
	Long: `Runs every posture check, scores the results and stores the snapshot.

Live AWS checks are used when scan.mode is "live" and credentials resolve to an account.
Otherwise the offline checks evaluate the local activity timeline.`,
	Args: cobra.NoArgs,
	RunE: runScanCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config, server string) {
	AppConfig = cfg
	serverURL = server
}

// runScanCommand executes the scan command.
func runScanCommand(cmd *cobra.Command, args []string) error {
	logger := logger.NewLogger(AppConfig, "core-scan")
	ctx := cmd.Context()

	backend, err := sentinelcmd.Open(ctx, AppConfig, serverURL, logger)
	if err != nil {
		logger.Error("failed to open backend", "error", err)
		return sentinelcmd.Fail(scanOptions, err)
	}
	defer backend.Close()

	if err := runScan(ctx, backend, scanOptions, cmd.OutOrStdout()); err != nil {
		logger.Error("scan command failed", "error", err)
		return sentinelcmd.Fail(scanOptions, err)
	}

	logger.Info("scan command completed successfully")
	return nil
}

func runScan(ctx context.Context, backend sentinelcmd.Backend, options RunOptionsScan, w io.Writer) error {
	snapshot, err := backend.Scan(ctx)
	if err != nil {
		return err
	}
	if options.Summary {
		return shared.PrintJSON(w, snapshot.Meta())
	}
	return shared.PrintJSON(w, snapshot)
}

// Initialize flags for the scan command.
func init() {
	ScanCmd.Flags().BoolVar(&scanOptions.Summary, "summary", false, "Print only the scan metadata instead of the full snapshot.")
	ScanCmd.Flags().BoolP("help", "h", false, "Show help for the scan command.")
}
