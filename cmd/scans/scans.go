package scans

import (
	"github.com/spf13/cobra"

	sentinelcmd "github.com/scan-io-git/cloudsentinel/internal/cmd"
	"github.com/scan-io-git/cloudsentinel/internal/report"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/errors"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/logger"
)

// RunOptionsScans holds the arguments for the scans subcommands.
type RunOptionsScans struct {
	Limit      int    `json:"limit,omitempty"`
	ScanID     string `json:"scan_id,omitempty"`
	Format     string `json:"format,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
}

// Global variables for configuration and command arguments
var (
	AppConfig         *config.Config
	serverURL         string
	scansOptions      RunOptionsScans
	exampleScansUsage = `  # Listing the ten newest snapshots
  sentinel scans list --limit 10

  # Printing a stored snapshot
  sentinel scans get 0190a7c2-7f7e-7cc1-9d0e-52a1c3f0b9e4

  # Printing the score of the newest snapshot
  sentinel scans latest

  # Exporting the newest snapshot as SARIF into a folder
  sentinel scans export latest --format sarif --output /path/to/reports

  # Listing snapshots kept by a running server
  sentinel --server http://127.0.0.1:8080 scans list`
)

// ScansCmd groups the commands that read stored snapshots.
var ScansCmd = &cobra.Command{
	Use:                   "scans [list|get|latest|export]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleScansUsage,
	Short:                 "Lists, prints and exports stored scan snapshots",
}

var listCmd = &cobra.Command{
	Use:                   "list [--limit N]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Lists stored snapshots, newest first",
	Args:                  cobra.NoArgs,
	RunE:                  runScansCommand(actionList),
}

var getCmd = &cobra.Command{
	Use:                   "get SCAN_ID",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Prints the metadata and the full snapshot of one scan",
	Args:                  cobra.ExactArgs(1),
	RunE:                  runScansCommand(actionGet),
}

var latestCmd = &cobra.Command{
	Use:                   "latest",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Prints the score of the newest snapshot",
	Args:                  cobra.NoArgs,
	RunE:                  runScansCommand(actionLatest),
}

var exportCmd = &cobra.Command{
	Use:                   "export {SCAN_ID | latest} [--format/-f json|sarif] [--output/-o PATH]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Exports a snapshot as JSON or SARIF",
	Args:                  cobra.ExactArgs(1),
	RunE:                  runScansCommand(actionExport),
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config, server string) {
	AppConfig = cfg
	serverURL = server
}

// runScansCommand builds the RunE of a scans subcommand.
func runScansCommand(action string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := logger.NewLogger(AppConfig, "core-scans")
		ctx := cmd.Context()

		if err := validateScansArgs(action, &scansOptions, args); err != nil {
			logger.Error("invalid scans arguments", "error", err)
			return errors.NewValidationError(scansOptions, err)
		}

		backend, err := sentinelcmd.Open(ctx, AppConfig, serverURL, logger)
		if err != nil {
			logger.Error("failed to open backend", "error", err)
			return sentinelcmd.Fail(scansOptions, err)
		}
		defer backend.Close()

		if err := runAction(ctx, backend, action, scansOptions, cmd.OutOrStdout()); err != nil {
			logger.Error("scans command failed", "action", action, "error", err)
			return sentinelcmd.Fail(scansOptions, err)
		}
		return nil
	}
}

// Initialize flags and subcommands for the scans command.
func init() {
	listCmd.Flags().IntVarP(&scansOptions.Limit, "limit", "l", storage.DefaultListLimit, "Number of snapshots to list (1-100).")
	exportCmd.Flags().StringVarP(&scansOptions.Format, "format", "f", report.FormatJSON, "Format of the exported report: json or sarif.")
	exportCmd.Flags().StringVarP(&scansOptions.OutputPath, "output", "o", "", "Path to the output file or directory. The report is printed to stdout when empty.")

	ScansCmd.AddCommand(listCmd, getCmd, latestCmd, exportCmd)
}
