package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/cloudsentinel/cmd/policy"
	"github.com/scan-io-git/cloudsentinel/cmd/scan"
	"github.com/scan-io-git/cloudsentinel/cmd/scans"
	"github.com/scan-io-git/cloudsentinel/cmd/serve"
	"github.com/scan-io-git/cloudsentinel/cmd/simulate"
	"github.com/scan-io-git/cloudsentinel/cmd/timeline"
	"github.com/scan-io-git/cloudsentinel/cmd/version"
	"github.com/scan-io-git/cloudsentinel/pkg/shared"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/errors"
)

var (
	cfgFile   string
	serverURL string
	AppConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:                   "sentinel [command]",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		Short:                 "Sentinel scores the security posture of an AWS account.",
		Long: `Sentinel runs posture checks against an AWS account, or against a locally simulated
activity timeline when no credentials are available, and keeps every scored snapshot.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to the config file (default is config.yml).")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Address of a running sentinel server, e.g. http://127.0.0.1:8080. Commands run locally when empty.")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.NewValidationError(nil, err)
	})

	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(scan.ScanCmd)
	rootCmd.AddCommand(scans.ScansCmd)
	rootCmd.AddCommand(simulate.SimulateCmd)
	rootCmd.AddCommand(timeline.TimelineCmd)
	rootCmd.AddCommand(policy.PolicyCmd)
	rootCmd.AddCommand(serve.ServeCmd)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		return reportFailure(os.Stderr, err)
	}
	return 0
}

// reportFailure prints err, followed by the launches record a CommandError carries, and
// returns the exit code.
func reportFailure(w io.Writer, err error) int {
	fmt.Fprintf(w, "Error executing command: %v\n", err)
	var cmdErr *errors.CommandError
	if stderrors.As(err, &cmdErr) {
		if printErr := shared.PrintJSON(w, cmdErr.Result); printErr != nil {
			fmt.Fprintf(w, "failed to print command result: %v\n", printErr)
		}
	}
	return errors.ExitCode(err)
}

func initConfig() {
	var err error

	AppConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing config file function is crashed - %v \n", err)
		os.Exit(errors.ExitCodeValidation)
	}
	if err := config.ValidateConfig(AppConfig); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errors.ExitCodeValidation)
	}

	version.Init(AppConfig)
	scan.Init(AppConfig, serverURL)
	scans.Init(AppConfig, serverURL)
	simulate.Init(AppConfig, serverURL)
	timeline.Init(AppConfig, serverURL)
	policy.Init(AppConfig, serverURL)
	serve.Init(AppConfig, serverURL)
}
