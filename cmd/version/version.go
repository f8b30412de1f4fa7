package version

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/cloudsentinel/pkg/shared"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
)

var (
	AppConfig     *config.Config
	CoreVersion   = "unknown"
	GolangVersion = "unknown"
	BuildTime     = "unknown"

	printJSON bool
)

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

// Current returns the build metadata stamped at link time.
func Current() shared.Versions {
	return shared.Versions{
		Version:       CoreVersion,
		GolangVersion: GolangVersion,
		BuildTime:     BuildTime,
	}
}

// NewVersionCmd creates a new cobra.Command for the version command.
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "version [--json]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Print the version number of the application",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printJSON {
				return shared.PrintJSON(cmd.OutOrStdout(), Current())
			}
			printVersionInfo(cmd.OutOrStdout(), Current())
			return nil
		},
	}
	cmd.Flags().BoolVar(&printJSON, "json", false, "Print the version information as JSON.")
	return cmd
}

// printVersionInfo prints the version information for the core application.
func printVersionInfo(w io.Writer, v shared.Versions) {
	fmt.Fprintf(w, "Core Version: v%s\n", v.Version)
	fmt.Fprintf(w, "Go Version: %s\n", v.GolangVersion)
	fmt.Fprintf(w, "Build Time: %s\n", v.BuildTime)
}
