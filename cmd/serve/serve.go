package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/cloudsentinel/cmd/version"
	"github.com/scan-io-git/cloudsentinel/internal/bootstrap"
	sentinelcmd "github.com/scan-io-git/cloudsentinel/internal/cmd"
	"github.com/scan-io-git/cloudsentinel/internal/httpapi"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/errors"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/logger"
)

// RunOptionsServe holds the arguments for the serve command.
type RunOptionsServe struct {
	ListenAddr string `json:"listen_addr,omitempty"`
}

// Global variables for configuration and command arguments
var (
	AppConfig         *config.Config
	serverURL         string
	serveOptions      RunOptionsServe
	exampleServeUsage = `  # Serving the API on the configured address
  sentinel serve

  # Serving the API on every interface
  sentinel serve --listen 0.0.0.0:8080`
)

// ServeCmd represents the serve command.
var ServeCmd = &cobra.Command{
	Use:                   "serve [--listen HOST:PORT]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleServeUsage,
	Short:                 "Serves scans, the timeline and the policy doctor over HTTP",
	Args:                  cobra.NoArgs,
	RunE:                  runServeCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config, server string) {
	AppConfig = cfg
	serverURL = server
}

// runServeCommand executes the serve command.
func runServeCommand(cmd *cobra.Command, args []string) error {
	logger := logger.NewLogger(AppConfig, "core-serve")

	serverCfg, err := validateServeArgs(serveOptions, serverURL, AppConfig.Server)
	if err != nil {
		logger.Error("invalid serve arguments", "error", err)
		return errors.NewValidationError(serveOptions, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, AppConfig, serverCfg, logger); err != nil {
		logger.Error("serve command failed", "error", err)
		return sentinelcmd.Fail(serveOptions, err)
	}

	logger.Info("server stopped")
	return nil
}

func serve(ctx context.Context, cfg *config.Config, serverCfg config.Server, logger hclog.Logger) error {
	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := httpapi.New(
		bootstrap.NewScanner(cfg, store, logger),
		store,
		bootstrap.NewSimulator(cfg, store, logger),
		bootstrap.NewDoctor(cfg, logger),
		logger.Named("http"),
		version.CoreVersion,
	)
	return srv.Serve(ctx, serverCfg)
}

// validateServeArgs validates the serve arguments and returns the effective server settings.
func validateServeArgs(options RunOptionsServe, server string, base config.Server) (config.Server, error) {
	if server != "" {
		return base, fmt.Errorf("the 'server' flag cannot be used with the serve command")
	}
	if options.ListenAddr == "" {
		return base, nil
	}
	base.ListenAddr = strings.TrimSpace(options.ListenAddr)
	if err := config.ValidateServerConfig(&base); err != nil {
		return base, err
	}
	return base, nil
}

// Initialize flags for the serve command.
func init() {
	ServeCmd.Flags().StringVarP(&serveOptions.ListenAddr, "listen", "l", "", "Address to listen on. Overrides server.listen_addr from the config.")
	ServeCmd.Flags().BoolP("help", "h", false, "Show help for the serve command.")
}
