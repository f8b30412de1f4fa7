package policy

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	sentinelcmd "github.com/scan-io-git/cloudsentinel/internal/cmd"
	policydoctor "github.com/scan-io-git/cloudsentinel/internal/policy"
	"github.com/scan-io-git/cloudsentinel/pkg/shared"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/errors"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/logger"
)

// RunOptionsPolicy holds the arguments for the policy validate command.
type RunOptionsPolicy struct {
	InputFile   string `json:"input_file"`
	Type        string `json:"type"`
	FailOnError bool   `json:"fail_on_error"`
	policyType  string
}

// Global variables for configuration and command arguments
var (
	AppConfig          *config.Config
	serverURL          string
	policyOptions      RunOptionsPolicy
	examplePolicyUsage = `  # Linting an identity policy with the local rules (or Access Analyzer in live mode)
  sentinel policy validate /path/to/policy.json

  # Linting a bucket policy read from stdin
  cat bucket-policy.json | sentinel policy validate --type resource -

  # Failing the pipeline when the policy has error findings
  sentinel policy validate --fail-on-error /path/to/policy.json`
)

// PolicyCmd groups the policy commands.
var PolicyCmd = &cobra.Command{
	Use:                   "policy [validate]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               examplePolicyUsage,
	Short:                 "Lints IAM policy documents",
}

var validateCmd = &cobra.Command{
	Use:                   "validate [--type/-t identity|resource] [--fail-on-error] {FILE | -}",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               examplePolicyUsage,
	Short:                 "Reports errors, warnings and suggestions for a policy document",
	RunE:                  runValidateCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config, server string) {
	AppConfig = cfg
	serverURL = server
}

// runValidateCommand executes the policy validate command.
func runValidateCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !shared.HasFlags(cmd.Flags()) {
		return cmd.Help()
	}

	logger := logger.NewLogger(AppConfig, "core-policy")
	ctx := cmd.Context()

	if err := validatePolicyArgs(&policyOptions, args); err != nil {
		logger.Error("invalid policy arguments", "error", err)
		return errors.NewValidationError(policyOptions, err)
	}

	document, err := readDocument(policyOptions.InputFile, cmd.InOrStdin())
	if err != nil {
		logger.Error("failed to read policy document", "error", err)
		return errors.NewValidationError(policyOptions, err)
	}

	backend, err := sentinelcmd.Open(ctx, AppConfig, serverURL, logger)
	if err != nil {
		logger.Error("failed to open backend", "error", err)
		return sentinelcmd.Fail(policyOptions, err)
	}
	defer backend.Close()

	if err := runValidate(ctx, backend, document, policyOptions, cmd.OutOrStdout()); err != nil {
		logger.Error("policy validate command failed", "error", err)
		return sentinelcmd.Fail(policyOptions, err)
	}
	return nil
}

func runValidate(ctx context.Context, backend sentinelcmd.Backend, document string, options RunOptionsPolicy, w io.Writer) error {
	resp, err := backend.ValidatePolicy(ctx, document, options.policyType)
	if err != nil {
		return err
	}
	if err := shared.PrintJSON(w, resp); err != nil {
		return err
	}

	if options.FailOnError {
		if n := countErrors(resp.Findings); n > 0 {
			return fmt.Errorf("policy has %d error finding(s)", n)
		}
	}
	return nil
}

func countErrors(findings []policydoctor.Finding) int {
	n := 0
	for _, f := range findings {
		if f.Severity == policydoctor.SeverityError {
			n++
		}
	}
	return n
}

// Initialize flags and subcommands for the policy command.
func init() {
	validateCmd.Flags().StringVarP(&policyOptions.Type, "type", "t", typeIdentity, "Policy type: identity or resource.")
	validateCmd.Flags().BoolVar(&policyOptions.FailOnError, "fail-on-error", false, "Exit with a non-zero code when the policy has error findings.")
	validateCmd.Flags().BoolP("help", "h", false, "Show help for the policy validate command.")

	PolicyCmd.AddCommand(validateCmd)
}
