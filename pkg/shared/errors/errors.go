package errors

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws/awserr"

	"github.com/scan-io-git/cloudsentinel/pkg/shared"
)

// Exit codes returned by the CLI.
const (
	ExitCodeFailure    = 1
	ExitCodeValidation = 2
)

// CommandError represents a failed command, storing the result printed alongside it.
type CommandError struct {
	ExitCode    int
	CommonError string
	Result      shared.GenericLaunchesResult
	err         error
}

// Error implements the error interface, returning the message from the common error.
func (e *CommandError) Error() string {
	return e.CommonError
}

func (e *CommandError) Unwrap() error {
	return e.err
}

// NewCommandError creates a new CommandError instance, encapsulating args, result, and the error message.
func NewCommandError(args interface{}, result interface{}, err error, code int) *CommandError {
	return &CommandError{
		ExitCode:    code,
		CommonError: err.Error(),
		err:         err,
		Result: shared.GenericLaunchesResult{
			Launches: []shared.GenericResult{
				{
					Args:    args,
					Result:  result,
					Status:  "FAILED",
					Message: err.Error(),
				},
			},
		},
	}
}

// NewValidationError wraps an argument validation failure.
func NewValidationError(args interface{}, err error) *CommandError {
	return NewCommandError(args, nil, err, ExitCodeValidation)
}

// ExitCode extracts the exit code carried by err, defaulting to ExitCodeFailure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return ExitCodeFailure
}

// AWSErrorCode returns the service error code of an AWS SDK error, or "" for other errors.
func AWSErrorCode(err error) string {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code()
	}
	return ""
}

// IsAWSErrorCode reports whether err is an AWS SDK error with one of the given codes.
func IsAWSErrorCode(err error, codes ...string) bool {
	code := AWSErrorCode(err)
	if code == "" {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// DescribeAWSError renders an AWS SDK error as "Code: message" and falls back to err.Error().
func DescribeAWSError(err error) string {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return fmt.Sprintf("%s: %s", aerr.Code(), aerr.Message())
	}
	return err.Error()
}
