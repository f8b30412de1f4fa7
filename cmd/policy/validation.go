package policy

import (
	"fmt"
	"io"
	"os"
	"strings"

	policydoctor "github.com/scan-io-git/cloudsentinel/internal/policy"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/files"
)

const (
	typeIdentity = "identity"
	typeResource = "resource"

	stdinArg         = "-"
	maxDocumentBytes = 1 << 20
)

// validatePolicyArgs validates the arguments provided to the policy validate command.
func validatePolicyArgs(options *RunOptionsPolicy, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("a policy file or '-' for stdin must be specified")
	}
	options.InputFile = strings.TrimSpace(args[0])

	switch strings.ToLower(options.Type) {
	case typeIdentity, strings.ToLower(policydoctor.TypeIdentity):
		options.policyType = policydoctor.TypeIdentity
	case typeResource, strings.ToLower(policydoctor.TypeResource):
		options.policyType = policydoctor.TypeResource
	default:
		return fmt.Errorf("the 'type' flag must be %q or %q", typeIdentity, typeResource)
	}

	if options.InputFile == stdinArg {
		return nil
	}
	expanded, err := files.ExpandPath(options.InputFile)
	if err != nil {
		return fmt.Errorf("failed to expand policy file path: %w", err)
	}
	options.InputFile = expanded
	if err := files.ValidatePath(options.InputFile); err != nil {
		return fmt.Errorf("the policy file is not readable: %w", err)
	}
	return nil
}

// readDocument returns the policy text from the file, or from stdin when path is "-".
func readDocument(path string, stdin io.Reader) (string, error) {
	var r io.Reader = stdin
	if path != stdinArg {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to open policy file: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read policy document: %w", err)
	}
	if len(data) > maxDocumentBytes {
		return "", fmt.Errorf("policy document is larger than %d bytes", maxDocumentBytes)
	}
	return string(data), nil
}
