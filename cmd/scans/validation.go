package scans

import (
	"fmt"
	"strings"

	"github.com/scan-io-git/cloudsentinel/internal/report"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
)

// validateScansArgs validates the arguments provided to a scans subcommand.
func validateScansArgs(action string, options *RunOptionsScans, args []string) error {
	switch action {
	case actionList:
		if options.Limit < 1 || options.Limit > storage.MaxListLimit {
			return fmt.Errorf("the 'limit' flag must be between 1 and %d", storage.MaxListLimit)
		}
	case actionGet, actionExport:
		if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
			return fmt.Errorf("a scan id must be specified")
		}
		options.ScanID = strings.TrimSpace(args[0])
	}

	if action == actionExport {
		options.Format = strings.ToLower(options.Format)
		if options.Format != report.FormatJSON && options.Format != report.FormatSARIF {
			return fmt.Errorf("the 'format' flag must be one of %s", strings.Join(report.Formats, ", "))
		}
	}
	return nil
}
