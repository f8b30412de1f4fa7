package timeline

import (
	"fmt"
	"strings"
	"time"

	sentinelcmd "github.com/scan-io-git/cloudsentinel/internal/cmd"
)

// validateTimelineArgs validates the arguments provided to the timeline command and resolves --since.
func validateTimelineArgs(options *RunOptionsTimeline, mode string, now time.Time) error {
	options.Source = strings.ToLower(strings.TrimSpace(options.Source))
	switch options.Source {
	case SourceLocal:
	case SourceCloudTrail:
		if mode == sentinelcmd.ModeRemote {
			return fmt.Errorf("the cloudtrail source cannot be combined with the 'server' flag")
		}
	default:
		return fmt.Errorf("the 'source' flag must be %q or %q", SourceLocal, SourceCloudTrail)
	}

	since, err := parseSince(options.Since, now)
	if err != nil {
		return err
	}
	options.since = since
	return nil
}

// parseSince accepts an RFC 3339 timestamp or a positive duration counted back from now.
func parseSince(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("the 'since' flag must be an RFC 3339 time or a duration: %q", value)
	}
	if d <= 0 {
		return time.Time{}, fmt.Errorf("the 'since' duration must be positive: %q", value)
	}
	return now.Add(-d).UTC(), nil
}
