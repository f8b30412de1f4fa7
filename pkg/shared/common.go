package shared

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/pflag"
)

// Versions holds build metadata stamped at link time.
type Versions struct {
	Version       string `json:"version"`
	GolangVersion string `json:"golang_version"`
	BuildTime     string `json:"build_time"`
}

// GenericResult is a single command outcome as printed by the CLI.
type GenericResult struct {
	Args    interface{} `json:"args"`
	Result  interface{} `json:"result"`
	Status  string      `json:"status"`
	Message string      `json:"message"`
}

// GenericLaunchesResult groups command outcomes.
type GenericLaunchesResult struct {
	Launches []GenericResult `json:"launches"`
}

// ForEveryWithBoundedGoroutines calls f for every value using at most limit goroutines
// and returns once all calls have finished.
func ForEveryWithBoundedGoroutines[T any](limit int, values []T, f func(i int, value T)) {
	if limit < 1 {
		limit = 1
	}
	guard := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, value := range values {
		guard <- struct{}{}
		wg.Add(1)
		go func(i int, value T) {
			defer wg.Done()
			defer func() { <-guard }()
			f(i, value)
		}(i, value)
	}
	wg.Wait()
}

// HasFlags reports whether any flag was explicitly set on the command line.
func HasFlags(flags *pflag.FlagSet) bool {
	changed := false
	flags.Visit(func(*pflag.Flag) {
		changed = true
	})
	return changed
}

// PrintJSON writes v as indented JSON followed by a newline.
func PrintJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling output: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return fmt.Errorf("error writing output: %w", err)
	}
	return nil
}
