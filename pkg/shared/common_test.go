package shared

import (
	"bytes"
	"sync/atomic"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEveryWithBoundedGoroutines(t *testing.T) {
	values := []int{1, 2, 3, 4, 5, 6, 7, 8}
	out := make([]int, len(values))

	var running, peak int32
	ForEveryWithBoundedGoroutines(3, values, func(i int, v int) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		out[i] = v * v
		atomic.AddInt32(&running, -1)
	})

	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49, 64}, out)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestHasFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("output", "", "")
	assert.False(t, HasFlags(fs))

	require.NoError(t, fs.Parse([]string{"--output", "x"}))
	assert.True(t, HasFlags(fs))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}
