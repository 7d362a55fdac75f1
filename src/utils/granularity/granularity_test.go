//go:build unit

package granularity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidGranularities(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"1m":  time.Minute,
		"5m":  5 * time.Minute,
		"1h":  time.Hour,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
	}
	for input, expected := range cases {
		grain, err := Parse(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, grain.Duration(), input)
		assert.Equal(t, input, grain.String())
	}
}

func TestParseIsCaseAndSpaceTolerant(t *testing.T) {
	grain, err := Parse(" 5M ")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, grain.Duration())
}

func TestParseRejectsMalformedInput(t *testing.T) {
	for _, input := range []string{"", "m", "5", "5x", "m5", "-1m", "1.5h", "5 m"} {
		_, err := Parse(input)
		assert.Error(t, err, input)
	}
}
