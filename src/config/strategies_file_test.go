//go:build unit

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratd/src/datamodels"
)

func writeStrategiesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseStrategiesFile(t *testing.T) {
	path := writeStrategiesFile(t, `
# strategyRef,strategyId,allocation,symbol...
momentum,momo_btc,0.4,BTC-USD

random,,0.3,ETH-USD,SOL-USD
`)

	requests, err := ParseStrategiesFile(path)
	require.NoError(t, err)
	require.Len(t, requests, 2)

	assert.Equal(t, "momentum", requests[0].StrategyRef)
	assert.Equal(t, "momo_btc", requests[0].StrategyId)
	assert.InDelta(t, 0.4, requests[0].Allocation, 1e-9)
	assert.Equal(t, []datamodels.Instrument{"BTC-USD"}, requests[0].Symbols)

	assert.Equal(t, "random", requests[1].StrategyRef)
	assert.Empty(t, requests[1].StrategyId)
	assert.Equal(t, []datamodels.Instrument{"ETH-USD", "SOL-USD"}, requests[1].Symbols)
}

func TestParseStrategiesFileDoesNotRenormalize(t *testing.T) {
	path := writeStrategiesFile(t, "momentum,a,0.9,BTC-USD\nrandom,b,0.9,ETH-USD\n")
	requests, err := ParseStrategiesFile(path)
	require.NoError(t, err)
	// allocations are taken as written; the registry validates totals
	assert.InDelta(t, 0.9, requests[0].Allocation, 1e-9)
	assert.InDelta(t, 0.9, requests[1].Allocation, 1e-9)
}

func TestParseStrategiesFileRejectsBadLines(t *testing.T) {
	for name, content := range map[string]string{
		"too few fields": "momentum,a,0.4\n",
		"bad allocation": "momentum,a,lots,BTC-USD\n",
		"zero alloc":     "momentum,a,0,BTC-USD\n",
		"empty ref":      ",a,0.4,BTC-USD\n",
		"no symbols":     "momentum,a,0.4, \n",
	} {
		path := writeStrategiesFile(t, content)
		_, err := ParseStrategiesFile(path)
		assert.Error(t, err, name)
	}
}

func TestParseStrategiesFileMissing(t *testing.T) {
	_, err := ParseStrategiesFile("/nonexistent/strategies.txt")
	assert.Error(t, err)
}
