package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ORDERBOOK_CONFIG", "")

	c, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, "btc_usdt", c.Symbol)
	assert.Equal(t, "wss://stream.binance.com:9443/stream", c.Binance.StreamEndpoint)
	assert.Equal(t, "https://api.binance.com", c.Binance.RESTEndpoint)
	assert.Equal(t, 1000, c.Sync.SnapshotLimit)
	assert.Equal(t, 2*time.Second, c.Sync.RetryInterval)
	assert.Equal(t, 5000, c.Sync.BufferHighWater)
	assert.Equal(t, "info", c.Logging.Level)

	symbol, err := c.MarketSymbol()
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", symbol.Exchange())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orderbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
symbol: eth_btc
binance:
  update_speed: 100ms
sync:
  snapshot_limit: 500
  snapshot_timeout: 3s
  retry_interval: 250ms
server:
  max_depth: 50
logging:
  level: warn
  pretty: true
`), 0o600))

	t.Setenv("ORDERBOOK_CONFIG", path)
	t.Setenv("ORDERBOOK_SNAPSHOT_LIMIT", "100")
	t.Setenv("ORDERBOOK_GRPC_ADDR", "127.0.0.1:6000")

	c, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, "eth_btc", c.Symbol)
	assert.Equal(t, "100ms", c.Binance.UpdateSpeed)
	assert.Equal(t, 100, c.Sync.SnapshotLimit)
	assert.Equal(t, 3*time.Second, c.Sync.SnapshotTimeout)
	assert.Equal(t, 250*time.Millisecond, c.Sync.RetryInterval)
	assert.Equal(t, 50, c.Server.MaxDepth)
	assert.Equal(t, "127.0.0.1:6000", c.Server.GRPCAddr)
	assert.Equal(t, "warn", c.Logging.Level)
	assert.True(t, c.Logging.Pretty)

	mc := c.MaintainerConfig()
	assert.Equal(t, 100, mc.SnapshotLimit)
	assert.Equal(t, 250*time.Millisecond, mc.RetryInterval)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ORDERBOOK_SYMBOL=sol_usdt\nORDERBOOK_DEBUG=true\n"), 0o600))

	t.Setenv("ORDERBOOK_CONFIG", "")
	// godotenv never overrides variables that are already set; register
	// cleanup for the ones it will set.
	t.Setenv("ORDERBOOK_SYMBOL", "")
	t.Setenv("ORDERBOOK_DEBUG", "")
	require.NoError(t, os.Unsetenv("ORDERBOOK_SYMBOL"))
	require.NoError(t, os.Unsetenv("ORDERBOOK_DEBUG"))

	c, err := LoadFrom(envFile)
	require.NoError(t, err)

	assert.Equal(t, "sol_usdt", c.Symbol)
	assert.True(t, c.DebugMode)
	assert.Equal(t, "debug", c.Logging.Level)
}

func TestLoad_MissingDotEnvIsIgnored(t *testing.T) {
	t.Setenv("ORDERBOOK_CONFIG", "")

	_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]map[string]string{
		"bad duration":     {"ORDERBOOK_RETRY_INTERVAL": "soon"},
		"bad integer":      {"ORDERBOOK_SNAPSHOT_LIMIT": "many"},
		"bad bool":         {"ORDERBOOK_LOG_PRETTY": "maybe"},
		"bad symbol":       {"ORDERBOOK_SYMBOL": "btcusdt"},
		"http stream":      {"ORDERBOOK_STREAM_ENDPOINT": "https://stream.binance.com"},
		"limit too large":  {"ORDERBOOK_SNAPSHOT_LIMIT": "6000"},
		"negative buffer":  {"ORDERBOOK_BUFFER_HIGH_WATER": "-1"},
		"missing yaml":     {"ORDERBOOK_CONFIG": "/nonexistent/orderbook.yaml"},
		"zero max depth":   {"ORDERBOOK_MAX_DEPTH": "0"},
		"ws rest endpoint": {"ORDERBOOK_REST_ENDPOINT": "wss://api.binance.com"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("ORDERBOOK_CONFIG", "")
			for k, v := range env {
				t.Setenv(k, v)
			}

			_, err := LoadFrom("")
			assert.Error(t, err)
		})
	}
}

func TestValidate_ZeroBufferMeansUnbounded(t *testing.T) {
	c := Default()
	c.Sync.BufferHighWater = 0
	assert.NoError(t, c.Validate())
}
