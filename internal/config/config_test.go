package config

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCEndpoint(t *testing.T) {
	assert.Equal(t, rpc.DevNet_RPC, RPCEndpoint("dev"))
	assert.Equal(t, rpc.LocalNet_RPC, RPCEndpoint(" Local "))
	assert.Equal(t, rpc.MainNetBeta_RPC, RPCEndpoint("main"))
	assert.Equal(t, rpc.MainNetBeta_RPC, RPCEndpoint("anything"))
}

func TestParseConfigFileFlattensSections(t *testing.T) {
	values, err := parseConfigFile([]byte(`
keeper:
  poll-interval: 5s
  max_closes_per_tick: 3
api_server:
  allowed_origins:
    - http://localhost:3000
    - https://wager.example
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, "5s", values["KEEPER_POLL_INTERVAL"])
	assert.Equal(t, "3", values["KEEPER_MAX_CLOSES_PER_TICK"])
	assert.Equal(t, "http://localhost:3000,https://wager.example", values["API_SERVER_ALLOWED_ORIGINS"])
	assert.Equal(t, "debug", values["LOG_LEVEL"])
}

func TestNormalizeKeySegment(t *testing.T) {
	assert.Equal(t, "POLL_INTERVAL", normalizeKeySegment("poll.interval"))
	assert.Equal(t, "A_B", normalizeKeySegment("--a--b--"))
	assert.Empty(t, normalizeKeySegment("  "))
}

func TestLoadClientConfigFromEnv(t *testing.T) {
	t.Setenv("SOLANA_RPC_URL", "")
	t.Setenv("WAGER_KEYPAIR_PATH", "/tmp/wager.json")
	t.Setenv("WAGER_TX_TIMEOUT", "15s")
	t.Setenv("WAGER_MAX_RETRIES", "2")
	t.Setenv("WAGER_COMPUTE_UNIT_LIMIT", "400000")

	cfg, err := LoadClientConfig("dev")
	require.NoError(t, err)
	assert.Equal(t, rpc.DevNet_RPC, cfg.RPCURL)
	assert.Equal(t, "/tmp/wager.json", cfg.KeypairPath)
	assert.Equal(t, defaultProgramID, cfg.ProgramID)
	assert.Equal(t, 15*time.Second, cfg.Tx.Timeout)
	require.NotNil(t, cfg.Tx.MaxRetries)
	assert.Equal(t, uint(2), *cfg.Tx.MaxRetries)
	assert.Equal(t, uint32(400_000), cfg.Tx.ComputeUnitLimit)
	assert.Equal(t, "stderr", cfg.Log.Output)

	t.Setenv("SOLANA_RPC_URL", "http://127.0.0.1:9999")
	cfg, err = LoadClientConfig("dev")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.RPCURL)
}

func TestLoadKeeperConfigRejectsBadValues(t *testing.T) {
	t.Setenv("KEEPER_KEYPAIR_PATH", "/tmp/keeper.json")
	t.Setenv("KEEPER_POLL_INTERVAL", "-1s")
	_, err := LoadKeeperConfig()
	assert.ErrorContains(t, err, "KEEPER_POLL_INTERVAL")

	t.Setenv("KEEPER_POLL_INTERVAL", "1m")
	t.Setenv("WAGER_PROGRAM_ID", "not-a-key")
	_, err = LoadKeeperConfig()
	assert.ErrorContains(t, err, "WAGER_PROGRAM_ID")
}

func TestLoadIndexerConfigChecksRetryBounds(t *testing.T) {
	t.Setenv("INDEXER_RPC_RETRY_BASE_DELAY", "10s")
	t.Setenv("INDEXER_RPC_RETRY_MAX_DELAY", "1s")
	_, err := LoadIndexerConfig()
	assert.ErrorContains(t, err, "INDEXER_RPC_RETRY_MAX_DELAY")
}

func TestParseCSVEnv(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseCSVEnv(" a, ,b ", nil))
	assert.Equal(t, []string{"*"}, parseCSVEnv(" , ", []string{"*"}))
}

func TestParseConfigFileKeepsScalarText(t *testing.T) {
	values, err := parseConfigFile([]byte(`
defaults: &defaults
  log_level: warn
indexer: *defaults
api_server:
  listen_addr: ~
keeper:
  max_open_age: 0.50h
`))
	require.NoError(t, err)
	assert.Equal(t, "warn", values["INDEXER_LOG_LEVEL"])
	assert.Equal(t, "0.50h", values["KEEPER_MAX_OPEN_AGE"])
	_, ok := values["API_SERVER_LISTEN_ADDR"]
	assert.False(t, ok)

	_, err = parseConfigFile([]byte("- a\n- b\n"))
	assert.Error(t, err)
}

func TestLogRotationSettings(t *testing.T) {
	t.Setenv("LOG_MAX_SIZE_MB", "20")
	t.Setenv("KEEPER_LOG_MAX_SIZE_MB", "")
	t.Setenv("API_SERVER_LOG_MAX_BACKUPS", "0")
	t.Setenv("API_SERVER_LOG_COMPRESS", "true")

	cfg, err := LoadAPIServerConfig()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Log.MaxSizeMB)
	assert.Equal(t, 0, cfg.Log.MaxBackups)
	assert.Equal(t, 30, cfg.Log.MaxAgeDays)
	assert.True(t, cfg.Log.Compress)

	t.Setenv("API_SERVER_LOG_MAX_AGE_DAYS", "-1")
	_, err = LoadAPIServerConfig()
	assert.ErrorContains(t, err, "API_SERVER_LOG_MAX_AGE_DAYS")
}

func TestExpandHomePath(t *testing.T) {
	t.Setenv("HOME", "/home/wager")
	path, err := expandHomePath("~/.config/solana/id.json")
	require.NoError(t, err)
	assert.Equal(t, "/home/wager/.config/solana/id.json", path)

	path, err = expandHomePath("~other/id.json")
	require.NoError(t, err)
	assert.Equal(t, "~other/id.json", path)
}
