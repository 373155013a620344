package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Ledger.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Sync.PageDelaySecs)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, "2023-01-01", cfg.Sync.BackfillFrom)
	assert.Equal(t, 200, cfg.Enrich.BatchSize)
	assert.Equal(t, 2, cfg.Enrich.MaxConcurrent)
	assert.InDelta(t, 0.3, cfg.Enrich.FuzzyThreshold, 0.001)
	assert.Equal(t, 5, cfg.Signals.MaxDocsPerBuyer)
	assert.Equal(t, 4000, cfg.Signals.ChunkSize)
	assert.Equal(t, 200, cfg.Signals.ChunkOverlap)
	assert.Equal(t, 30, cfg.Signals.DedupWindowDays)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 4096, cfg.Anthropic.MaxTokens)
	assert.Contains(t, cfg.Sync.FindATenderBaseURL, "find-tender.service.gov.uk")
	assert.Contains(t, cfg.Sync.ContractsFinderBaseURL, "contractsfinder.service.gov.uk")
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
ledger:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
signals:
  max_docs_per_buyer: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Ledger.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Signals.MaxDocsPerBuyer)
	// Defaults still apply for unset values
	assert.Equal(t, 4000, cfg.Signals.ChunkSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
ledger:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("INTEL_LEDGER_DRIVER", "postgres")
	t.Setenv("INTEL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Ledger.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("INTEL_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with enough defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Ledger.Driver = "postgres"
	cfg.Sync.MaxRetries = 5
	cfg.Sync.PageDelaySecs = 10
	cfg.Enrich.FuzzyThreshold = 0.3
	cfg.Enrich.MaxConcurrent = 2
	cfg.Signals.ChunkSize = 4000
	cfg.Signals.ChunkOverlap = 200
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateSync_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"

	assert.NoError(t, cfg.Validate("sync"))
}

func TestValidateSync_MissingDB(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("sync")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateSignals_MissingKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"

	err := cfg.Validate("signals")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateSignals_OverlapBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Signals.ChunkOverlap = 4000

	err := cfg.Validate("signals")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
}

func TestValidateEnrich_LookupKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Enrich.ProfileLookups = true

	err := cfg.Validate("enrich")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "orglookup.key is required")

	cfg.OrgLookup.Key = "key"
	assert.NoError(t, cfg.Validate("enrich"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateLedgerDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Ledger.Driver = "mysql"

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ledger.driver must be postgres or sqlite")
}
