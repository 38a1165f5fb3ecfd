package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(orig) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Server.MaxUploadMB)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 5, cfg.Sync.DataStartRow)
	assert.Equal(t, 30*time.Second, cfg.Sync.TxTimeout())
	assert.InDelta(t, 0.45, cfg.Sync.FuzzyThreshold, 1e-9)
	assert.Equal(t, []string{"", "TBC", "TBD", "N/A", "-", "PENDING"}, cfg.Sync.Placeholders)
	assert.False(t, cfg.Sync.Validate)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)
	yaml := `
store:
  database_url: postgres://localhost/billing
log:
  level: debug
  format: console
sync:
  sheet_name: Active Projects
  data_start_row: 3
  placeholders: ["TBC", "TBA"]
  validate: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/billing", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "Active Projects", cfg.Sync.SheetName)
	assert.Equal(t, 3, cfg.Sync.DataStartRow)
	assert.Equal(t, []string{"TBC", "TBA"}, cfg.Sync.Placeholders)
	assert.True(t, cfg.Sync.Validate)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BILLING_SERVER_PORT", "3000")
	t.Setenv("BILLING_STORE_DATABASE_URL", "postgres://env/billing")
	t.Setenv("BILLING_SYNC_TX_TIMEOUT_SECS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "postgres://env/billing", cfg.Store.DatabaseURL)
	assert.Equal(t, 5*time.Second, cfg.Sync.TxTimeout())
}

func TestLoadRejectsBadStartRow(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BILLING_SYNC_DATA_START_ROW", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data_start_row")
}

func TestInitLogger(t *testing.T) {
	defer zap.ReplaceGlobals(zap.NewNop())

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))

	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}

func validConfig() *Config {
	return &Config{
		Store:  StoreConfig{DatabaseURL: "postgres://localhost/billing"},
		Server: ServerConfig{Port: 8080, MaxUploadMB: 20},
		Sync:   SyncConfig{DataStartRow: 5, TxTimeoutSecs: 30, FuzzyThreshold: 0.45, ValidateConcurrency: 4},
	}
}

func TestValidate(t *testing.T) {
	for _, mode := range []string{"preview", "apply", "migrate", "runs", "serve"} {
		assert.NoError(t, validConfig().Validate(mode), mode)
	}
}

func TestValidate_MissingDatabase(t *testing.T) {
	cfg := validConfig()
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("apply")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_PreviewNeedsKeyWhenValidating(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.Validate = true
	err := cfg.Validate("preview")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key")

	cfg.Anthropic.Key = "sk-ant-test"
	assert.NoError(t, cfg.Validate("preview"))
}

func TestValidate_ServeBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Server.MaxUploadMB = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "server.max_upload_mb")
}

func TestValidate_SyncBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.FuzzyThreshold = 1.5
	cfg.Sync.ValidateConcurrency = 0
	err := cfg.Validate("apply")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzy_threshold")
	assert.Contains(t, err.Error(), "validate_concurrency")
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validConfig().Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
