package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "./data/chatemail.db", cfg.SQLite.Path)
	assert.Equal(t, "UNSEEN", cfg.IMAP.Criteria)
	assert.Equal(t, 993, cfg.IMAP.Port)
	assert.Equal(t, "email_report", cfg.Export.FilenamePrefix)
	assert.Equal(t, 90*time.Second, cfg.ItemTimeout())
	assert.Equal(t, 24*time.Hour, cfg.ReportTTL())
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("CHATEMAIL_SQLITE_PATH", "/tmp/other.db")
	t.Setenv("CHATEMAIL_BATCH_MAXCONCURRENCY", "4")
	t.Setenv("FETCH_LIMIT", "25")
	t.Setenv("EMAIL_ADDRESS", "me@example.com")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.db", cfg.SQLite.Path)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrency)
	assert.Equal(t, 25, cfg.IMAP.Limit)
	assert.Equal(t, "me@example.com", cfg.IMAP.Username)
}

func TestLoadDotenv(t *testing.T) {
	// Registered so the value godotenv sets is removed afterwards.
	t.Setenv("FETCH_DAYS", "")
	require.NoError(t, os.Unsetenv("FETCH_DAYS"))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FETCH_DAYS=3\n"), 0o600))

	cfg, err := LoadFrom(viper.New(), path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.IMAP.Days)
}

func TestValidate(t *testing.T) {
	t.Setenv("FETCH_CRITERIA", "RECENT")
	_, err := LoadFrom(viper.New())
	assert.ErrorContains(t, err, "imap.criteria")

	cfg := &Config{IMAP: IMAPConfig{Criteria: "all"}}
	assert.ErrorContains(t, cfg.Validate(), "sqlite.path")

	cfg.SQLite.Path = "x.db"
	assert.NoError(t, cfg.Validate())

	cfg.Batch.MaxConcurrency = -1
	assert.Error(t, cfg.Validate())
}
