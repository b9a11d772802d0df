package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err, "A missing config file should not be an error")

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, 4, cfg.ScrollThreshold)
	assert.Equal(t, "https://xkcd.com", cfg.XKCDURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 5, cfg.SyncConcurrency)
	assert.Equal(t, 7*24*time.Hour, cfg.TranscriptRefresh)
	assert.Equal(t, "localhost:6894", cfg.Addr())
	assert.Equal(t, filepath.Join("data", "blip.db"), filepath.Clean(cfg.DBPath()))
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	yaml := "data_dir: /tmp/blip\npage_size: 4\nhttp_timeout: 5s\nlog_format: json\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/blip", cfg.DataDir)
	assert.Equal(t, 4, cfg.PageSize)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/tmp/blip/settings", cfg.SettingsPath())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("BLIP_PAGE_SIZE", "7")
	t.Setenv("BLIP_PORT", "9000")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.PageSize)
	assert.Equal(t, "9000", cfg.Port)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("BLIP_PAGE_SIZE", "0")

	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	log := NewLogger(Config{LogLevel: "debug", LogFormat: "json"})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	log = NewLogger(Config{LogLevel: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}
