package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkanvault/corevault/internal/csvengine"
	"github.com/arkanvault/corevault/internal/hostapi"
	"github.com/arkanvault/corevault/internal/identity"
	"github.com/arkanvault/corevault/internal/vaultwatch"
)

func TestDefaultsMatchComponentDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, identity.DefaultFanout, cfg.IdentityScanFanout)
	assert.Equal(t, hostapi.DefaultSettingsQuota, cfg.SettingsQuotaBytes)
	assert.Equal(t, csvengine.FreeRowLimit, cfg.CsvFreeRowLimit)
	assert.Equal(t, vaultwatch.CoalesceWindow, cfg.WatchCoalesceWindow)
	assert.False(t, cfg.CsvPremium)
}

func TestLoadWithNoFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().SettingsQuotaBytes, cfg.SettingsQuotaBytes)
}

func TestLoadReadsExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.yaml")
	contents := "vaultpath: /srv/notes\ncsvfreerowlimit: 42\ncsvpremium: true\nmcpratelimit: 25\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/notes", cfg.VaultPath)
	assert.Equal(t, 42, cfg.CsvFreeRowLimit)
	assert.True(t, cfg.CsvPremium)
	assert.Equal(t, 25.0, cfg.McpRateLimit)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte("csvfreerowlimit: 42\n"), 0o644))

	t.Setenv("COREVAULT_CSVFREEROWLIMIT", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.CsvFreeRowLimit)
}

func TestLoadPreservesDurationDefaultsWhenUnset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte("loglevel: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.McpMaxBackoff)
}
