package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/region-gc/cardrefine/internal/config"
)

func TestLoadDefaultsWhenNoFilesExist(t *testing.T) {
	dir := t.TempDir()

	cfg, sources, err := config.Load(dir, "", nil)
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
	require.Empty(t, sources.Global)
	require.Empty(t, sources.Project)
}

func TestLoadProjectConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, config.ConfigFileName), `{
		// allow deferred dirtying for this simulation
		"deferred_dirtying_enabled": true,
		"region_bytes": 4096,
	}`)

	cfg, sources, err := config.Load(dir, "", nil)
	require.NoError(t, err)
	require.True(t, cfg.DeferredDirtyingEnabled)
	require.Equal(t, int64(4096), cfg.RegionBytes)
	require.Equal(t, filepath.Join(dir, config.ConfigFileName), sources.Project)
}

func TestLoadProjectConfigCanDisableADefaultTrueFlag(t *testing.T) {
	dir := t.TempDir()

	require.True(t, config.Default().WrittenCardQueuesEnabled)

	writeFile(t, filepath.Join(dir, config.ConfigFileName), `{"written_card_queues_enabled": false}`)

	cfg, _, err := config.Load(dir, "", nil)
	require.NoError(t, err)
	require.False(t, cfg.WrittenCardQueuesEnabled)
}

func TestLoadExplicitConfigPathMustExist(t *testing.T) {
	dir := t.TempDir()

	_, _, err := config.Load(dir, "missing.json", nil)
	require.Error(t, err)
}

func TestLoadRejectsUnknownFilterMode(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, config.ConfigFileName), `{"filter_mode": "bogus"}`)

	_, _, err := config.Load(dir, "", nil)
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveRegionBytes(t *testing.T) {
	dir := t.TempDir()

	// 0 is indistinguishable from "absent" in the file format and falls
	// back to the default; a negative value is an explicit bad input.
	writeFile(t, filepath.Join(dir, config.ConfigFileName), `{"region_bytes": -1}`)

	_, _, err := config.Load(dir, "", nil)
	require.Error(t, err)
}

func TestLoadGlobalConfigFromXDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	xdg := filepath.Join(dir, "xdg")

	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "cardrefine"), 0o755))
	writeFile(t, filepath.Join(xdg, "cardrefine", "config.json"), `{"region_bytes": 8192}`)

	projectDir := t.TempDir()

	cfg, sources, err := config.Load(projectDir, "", []string{"XDG_CONFIG_HOME=" + xdg})
	require.NoError(t, err)
	require.Equal(t, int64(8192), cfg.RegionBytes)
	require.NotEmpty(t, sources.Global)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
