package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/site-density/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no config file present

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2.0, cfg.Analysis.RadiusKM)
	assert.Equal(t, 100.0, cfg.Analysis.CoLocationThresholdM)
	assert.Equal(t, model.ModeQuantile, cfg.Analysis.Mode)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "site-density.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 64, cfg.Server.MaxUploadMB)
	assert.Equal(t, 30, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := `
analysis:
  radius_km: 5.5
  classification_mode: threshold
server:
  port: 9999
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(file), 0o644))
	t.Chdir(dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5.5, cfg.Analysis.RadiusKM)
	assert.Equal(t, model.ModeThreshold, cfg.Analysis.Mode)
	assert.Equal(t, 9999, cfg.Server.Port)
	// Unset keys keep their defaults.
	assert.Equal(t, 100.0, cfg.Analysis.CoLocationThresholdM)
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SITEDENSITY_ANALYSIS_RADIUS_KM", "7.25")
	t.Setenv("SITEDENSITY_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7.25, cfg.Analysis.RadiusKM)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestAnalysisConfig_Params(t *testing.T) {
	a := AnalysisConfig{
		RadiusKM:             3,
		CoLocationThresholdM: 150,
		Mode:                 model.ModeThreshold,
		RuralThreshold:       1,
		SuburbanThreshold:    2,
		UrbanThreshold:       3,
	}
	p := a.Params()
	require.NoError(t, p.Validate())
	assert.Equal(t, 3.0, p.RadiusKM)
	assert.Equal(t, 150.0, p.CoLocationThresholdM)
}

func TestLoadPresets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	file := `
presets:
  metro:
    rural: 20
    suburban: 100
    urban: 400
  countryside:
    rural: 1
    suburban: 5
    urban: 20
`
	require.NoError(t, os.WriteFile(path, []byte(file), 0o644))

	presets, err := LoadPresets(path)
	require.NoError(t, err)
	require.Len(t, presets, 2)
	assert.Equal(t, ThresholdPreset{Rural: 20, Suburban: 100, Urban: 400}, presets["metro"])
}

func TestLoadPresets_Errors(t *testing.T) {
	_, err := LoadPresets(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read preset file")

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("presets: {}\n"), 0o644))
	_, err = LoadPresets(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defines no presets")
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "shouty", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
