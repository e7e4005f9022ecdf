package tessera

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero coarse cell", func(c *Config) { c.CoarseCellSize = 0 }},
		{"fine above coarse", func(c *Config) { c.FineCellSize = c.CoarseCellSize * 2 }},
		{"split threshold too low", func(c *Config) { c.SubdivideThreshold = 1 }},
		{"hysteresis below one", func(c *Config) { c.HysteresisRatio = 0.9 }},
		{"smoothing out of range", func(c *Config) { c.ThroughputSmoothing = 1.5 }},
		{"inverted multiplier bounds", func(c *Config) { c.BatchMultiplierMin = 3; c.BatchMultiplierMax = 2 }},
		{"zero min workload", func(c *Config) { c.MinWorkload = 0 }},
		{"zero reselect period", func(c *Config) { c.AxisReselectPeriod = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig_PartialOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tessera.yaml")
	data := []byte("workers: 3\nstatic_scan_threshold: 16\ntrigger_cooldown_seconds: 2\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 16, cfg.StaticScanThreshold)
	assert.Equal(t, 2.0, cfg.TriggerCooldownSeconds)
	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultConfig().CoarseCellSize, cfg.CoarseCellSize)
	assert.Equal(t, DefaultConfig().HysteresisRatio, cfg.HysteresisRatio)
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Missing file should error")
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("coarse_cell_size: -5\n"), 0o644))
	if _, err := LoadConfig(bad); err == nil {
		t.Errorf("Invalid values should fail validation")
	}
}
