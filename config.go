package tessera

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries the tunables of the collision core. The crossover and
// scheduler constants are empirically tuned defaults, not invariants;
// override them per target hardware.
type Config struct {
	// Worker pool size. <= 0 selects NumCPU-1, minimum 1.
	Workers int `yaml:"workers"`

	// Spatial hash cell sizes in world units and the occupant count at
	// which a coarse cell subdivides into fine cells.
	CoarseCellSize     float32 `yaml:"coarse_cell_size"`
	FineCellSize       float32 `yaml:"fine_cell_size"`
	SubdivideThreshold int     `yaml:"subdivide_threshold"`

	// Static store: capacity (0 = unbounded), the count below which
	// statics are scanned directly instead of hashed, and the epsilon
	// expansion applied to movable bounds when querying statics.
	MaxStaticBodies     int     `yaml:"max_static_bodies"`
	StaticScanThreshold int     `yaml:"static_scan_threshold"`
	StaticQueryEpsilon  float32 `yaml:"static_query_epsilon"`

	// Sweep-and-prune axis reselection period in frames.
	AxisReselectPeriod int `yaml:"axis_reselect_period"`

	// Trigger detection: detector count at which direct queries give way
	// to a merged sweep, and the default re-entry cooldown in seconds
	// (0 disables).
	TriggerSweepThreshold  int     `yaml:"trigger_sweep_threshold"`
	TriggerCooldownSeconds float64 `yaml:"trigger_cooldown_seconds"`

	// Scheduler: workload floor below which work is never fanned out,
	// throughput margin required to switch modes, EWMA smoothing factor,
	// hill-climb step and bounds for the batch multiplier, how often the
	// non-current mode is probed, and how many multi-mode reports pass
	// between multiplier adjustments.
	MinWorkload         int     `yaml:"min_workload"`
	HysteresisRatio     float64 `yaml:"hysteresis_ratio"`
	ThroughputSmoothing float64 `yaml:"throughput_smoothing"`
	MultiplierStep      float64 `yaml:"multiplier_step"`
	BatchMultiplierMin  float64 `yaml:"batch_multiplier_min"`
	BatchMultiplierMax  float64 `yaml:"batch_multiplier_max"`
	ProbePeriod         int     `yaml:"probe_period"`
	AdjustInterval      int     `yaml:"adjust_interval"`

	// How often (frames) perf stats are logged at debug level. 0 disables.
	StatsLogPeriod int `yaml:"stats_log_period"`

	Debug bool `yaml:"debug"`
}

func DefaultConfig() *Config {
	return &Config{
		Workers:                0,
		CoarseCellSize:         128,
		FineCellSize:           32,
		SubdivideThreshold:     8,
		MaxStaticBodies:        0,
		StaticScanThreshold:    64,
		StaticQueryEpsilon:     0.5,
		AxisReselectPeriod:     64,
		TriggerSweepThreshold:  8,
		TriggerCooldownSeconds: 0,
		MinWorkload:            64,
		HysteresisRatio:        1.15,
		ThroughputSmoothing:    0.1,
		MultiplierStep:         0.1,
		BatchMultiplierMin:     0.4,
		BatchMultiplierMax:     2.0,
		ProbePeriod:            16,
		AdjustInterval:         8,
		StatsLogPeriod:         300,
	}
}

// LoadConfig reads a YAML file over the defaults, so partial files are fine.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.CoarseCellSize <= 0 {
		return fmt.Errorf("coarse_cell_size must be positive, got %v", c.CoarseCellSize)
	}
	if c.FineCellSize <= 0 || c.FineCellSize > c.CoarseCellSize {
		return fmt.Errorf("fine_cell_size must be in (0, coarse_cell_size], got %v", c.FineCellSize)
	}
	if c.SubdivideThreshold < 2 {
		return fmt.Errorf("subdivide_threshold must be at least 2, got %d", c.SubdivideThreshold)
	}
	if c.AxisReselectPeriod < 1 {
		return fmt.Errorf("axis_reselect_period must be at least 1, got %d", c.AxisReselectPeriod)
	}
	if c.HysteresisRatio < 1 {
		return fmt.Errorf("hysteresis_ratio must be >= 1, got %v", c.HysteresisRatio)
	}
	if c.ThroughputSmoothing <= 0 || c.ThroughputSmoothing > 1 {
		return fmt.Errorf("throughput_smoothing must be in (0, 1], got %v", c.ThroughputSmoothing)
	}
	if c.BatchMultiplierMin <= 0 || c.BatchMultiplierMax < c.BatchMultiplierMin {
		return fmt.Errorf("batch multiplier bounds invalid: [%v, %v]", c.BatchMultiplierMin, c.BatchMultiplierMax)
	}
	if c.MinWorkload < 1 {
		return fmt.Errorf("min_workload must be at least 1, got %d", c.MinWorkload)
	}
	return nil
}
