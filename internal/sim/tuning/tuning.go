package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning is the runtime configuration for the water simulation server.
// Missing or zero fields fall back to defaults.
type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz"`
	MaxTicksPerAdvance int `yaml:"max_ticks_per_advance"`
	UpdateBudget       int `yaml:"update_budget"`

	WorldHeight   int `yaml:"world_height"`
	GroundY       int `yaml:"ground_y"`
	PreloadChunkR int `yaml:"preload_chunk_r"`

	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	StatsWindowTicks   int `yaml:"stats_window_ticks"`
}

func Default() Tuning {
	t := Tuning{}
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 20
	}
	if t.MaxTicksPerAdvance <= 0 {
		t.MaxTicksPerAdvance = 2
	}
	if t.UpdateBudget <= 0 {
		t.UpdateBudget = 64
	}
	if t.WorldHeight <= 0 {
		t.WorldHeight = 64
	}
	if t.GroundY <= 0 {
		t.GroundY = 8
	}
	if t.PreloadChunkR <= 0 {
		t.PreloadChunkR = 2
	}
	if t.SnapshotEveryTicks <= 0 {
		t.SnapshotEveryTicks = 600
	}
	if t.StatsWindowTicks <= 0 {
		t.StatsWindowTicks = 100
	}
}

func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

// Load reads a tuning YAML file. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	var t Tuning
	if path == "" {
		t.applyDefaults()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	return t, nil
}
