// Package config holds the VM's runtime tuning knobs, loaded from an
// optional YAML file.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config tunes the scheduler and collector. Zero values in the YAML file
// (or an absent file) fall back to the defaults below.
type Config struct {
	// Workers is the scheduler worker-thread count. Defaults to the
	// number of CPUs.
	Workers int `yaml:"workers"`

	// GCCollectEvery triggers a collection after this many allocations.
	// 0 disables the automatic trigger, leaving collection to explicit
	// CollectGarbage calls.
	GCCollectEvery int64 `yaml:"gc_collect_every"`

	// IdlePoll bounds how long an idle worker sleeps before re-checking
	// the timer wheel and the safepoint coordinator. It is also the upper
	// bound on how long a pending stop-the-world request can wait for a
	// worker that has no task to run.
	IdlePoll time.Duration `yaml:"idle_poll"`
}

func Default() Config {
	return Config{
		Workers:        runtime.NumCPU(),
		GCCollectEvery: 100000,
		IdlePoll:       10 * time.Millisecond,
	}
}

// Load reads a YAML config file and merges it over the defaults. A missing
// path ("" or nonexistent file) returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.merge(file)
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) merge(o Config) {
	if o.Workers != 0 {
		c.Workers = o.Workers
	}
	if o.GCCollectEvery != 0 {
		c.GCCollectEvery = o.GCCollectEvery
	}
	if o.IdlePoll != 0 {
		c.IdlePoll = o.IdlePoll
	}
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.GCCollectEvery < 0 {
		return fmt.Errorf("gc_collect_every must be >= 0, got %d", c.GCCollectEvery)
	}
	if c.IdlePoll <= 0 {
		return fmt.Errorf("idle_poll must be positive, got %s", c.IdlePoll)
	}
	return nil
}
