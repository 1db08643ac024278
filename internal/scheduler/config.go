package scheduler

import (
	"time"

	"github.com/smallbiznis/crm/internal/config"
)

// Config controls how often the run loop wakes up and which jobs it may run.
// Per-job intervals and timeouts live in the hot-reloaded jobs config.
type Config struct {
	RunInterval time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	return c
}
