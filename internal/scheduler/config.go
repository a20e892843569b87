package scheduler

import (
	"time"
)

// Config controls the billing runner interval and batch size.
type Config struct {
	RunInterval   time.Duration
	BatchSize     int
	ChargeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   time.Minute,
		BatchSize:     100,
		ChargeTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.ChargeTimeout <= 0 {
		c.ChargeTimeout = defaults.ChargeTimeout
	}
	return c
}
