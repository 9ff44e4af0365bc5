package cache

import (
	"errors"
	"time"
)

type Config struct {
	Enabled bool          `yaml:"enabled" default:"true"`
	TTL     time.Duration `yaml:"ttl" default:"24h"`
}

func (c *Config) Validate() error {
	if c.Enabled && c.TTL <= 0 {
		return errors.New("ttl must be positive")
	}

	return nil
}
