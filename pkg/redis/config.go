package redis

import (
	"errors"
)

var ErrMissingAddress = errors.New("redis address is required")

type Config struct {
	// host:port or a redis:// URL
	Address string `yaml:"address"`
	// Prefix for every key this service writes
	Prefix string `yaml:"prefix" default:"execution-cfg"`
}

func (c *Config) Validate() error {
	if c.Address == "" {
		return ErrMissingAddress
	}

	if c.Prefix == "" {
		c.Prefix = "execution-cfg"
	}

	return nil
}
