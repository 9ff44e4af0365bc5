package redis

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Options parses the configured address into client options.
func Options(config *Config) (*redis.Options, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	if strings.Contains(config.Address, "://") {
		opts, err := redis.ParseURL(config.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}

		return opts, nil
	}

	return &redis.Options{Addr: config.Address}, nil
}

// New creates a new Redis client from configuration
func New(config *Config) (*redis.Client, error) {
	opts, err := Options(config)
	if err != nil {
		return nil, err
	}

	return redis.NewClient(opts), nil
}
