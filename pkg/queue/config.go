package queue

import (
	"errors"
	"time"
)

type Config struct {
	// Concurrency is the number of analyses a worker runs at once.
	Concurrency int `yaml:"concurrency" default:"4"`
	// Queue is the asynq queue analysis tasks go to.
	Queue string `yaml:"queue" default:"cfg:analyze"`
	// MaxRetry is the number of retries of a failed analysis.
	MaxRetry int `yaml:"maxRetry" default:"3"`
	// Timeout bounds a single analysis.
	Timeout time.Duration `yaml:"timeout" default:"5m"`
	// Retention keeps completed tasks so duplicates can be detected.
	Retention time.Duration `yaml:"retention" default:"1h"`
}

func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return errors.New("concurrency must be positive")
	}

	if c.Queue == "" {
		return errors.New("queue is required")
	}

	if c.MaxRetry < 0 {
		return errors.New("maxRetry must not be negative")
	}

	return nil
}
