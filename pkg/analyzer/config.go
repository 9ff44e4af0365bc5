package analyzer

import (
	"fmt"
	"time"

	"github.com/ethpandaops/execution-cfg/pkg/cfg"
)

type Config struct {
	// CFG bounds the symbolic jump tracer of each contract.
	CFG cfg.Config `yaml:"cfg"`
	// Concurrency is the number of contracts fetched and built in parallel.
	Concurrency int `yaml:"concurrency" default:"8"`
	// ExecutedOnly drops blocks the trace never reached from the global graph.
	ExecutedOnly bool `yaml:"executedOnly" default:"false"`
	// CodeBlock is the block tag bytecode is read at.
	CodeBlock string `yaml:"codeBlock" default:"latest"`
	// FetchRetries is the number of times a failed bytecode fetch is retried.
	FetchRetries int `yaml:"fetchRetries" default:"2"`
	// FetchRetryDelay is the initial delay between bytecode fetch attempts.
	FetchRetryDelay time.Duration `yaml:"fetchRetryDelay" default:"200ms"`
}

func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}

	if c.FetchRetries < 0 {
		return fmt.Errorf("fetchRetries must not be negative, got %d", c.FetchRetries)
	}

	if err := c.CFG.Validate(); err != nil {
		return fmt.Errorf("invalid cfg configuration: %w", err)
	}

	return nil
}

// DefaultConfig returns the configuration used by the analyze command when
// no config file is given.
func DefaultConfig() *Config {
	return &Config{
		CFG:             *cfg.DefaultConfig(),
		Concurrency:     8,
		CodeBlock:       "latest",
		FetchRetries:    2,
		FetchRetryDelay: 200 * time.Millisecond,
	}
}
