package ethereum

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/execution-cfg/pkg/ethereum/execution"
)

type Config struct {
	// Execution configuration
	Execution []*execution.Config `yaml:"execution"`
	// Override network name for custom networks (bypasses networkMap)
	OverrideNetworkName *string `yaml:"overrideNetworkName"`
	// FailureThreshold is the number of consecutive failed calls after which
	// a node is benched.
	FailureThreshold int `yaml:"failureThreshold" default:"3"`
	// Cooldown is how long a benched node is skipped.
	Cooldown time.Duration `yaml:"cooldown" default:"30s"`
}

func (c *Config) Validate() error {
	for i, execution := range c.Execution {
		if err := execution.Validate(); err != nil {
			return fmt.Errorf("invalid execution configuration at index %d: %w", i, err)
		}
	}

	if c.FailureThreshold < 0 {
		return errors.New("failureThreshold must not be negative")
	}

	return nil
}
