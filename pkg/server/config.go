package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/execution-cfg/pkg/analyzer"
	"github.com/ethpandaops/execution-cfg/pkg/cache"
	"github.com/ethpandaops/execution-cfg/pkg/clickhouse"
	"github.com/ethpandaops/execution-cfg/pkg/ethereum"
	"github.com/ethpandaops/execution-cfg/pkg/output"
	"github.com/ethpandaops/execution-cfg/pkg/queue"
	"github.com/ethpandaops/execution-cfg/pkg/redis"
	"github.com/ethpandaops/execution-cfg/pkg/storage"
)

type Config struct {
	// MetricsAddr is the address to listen on for metrics.
	MetricsAddr string `yaml:"metricsAddr" default:":9090"`
	// HealthCheckAddr is the address to listen on for healthcheck.
	HealthCheckAddr *string `yaml:"healthCheckAddr"`
	// PProfAddr is the address to listen on for pprof.
	PProfAddr *string `yaml:"pprofAddr"`
	// APIAddr is the address to serve the HTTP API on.
	APIAddr string `yaml:"apiAddr" default:":8080"`
	// LoggingLevel is the logging level to use.
	LoggingLevel string `yaml:"logging" default:"info"`
	// Ethereum is the ethereum network configuration.
	Ethereum ethereum.Config `yaml:"ethereum"`
	// Redis backs the task queue and the bytecode cache.
	Redis *redis.Config `yaml:"redis"`
	// Cache is the bytecode cache configuration.
	Cache cache.Config `yaml:"cache"`
	// Queue is the analysis task queue configuration.
	Queue queue.Config `yaml:"queue"`
	// Analyzer bounds each analysis.
	Analyzer analyzer.Config `yaml:"analyzer"`
	// Output writes DOT files for every analysis when set.
	Output *output.Config `yaml:"output"`
	// ClickHouse stores every analysis when set.
	ClickHouse *clickhouse.Config `yaml:"clickhouse"`
	// Storage names the ClickHouse tables.
	Storage storage.Config `yaml:"storage"`
	// MemoryMonitor logs memory usage periodically.
	MemoryMonitor MemoryMonitorConfig `yaml:"memoryMonitor"`
	// ShutdownTimeout is the timeout for shutting down the server.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
}

type MemoryMonitorConfig struct {
	Enabled             bool          `yaml:"enabled" default:"false"`
	Interval            time.Duration `yaml:"interval" default:"1m"`
	WarningThresholdMB  uint64        `yaml:"warningThresholdMB" default:"2048"`
	CriticalThresholdMB uint64        `yaml:"criticalThresholdMB" default:"4096"`
}

func (c *MemoryMonitorConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}

	if c.CriticalThresholdMB < c.WarningThresholdMB {
		return errors.New("criticalThresholdMB must not be below warningThresholdMB")
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Redis == nil {
		return errors.New("redis configuration is required")
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("invalid redis configuration: %w", err)
	}

	if len(c.Ethereum.Execution) == 0 {
		return ethereum.ErrNoExecutionNodes
	}

	if err := c.Ethereum.Validate(); err != nil {
		return fmt.Errorf("invalid ethereum configuration: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache configuration: %w", err)
	}

	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("invalid queue configuration: %w", err)
	}

	if err := c.Analyzer.Validate(); err != nil {
		return fmt.Errorf("invalid analyzer configuration: %w", err)
	}

	if c.Output != nil {
		if err := c.Output.Validate(); err != nil {
			return fmt.Errorf("invalid output configuration: %w", err)
		}
	}

	if c.ClickHouse != nil {
		if err := c.ClickHouse.Validate(); err != nil {
			return fmt.Errorf("invalid clickhouse configuration: %w", err)
		}

		if err := c.Storage.Validate(); err != nil {
			return fmt.Errorf("invalid storage configuration: %w", err)
		}
	}

	if err := c.MemoryMonitor.Validate(); err != nil {
		return fmt.Errorf("invalid memory monitor configuration: %w", err)
	}

	return nil
}
