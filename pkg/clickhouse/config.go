package clickhouse

import (
	"errors"
	"fmt"
	"time"

	"github.com/creasty/defaults"
)

var ErrMissingAddr = errors.New("addr is required")

// Config holds configuration for the ch-go native client.
type Config struct {
	// Native protocol address, e.g. "localhost:9000"
	Addr     string `yaml:"addr"`
	Database string `yaml:"database" default:"default"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	MaxConns          int32         `yaml:"maxConns" default:"10"`
	MinConns          int32         `yaml:"minConns" default:"2"`
	ConnMaxLifetime   time.Duration `yaml:"connMaxLifetime" default:"1h"`
	ConnMaxIdleTime   time.Duration `yaml:"connMaxIdleTime" default:"30m"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod" default:"1m"`
	DialTimeout       time.Duration `yaml:"dialTimeout" default:"10s"`

	// lz4, zstd or none
	Compression string `yaml:"compression" default:"lz4"`

	MaxRetries     int           `yaml:"maxRetries" default:"3"`
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay" default:"100ms"`
	RetryMaxDelay  time.Duration `yaml:"retryMaxDelay" default:"10s"`

	// Per attempt
	QueryTimeout time.Duration `yaml:"queryTimeout" default:"60s"`

	// Metrics label
	Network string `yaml:"network"`
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return ErrMissingAddr
	}

	switch c.Compression {
	case "", "lz4", "zstd", "none":
	default:
		return fmt.Errorf("unknown compression %q", c.Compression)
	}

	return nil
}

// SetDefaults fills unset fields from the default tags.
func (c *Config) SetDefaults() error {
	return defaults.Set(c)
}
