package storage

import (
	"errors"
	"time"
)

type Config struct {
	// BlockTable receives one row per block of every frame.
	BlockTable string `yaml:"blockTable" default:"cfg_block"`
	// EdgeTable receives one row per edge of the stitched graph.
	EdgeTable string `yaml:"edgeTable" default:"cfg_edge"`
	// CreateTables runs CREATE TABLE IF NOT EXISTS on start.
	CreateTables bool `yaml:"createTables" default:"true"`

	// Row buffer settings
	BufferMaxRows       int           `yaml:"bufferMaxRows" default:"10000"`
	BufferFlushInterval time.Duration `yaml:"bufferFlushInterval" default:"1s"`
}

func (c *Config) Validate() error {
	if c.BlockTable == "" {
		return errors.New("blockTable is required")
	}

	if c.EdgeTable == "" {
		return errors.New("edgeTable is required")
	}

	if c.BlockTable == c.EdgeTable {
		return errors.New("blockTable and edgeTable must differ")
	}

	return nil
}
