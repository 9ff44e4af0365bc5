package cfg

import (
	"fmt"
	"time"
)

const (
	DefaultMaxStackDepth = 128
	DefaultMaxWidth      = 10
	DefaultMaxStates     = 1 << 20
)

// Config bounds the symbolic jump tracer.
type Config struct {
	// MaxStackDepth is the number of stack slots tracked before a branch is abandoned.
	MaxStackDepth int `yaml:"maxStackDepth" default:"128"`
	// MaxWidth is the number of distinct jump targets a stack may carry at once.
	MaxWidth int `yaml:"maxWidth" default:"10"`
	// MaxStates caps the visited set of a single run. Zero disables the cap.
	MaxStates int `yaml:"maxStates" default:"1048576"`
	// Budget is the wall-clock budget of a single run. Zero disables it.
	Budget time.Duration `yaml:"budget" default:"30s"`
}

// DefaultConfig returns the tracer bounds used when none are configured.
func DefaultConfig() *Config {
	return &Config{
		MaxStackDepth: DefaultMaxStackDepth,
		MaxWidth:      DefaultMaxWidth,
		MaxStates:     DefaultMaxStates,
		Budget:        30 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.MaxStackDepth <= 0 {
		return fmt.Errorf("maxStackDepth must be positive, got %d", c.MaxStackDepth)
	}

	if c.MaxWidth <= 0 {
		return fmt.Errorf("maxWidth must be positive, got %d", c.MaxWidth)
	}

	if c.MaxStates < 0 {
		return fmt.Errorf("maxStates must not be negative, got %d", c.MaxStates)
	}

	return nil
}

// Report counts the non-fatal conditions met while building a graph.
type Report struct {
	DecodeAnomalies  int  `json:"decode_anomalies"`
	UnresolvedJumps  int  `json:"unresolved_jumps"`
	CapacityExceeded int  `json:"capacity_exceeded"`
	StackUnderflows  int  `json:"stack_underflows"`
	VisitedStates    int  `json:"visited_states"`
	IndirectEdges    int  `json:"indirect_edges"`
	PrunedBlocks     int  `json:"pruned_blocks"`
	BudgetExhausted  bool `json:"budget_exhausted"`
}

// Incomplete reports whether some branch of the traversal was abandoned before
// all of its jumps were resolved.
func (r *Report) Incomplete() bool {
	return r.UnresolvedJumps > 0 || r.CapacityExceeded > 0 || r.StackUnderflows > 0 || r.BudgetExhausted
}
