package cfg

import (
	"context"

	"github.com/ethpandaops/execution-cfg/pkg/evm"
)

// Build runs the whole static pipeline on code: decode, split into blocks,
// resolve direct jumps, trace indirect jumps and prune. The result is not
// modified afterwards.
func Build(ctx context.Context, code []byte, config *Config) *Graph {
	return BuildProgram(ctx, evm.Decode(code), config)
}

// BuildProgram is Build for already decoded code.
func BuildProgram(ctx context.Context, p *evm.Program, config *Config) *Graph {
	g := BuildBlocks(p)

	ResolveDirect(g)
	NewTracer(config).Run(ctx, g)
	Prune(g)

	return g
}
