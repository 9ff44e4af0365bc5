package cfg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-cfg/pkg/asm"
	"github.com/ethpandaops/execution-cfg/pkg/evm"
)

func TestPrune(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		wantBlocks []span
		wantPruned int
	}{
		{
			name:       "dead code after a halt",
			src:        "PUSH1 0x01 STOP PUSH1 0x02 STOP",
			wantBlocks: []span{{0, 2}},
			wantPruned: 1,
		},
		{
			name:       "orphans cascade",
			src:        "STOP a: JUMPDEST PUSH1 @b JUMP b: JUMPDEST STOP",
			wantBlocks: []span{{0, 0}},
			wantPruned: 2,
		},
		{
			name:       "jumpdests survive unresolved jumps",
			src:        "PUSH1 0x00 CALLDATALOAD JUMP JUMPDEST STOP",
			wantBlocks: []span{{0, 3}, {4, 5}},
			wantPruned: 0,
		},
		{
			name:       "unreachable plain block goes even with unresolved jumps",
			src:        "PUSH1 0x00 CALLDATALOAD JUMP PUSH1 0x01 STOP",
			wantBlocks: []span{{0, 3}},
			wantPruned: 1,
		},
		{
			name:       "entry without incoming edges is kept",
			src:        "STOP",
			wantBlocks: []span{{0, 0}},
			wantPruned: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustBuild(t, tt.src)

			assert.Equal(t, tt.wantBlocks, spans(g))
			assert.Equal(t, tt.wantPruned, g.Report.PrunedBlocks)
		})
	}
}

func TestPrune_KeepsJumpDestsAfterAbandonedBranch(t *testing.T) {
	// The entry block carries three targets to mid, whose JUMP is only
	// resolvable by tracing through the entry block.
	const dispatch = `
		PUSH1 @a
		PUSH1 @b
		PUSH1 @c
		PUSH1 @mid
		JUMP
	mid:
		JUMPDEST
		JUMP
	a:
		JUMPDEST
		STOP
	b:
		JUMPDEST
		STOP
	c:
		JUMPDEST
		STOP
	`

	tests := []struct {
		name   string
		src    string
		config *Config
		check  func(t *testing.T, r Report)
	}{
		{
			name:   "width cap",
			src:    dispatch,
			config: &Config{MaxStackDepth: DefaultMaxStackDepth, MaxWidth: 2},
			check: func(t *testing.T, r Report) {
				t.Helper()
				assert.Equal(t, 1, r.CapacityExceeded)
			},
		},
		{
			name:   "depth cap",
			src:    dispatch,
			config: &Config{MaxStackDepth: 2, MaxWidth: DefaultMaxWidth},
			check: func(t *testing.T, r Report) {
				t.Helper()
				assert.Equal(t, 1, r.CapacityExceeded)
			},
		},
		{
			name:   "state limit",
			src:    returnAddressProgram,
			config: &Config{MaxStackDepth: DefaultMaxStackDepth, MaxWidth: DefaultMaxWidth, MaxStates: 1},
			check: func(t *testing.T, r Report) {
				t.Helper()
				assert.True(t, r.BudgetExhausted)
			},
		},
		{
			name:   "stack underflow",
			src:    "PUSH1 @a SWAP1 PUSH1 @mid JUMP mid: JUMPDEST JUMP a: JUMPDEST STOP",
			config: DefaultConfig(),
			check: func(t *testing.T, r Report) {
				t.Helper()
				assert.Equal(t, 1, r.StackUnderflows)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := evm.Decode(asm.MustAssemble(tt.src))
			g := BuildProgram(context.Background(), p, tt.config)

			tt.check(t, g.Report)
			require.Zero(t, g.Report.UnresolvedJumps)
			assert.Zero(t, g.Report.PrunedBlocks)

			for _, pc := range p.JumpDests() {
				_, ok := g.Block(pc)
				assert.True(t, ok, "jumpdest %d was pruned", pc)
			}
		})
	}

	// A complete traversal still prunes what it proved unreachable.
	g := mustBuild(t, "PUSH1 @x JUMP y: JUMPDEST STOP x: JUMPDEST STOP")
	require.False(t, g.Report.Incomplete())
	assert.Equal(t, []span{{0, 2}, {5, 6}}, spans(g))
}

func TestPrune_Idempotent(t *testing.T) {
	g := mustBuild(t, "PUSH1 0x01 STOP PUSH1 0x02 STOP")

	assert.Zero(t, Prune(g))
	assert.Equal(t, 1, g.Report.PrunedBlocks)
}

func TestPrune_EveryBlockReachable(t *testing.T) {
	sources := []string{
		returnAddressProgram,
		"STOP a: JUMPDEST PUSH1 @b JUMP b: JUMPDEST STOP",
		"PUSH1 0x01 PUSH1 @x JUMPI INVALID x: JUMPDEST PUSH1 @y JUMP JUMPDEST y: JUMPDEST STOP",
	}

	for _, src := range sources {
		g := mustBuild(t, src)
		require.Zero(t, g.Report.UnresolvedJumps)

		for _, b := range g.Blocks() {
			if b.Start == 0 {
				continue
			}

			assert.NotEmpty(t, g.Incoming(b.Start), "block %d has no predecessor", b.Start)
		}

		for _, e := range g.Edges() {
			_, okFrom := g.Block(e.From)
			_, okTo := g.Block(e.To)

			assert.True(t, okFrom && okTo, "dangling edge %+v", e)
		}
	}
}
