package cfg

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-cfg/pkg/asm"
	"github.com/ethpandaops/execution-cfg/pkg/evm"
)

func mustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

func mustBuild(t *testing.T, src string) *Graph {
	t.Helper()

	code, err := asm.Assemble(src)
	require.NoError(t, err)

	return Build(context.Background(), code, nil)
}

type span struct{ start, end uint32 }

func spans(g *Graph) []span {
	out := make([]span, 0, g.NumBlocks())
	for _, b := range g.Blocks() {
		out = append(out, span{b.Start, b.End})
	}

	return out
}

func TestBuildBlocks_Coverage(t *testing.T) {
	codes := []string{
		"5b6004565b00",
		"6080604052348015600f57600080fd5b50603f80601d6000396000f3fe",
		"600160020160035500",
		"5b5b5b",
		"6001576002",
		"61ff",
	}

	for _, c := range codes {
		t.Run(c, func(t *testing.T) {
			p := evm.Decode(mustDecodeHex(t, c))
			g := BuildBlocks(p)

			var next uint32

			for _, b := range g.Blocks() {
				assert.Equal(t, next, b.Start, "gap or overlap before block %d", b.Start)
				assert.GreaterOrEqual(t, b.End, b.Start)

				next = b.End + 1
			}

			assert.Equal(t, p.Len(), next)
		})
	}
}

func TestBuildBlocks_Boundaries(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []span
	}{
		{
			name: "jumpdest opens a block",
			src:  "JUMPDEST PUSH1 0x04 JUMP JUMPDEST STOP",
			want: []span{{0, 3}, {4, 5}},
		},
		{
			name: "jumpi splits its fallthrough",
			src:  "PUSH1 0x01 PUSH1 0x07 JUMPI PUSH1 0x00 JUMPDEST STOP",
			want: []span{{0, 4}, {5, 6}, {7, 8}},
		},
		{
			name: "code after a halt is its own block",
			src:  "STOP PUSH1 0x01 REVERT ADD",
			want: []span{{0, 0}, {1, 3}, {4, 4}},
		},
		{
			name: "straight line is one block",
			src:  "PUSH1 0x01 PUSH1 0x02 ADD",
			want: []span{{0, 4}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := BuildBlocks(evm.Decode(asm.MustAssemble(tt.src)))
			assert.Equal(t, tt.want, spans(g))
		})
	}
}

func TestBuildBlocks_UndefinedOpcodeEndsBlock(t *testing.T) {
	g := BuildBlocks(evm.Decode([]byte{0x60, 0x01, 0x0c, 0x5b, 0x00}))

	assert.Equal(t, []span{{0, 2}, {3, 4}}, spans(g))
}

func TestResolveDirect(t *testing.T) {
	t.Run("push then jump to jumpdest", func(t *testing.T) {
		g := BuildBlocks(evm.Decode(asm.MustAssemble("PUSH1 0x03 JUMP JUMPDEST STOP")))
		ResolveDirect(g)

		assert.Equal(t, []Edge{{From: 0, To: 3, Kind: EdgeDirect}}, g.Edges())
	})

	t.Run("target is not a jumpdest", func(t *testing.T) {
		g := BuildBlocks(evm.Decode(asm.MustAssemble("PUSH1 0x04 JUMP JUMPDEST STOP")))
		ResolveDirect(g)

		assert.Empty(t, g.Edges())
	})

	t.Run("target inside push data", func(t *testing.T) {
		// pc 1 holds 0x5b but belongs to PUSH1's operand.
		g := BuildBlocks(evm.Decode(asm.MustAssemble("PUSH1 0x5b PUSH1 0x01 JUMP")))
		ResolveDirect(g)

		assert.Empty(t, g.Edges())
	})

	t.Run("jumpi adds direct and fallthrough", func(t *testing.T) {
		g := BuildBlocks(evm.Decode(asm.MustAssemble("PUSH1 0x01 PUSH1 0x07 JUMPI PUSH1 0x00 JUMPDEST STOP")))
		ResolveDirect(g)

		assert.Equal(t, []Edge{
			{From: 0, To: 5, Kind: EdgeFallthrough},
			{From: 0, To: 7, Kind: EdgeDirect},
			{From: 5, To: 7, Kind: EdgeFallthrough},
		}, g.Edges())
	})

	t.Run("push0 targets pc zero", func(t *testing.T) {
		g := BuildBlocks(evm.Decode(asm.MustAssemble("JUMPDEST PUSH0 JUMP")))
		ResolveDirect(g)

		assert.Equal(t, []Edge{{From: 0, To: 0, Kind: EdgeDirect}}, g.Edges())
	})

	t.Run("unrelated instruction between push and jump", func(t *testing.T) {
		g := BuildBlocks(evm.Decode(asm.MustAssemble("PUSH1 0x04 DUP1 JUMP JUMPDEST STOP")))
		ResolveDirect(g)

		assert.Empty(t, g.Edges())
	})
}

func TestBuild_EndToEnd(t *testing.T) {
	g := Build(context.Background(), mustDecodeHex(t, "5b6004565b00"), nil)

	assert.Equal(t, []span{{0, 3}, {4, 5}}, spans(g))
	assert.Equal(t, []Edge{{From: 0, To: 4, Kind: EdgeDirect}}, g.Edges())
	assert.Zero(t, g.Report.UnresolvedJumps)
	assert.Zero(t, g.Report.PrunedBlocks)
}

func TestBuild_EmptyCode(t *testing.T) {
	g := Build(context.Background(), nil, nil)

	assert.Zero(t, g.NumBlocks())

	_, ok := g.Entry()
	assert.False(t, ok)
}

func TestGraph_BlockAt(t *testing.T) {
	g := BuildBlocks(evm.Decode(asm.MustAssemble("JUMPDEST PUSH1 0x04 JUMP JUMPDEST STOP")))

	for pc, want := range map[uint32]uint32{0: 0, 1: 0, 2: 0, 3: 0, 4: 4, 5: 4} {
		b, ok := g.BlockAt(pc)
		require.True(t, ok, "pc %d", pc)
		assert.Equal(t, want, b.Start, "pc %d", pc)
	}

	_, ok := g.BlockAt(6)
	assert.False(t, ok)
}

func TestGraph_MarshalJSON(t *testing.T) {
	g := Build(context.Background(), mustDecodeHex(t, "5b6004565b00"), nil)

	raw, err := json.Marshal(g)
	require.NoError(t, err)

	var out struct {
		CodeSize  uint32   `json:"code_size"`
		JumpDests []uint32 `json:"jump_dests"`
		Blocks    []struct {
			Start        uint32   `json:"start"`
			Instructions []string `json:"instructions"`
		} `json:"blocks"`
		Edges []struct {
			Kind string `json:"kind"`
		} `json:"edges"`
	}

	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, uint32(6), out.CodeSize)
	assert.Equal(t, []uint32{0, 4}, out.JumpDests)
	require.Len(t, out.Blocks, 2)
	assert.Equal(t, []string{"0 JUMPDEST", "1 PUSH1 0x04", "3 JUMP"}, out.Blocks[0].Instructions)
	require.Len(t, out.Edges, 1)
	assert.Equal(t, "direct", out.Edges[0].Kind)
}

func TestEdgeKind_String(t *testing.T) {
	assert.Equal(t, "call-return", EdgeCallReturn.String())
	assert.True(t, EdgeFallthrough.Intra())
	assert.False(t, EdgeCall.Intra())
}
