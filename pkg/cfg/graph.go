// Package cfg recovers the static control-flow graph of EVM bytecode.
package cfg

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/ethpandaops/execution-cfg/pkg/evm"
)

// EdgeKind is the closed set of edge types.
type EdgeKind uint8

const (
	EdgeDirect EdgeKind = iota
	EdgeIndirect
	EdgeFallthrough
	EdgeCall
	EdgeCallReturn
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeDirect:
		return "direct"
	case EdgeIndirect:
		return "indirect"
	case EdgeFallthrough:
		return "fallthrough"
	case EdgeCall:
		return "call"
	case EdgeCallReturn:
		return "call-return"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k EdgeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Intra reports whether edges of this kind stay inside one contract.
func (k EdgeKind) Intra() bool {
	return k == EdgeDirect || k == EdgeIndirect || k == EdgeFallthrough
}

// Edge connects two blocks identified by their start pc.
type Edge struct {
	From uint32   `json:"from"`
	To   uint32   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Block is a maximal straight-line run of instructions.
type Block struct {
	Start uint32
	// End is the pc of the last byte owned by the block.
	End          uint32
	Instructions []evm.Instruction
}

// Terminator returns the final instruction of the block.
func (b *Block) Terminator() *evm.Instruction {
	return &b.Instructions[len(b.Instructions)-1]
}

// IsJumpDest reports whether the block is headed by a JUMPDEST.
func (b *Block) IsJumpDest() bool {
	return b.Instructions[0].Op == vm.JUMPDEST
}

// Contains reports whether the block contains an instruction with op.
func (b *Block) Contains(ops ...vm.OpCode) bool {
	for i := range b.Instructions {
		for _, op := range ops {
			if b.Instructions[i].Op == op {
				return true
			}
		}
	}

	return false
}

// Graph is the control-flow graph of a single contract.
type Graph struct {
	Program *evm.Program
	Report  Report

	blocks map[uint32]*Block
	starts []uint32
	edges  map[Edge]struct{}
	out    map[uint32]map[Edge]struct{}
	in     map[uint32]map[Edge]struct{}
}

func newGraph(p *evm.Program) *Graph {
	return &Graph{
		Program: p,
		blocks:  make(map[uint32]*Block),
		edges:   make(map[Edge]struct{}),
		out:     make(map[uint32]map[Edge]struct{}),
		in:      make(map[uint32]map[Edge]struct{}),
	}
}

func (g *Graph) addBlock(b *Block) {
	g.blocks[b.Start] = b
	g.starts = append(g.starts, b.Start)
}

// AddEdge inserts an edge between two existing blocks. Duplicate edges are ignored.
// It returns true if the edge was new.
func (g *Graph) AddEdge(e Edge) bool {
	if _, ok := g.blocks[e.From]; !ok {
		return false
	}

	if _, ok := g.blocks[e.To]; !ok {
		return false
	}

	if _, ok := g.edges[e]; ok {
		return false
	}

	g.edges[e] = struct{}{}

	if g.out[e.From] == nil {
		g.out[e.From] = make(map[Edge]struct{})
	}

	if g.in[e.To] == nil {
		g.in[e.To] = make(map[Edge]struct{})
	}

	g.out[e.From][e] = struct{}{}
	g.in[e.To][e] = struct{}{}

	return true
}

// HasEdge reports whether the exact edge exists.
func (g *Graph) HasEdge(e Edge) bool {
	_, ok := g.edges[e]

	return ok
}

func (g *Graph) removeBlock(start uint32) {
	for e := range g.out[start] {
		delete(g.edges, e)
		delete(g.in[e.To], e)
	}

	for e := range g.in[start] {
		delete(g.edges, e)
		delete(g.out[e.From], e)
	}

	delete(g.out, start)
	delete(g.in, start)
	delete(g.blocks, start)

	i := sort.Search(len(g.starts), func(i int) bool { return g.starts[i] >= start })
	if i < len(g.starts) && g.starts[i] == start {
		g.starts = append(g.starts[:i], g.starts[i+1:]...)
	}
}

// Entry returns the block at pc 0.
func (g *Graph) Entry() (*Block, bool) {
	b, ok := g.blocks[0]

	return b, ok
}

// Block returns the block starting at start.
func (g *Graph) Block(start uint32) (*Block, bool) {
	b, ok := g.blocks[start]

	return b, ok
}

// BlockAt returns the block whose range contains pc.
func (g *Graph) BlockAt(pc uint32) (*Block, bool) {
	i := sort.Search(len(g.starts), func(i int) bool { return g.starts[i] > pc })
	if i == 0 {
		return nil, false
	}

	b := g.blocks[g.starts[i-1]]
	if pc > b.End {
		return nil, false
	}

	return b, true
}

// Blocks returns all blocks ordered by start pc.
func (g *Graph) Blocks() []*Block {
	out := make([]*Block, 0, len(g.starts))
	for _, s := range g.starts {
		out = append(out, g.blocks[s])
	}

	return out
}

// NumBlocks returns the number of blocks.
func (g *Graph) NumBlocks() int {
	return len(g.starts)
}

// Edges returns all edges in a stable order.
func (g *Graph) Edges() []Edge {
	return sortEdges(g.edges)
}

// NumEdges returns the number of edges.
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

// Outgoing returns the edges leaving the block at start.
func (g *Graph) Outgoing(start uint32) []Edge {
	return sortEdges(g.out[start])
}

// Incoming returns the edges entering the block at start.
func (g *Graph) Incoming(start uint32) []Edge {
	return sortEdges(g.in[start])
}

func sortEdges(set map[Edge]struct{}) []Edge {
	out := make([]Edge, 0, len(set))
	for e := range set {
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}

		if out[i].To != out[j].To {
			return out[i].To < out[j].To
		}

		return out[i].Kind < out[j].Kind
	})

	return out
}

type blockJSON struct {
	Start        uint32   `json:"start"`
	End          uint32   `json:"end"`
	Instructions []string `json:"instructions"`
}

type graphJSON struct {
	CodeSize  uint32      `json:"code_size"`
	JumpDests []uint32    `json:"jump_dests"`
	Blocks    []blockJSON `json:"blocks"`
	Edges     []Edge      `json:"edges"`
	Report    Report      `json:"report"`
}

// MarshalJSON implements json.Marshaler.
func (g *Graph) MarshalJSON() ([]byte, error) {
	out := graphJSON{
		CodeSize:  g.Program.Len(),
		JumpDests: g.Program.JumpDests(),
		Blocks:    make([]blockJSON, 0, len(g.starts)),
		Edges:     g.Edges(),
		Report:    g.Report,
	}

	for _, b := range g.Blocks() {
		bj := blockJSON{Start: b.Start, End: b.End, Instructions: make([]string, 0, len(b.Instructions))}
		for _, ins := range b.Instructions {
			bj.Instructions = append(bj.Instructions, ins.String())
		}

		out.Blocks = append(out.Blocks, bj)
	}

	return json.Marshal(out)
}
