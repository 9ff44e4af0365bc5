// Package highlight overlays an execution trace onto a static control-flow graph.
package highlight

import (
	"sort"

	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/ethpandaops/execution-cfg/pkg/cfg"
	"github.com/ethpandaops/execution-cfg/pkg/trace"
)

// Tag classifies a block for presentation.
type Tag string

const (
	TagNone          Tag = ""
	TagStateMutating Tag = "state-mutating"
	TagArithmetic    Tag = "arithmetic"
	TagExecutedPlain Tag = "executed-plain"
)

// Classify returns the tag a block carries from its opcodes alone.
func Classify(b *cfg.Block) Tag {
	switch {
	case b.Contains(vm.SSTORE):
		return TagStateMutating
	case b.Contains(vm.ADD, vm.SUB):
		return TagArithmetic
	default:
		return TagNone
	}
}

// Annotation marks which blocks and edges of a graph a trace executed. It is
// never modified after Highlight returns it.
type Annotation struct {
	Graph *cfg.Graph `json:"-"`

	blocks map[uint32]struct{}
	edges  map[cfg.Edge]struct{}
	tags   map[uint32]Tag

	first, last uint32
	any         bool

	// Steps is the number of steps consumed.
	Steps int `json:"steps"`
	// BlockMismatches counts steps whose pc is not an instruction of any block.
	BlockMismatches int `json:"block_mismatches"`
	// EdgeMismatches counts block transitions with no edge in the graph.
	EdgeMismatches int `json:"edge_mismatches"`
}

// Highlight replays steps, all executed by the code of g, in order.
func Highlight(g *cfg.Graph, steps []trace.Step) *Annotation {
	a := &Annotation{
		Graph:  g,
		blocks: make(map[uint32]struct{}),
		edges:  make(map[cfg.Edge]struct{}),
		tags:   make(map[uint32]Tag, g.NumBlocks()),
		Steps:  len(steps),
	}

	var (
		prev   *cfg.Block
		prevPC uint32
	)

	for i := range steps {
		pc := steps[i].PC

		b, ok := g.BlockAt(pc)
		if !ok {
			a.BlockMismatches++

			continue
		}

		if _, ok := g.Program.At(pc); !ok {
			a.BlockMismatches++

			continue
		}

		a.blocks[b.Start] = struct{}{}

		if !a.any {
			a.first, a.any = b.Start, true
		}

		a.last = b.Start

		if prev != nil && (prev != b || pc <= prevPC) {
			if e, ok := transition(g, prev, b); ok {
				a.edges[e] = struct{}{}
			} else {
				a.EdgeMismatches++
			}
		}

		prev, prevPC = b, pc
	}

	for _, b := range g.Blocks() {
		tag := Classify(b)
		if tag == TagNone {
			if _, ok := a.blocks[b.Start]; ok {
				tag = TagExecutedPlain
			}
		}

		if tag != TagNone {
			a.tags[b.Start] = tag
		}
	}

	return a
}

// transition picks the edge from one block to the next, preferring the kind
// implied by the source block's terminator.
func transition(g *cfg.Graph, from, to *cfg.Block) (cfg.Edge, bool) {
	var kinds []cfg.EdgeKind

	last := from.Terminator()

	switch {
	case last.Op == vm.JUMPI && to.Start == last.Next():
		kinds = []cfg.EdgeKind{cfg.EdgeFallthrough, cfg.EdgeDirect, cfg.EdgeIndirect}
	case last.Op == vm.JUMP || last.Op == vm.JUMPI:
		kinds = []cfg.EdgeKind{cfg.EdgeDirect, cfg.EdgeIndirect}
	default:
		kinds = []cfg.EdgeKind{cfg.EdgeFallthrough}
	}

	for _, k := range kinds {
		e := cfg.Edge{From: from.Start, To: to.Start, Kind: k}
		if g.HasEdge(e) {
			return e, true
		}
	}

	for _, e := range g.Outgoing(from.Start) {
		if e.To == to.Start {
			return e, true
		}
	}

	return cfg.Edge{}, false
}

// Executed reports whether the block starting at start ran.
func (a *Annotation) Executed(start uint32) bool {
	_, ok := a.blocks[start]

	return ok
}

// EdgeExecuted reports whether control passed along e.
func (a *Annotation) EdgeExecuted(e cfg.Edge) bool {
	_, ok := a.edges[e]

	return ok
}

// Tag returns the presentation tag of the block starting at start.
func (a *Annotation) Tag(start uint32) Tag {
	return a.tags[start]
}

// ExecutedBlocks returns the starts of executed blocks in ascending order.
func (a *Annotation) ExecutedBlocks() []uint32 {
	out := make([]uint32, 0, len(a.blocks))
	for start := range a.blocks {
		out = append(out, start)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// ExecutedEdges returns the executed edges ordered like cfg.Graph.Edges.
func (a *Annotation) ExecutedEdges() []cfg.Edge {
	out := make([]cfg.Edge, 0, len(a.edges))
	for _, e := range a.Graph.Edges() {
		if _, ok := a.edges[e]; ok {
			out = append(out, e)
		}
	}

	return out
}

// FirstBlock returns the first block the trace executed.
func (a *Annotation) FirstBlock() (uint32, bool) {
	return a.first, a.any
}

// LastBlock returns the block executed by the final matched step.
func (a *Annotation) LastBlock() (uint32, bool) {
	return a.last, a.any
}

// Mismatches is the total of skipped steps and unmatched transitions.
func (a *Annotation) Mismatches() int {
	return a.BlockMismatches + a.EdgeMismatches
}
