// Package stitch joins per-frame highlighted graphs into one transaction graph
// linked by call and call-return edges.
package stitch

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethpandaops/execution-cfg/pkg/cfg"
	"github.com/ethpandaops/execution-cfg/pkg/highlight"
	"github.com/ethpandaops/execution-cfg/pkg/trace"
)

// NodeID names one block of one frame's graph instance. Placeholders use block 0.
type NodeID struct {
	Frame uint32 `json:"frame"`
	Block uint32 `json:"block"`
}

func (id NodeID) String() string {
	return fmt.Sprintf("f%d_b%d", id.Frame, id.Block)
}

// Node is a block instance, or a placeholder for a frame without a graph.
type Node struct {
	ID          NodeID         `json:"id"`
	Address     common.Address `json:"address"`
	Block       *cfg.Block     `json:"-"`
	Executed    bool           `json:"executed"`
	Tag         highlight.Tag  `json:"tag,omitempty"`
	Placeholder bool           `json:"placeholder,omitempty"`
}

// Edge is an intra-frame edge or a call linking two frames.
type Edge struct {
	From     NodeID         `json:"from"`
	To       NodeID         `json:"to"`
	Kind     cfg.EdgeKind   `json:"kind"`
	Executed bool           `json:"executed"`
	CallType trace.CallType `json:"call_type,omitempty"`
}

// Instance is the view of one frame.
type Instance struct {
	Frame *trace.Frame
	// View is nil when the frame's code is unknown.
	View *highlight.Annotation
}

// Report counts frames that could not be linked completely.
type Report struct {
	Frames int `json:"frames"`
	// Placeholders counts frames whose code had no graph.
	Placeholders int `json:"placeholders"`
	// UnmatchedCalls counts call or return pcs outside the caller's graph.
	UnmatchedCalls int `json:"unmatched_calls"`
}

// Options controls what Stitch includes.
type Options struct {
	// ExecutedOnly drops blocks the trace never reached.
	ExecutedOnly bool
}

// GlobalGraph is the stitched graph of a transaction. It is read-only.
type GlobalGraph struct {
	Tree      *trace.Tree
	Instances []*Instance
	Report    Report

	nodes  []Node
	index  map[NodeID]int
	frames []int // offset of each frame's first node in nodes, plus len(nodes)
	edges  []Edge
}

// Stitch builds the global graph. views maps frame IDs to the highlighted
// graph of the code each frame ran.
func Stitch(tree *trace.Tree, views map[uint32]*highlight.Annotation, opts Options) *GlobalGraph {
	g := &GlobalGraph{
		Tree:      tree,
		Instances: make([]*Instance, len(tree.Frames)),
		index:     make(map[NodeID]int),
	}

	g.Report.Frames = len(tree.Frames)

	for _, f := range tree.Frames {
		view := views[f.ID]
		g.Instances[f.ID] = &Instance{Frame: f, View: view}

		if view == nil {
			g.Report.Placeholders++
			g.addNode(Node{ID: NodeID{Frame: f.ID}, Address: f.Address, Executed: len(f.Steps) > 0, Placeholder: true})

			continue
		}

		g.addFrame(f, view, opts)
	}

	g.order()

	for _, f := range tree.Frames {
		if f.IsRoot() {
			continue
		}

		g.link(f)
	}

	return g
}

func (g *GlobalGraph) addFrame(f *trace.Frame, view *highlight.Annotation, opts Options) {
	for _, b := range view.Graph.Blocks() {
		executed := view.Executed(b.Start)
		if opts.ExecutedOnly && !executed {
			continue
		}

		g.addNode(Node{
			ID:       NodeID{Frame: f.ID, Block: b.Start},
			Address:  f.Address,
			Block:    b,
			Executed: executed,
			Tag:      view.Tag(b.Start),
		})
	}

	for _, e := range view.Graph.Edges() {
		from, to := NodeID{Frame: f.ID, Block: e.From}, NodeID{Frame: f.ID, Block: e.To}
		if !g.HasNode(from) || !g.HasNode(to) {
			continue
		}

		g.edges = append(g.edges, Edge{From: from, To: to, Kind: e.Kind, Executed: view.EdgeExecuted(e)})
	}
}

// link adds the call edge into f and, if f returned, the edge back.
func (g *GlobalGraph) link(f *trace.Frame) {
	callSite, ok := g.blockOf(f.Parent, f.CallPC)
	if !ok {
		g.Report.UnmatchedCalls++

		return
	}

	entry := NodeID{Frame: f.ID}
	if !g.HasNode(entry) {
		g.Report.UnmatchedCalls++

		return
	}

	g.edges = append(g.edges, Edge{From: callSite, To: entry, Kind: cfg.EdgeCall, Executed: true, CallType: f.Type})

	if !f.Returned {
		return
	}

	resume, ok := g.blockOf(f.Parent, f.ReturnPC)
	if !ok {
		g.Report.UnmatchedCalls++

		return
	}

	exit := entry
	if view := g.Instances[f.ID].View; view != nil {
		if last, ok := view.LastBlock(); ok {
			exit.Block = last
		}
	}

	g.edges = append(g.edges, Edge{From: exit, To: resume, Kind: cfg.EdgeCallReturn, Executed: true, CallType: f.Type})
}

// blockOf returns the node of frame f holding pc.
func (g *GlobalGraph) blockOf(f *trace.Frame, pc uint32) (NodeID, bool) {
	view := g.Instances[f.ID].View
	if view == nil {
		return NodeID{Frame: f.ID}, true
	}

	b, ok := view.Graph.BlockAt(pc)
	if !ok {
		return NodeID{}, false
	}

	id := NodeID{Frame: f.ID, Block: b.Start}

	return id, g.HasNode(id)
}

func (g *GlobalGraph) addNode(n Node) {
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
}

// HasNode reports whether id is part of the graph.
func (g *GlobalGraph) HasNode(id NodeID) bool {
	_, ok := g.index[id]

	return ok
}

// Node returns the node with the given ID.
func (g *GlobalGraph) Node(id NodeID) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}

	return g.nodes[i], true
}

// order sorts the nodes by frame, then block, and records where each frame's
// nodes begin.
func (g *GlobalGraph) order() {
	sort.SliceStable(g.nodes, func(i, j int) bool {
		if g.nodes[i].ID.Frame != g.nodes[j].ID.Frame {
			return g.nodes[i].ID.Frame < g.nodes[j].ID.Frame
		}

		return g.nodes[i].ID.Block < g.nodes[j].ID.Block
	})

	g.frames = make([]int, len(g.Instances)+1)

	for i, n := range g.nodes {
		g.index[n.ID] = i
	}

	next := 0

	for frame := range g.Instances {
		for next < len(g.nodes) && g.nodes[next].ID.Frame < uint32(frame) {
			next++
		}

		g.frames[frame] = next
	}

	g.frames[len(g.Instances)] = len(g.nodes)
}

// Nodes returns every node ordered by frame, then block.
func (g *GlobalGraph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)

	return out
}

// FrameNodes returns the nodes of one frame ordered by block.
func (g *GlobalGraph) FrameNodes(frame uint32) []Node {
	if int(frame) >= len(g.Instances) {
		return nil
	}

	lo, hi := g.frames[frame], g.frames[frame+1]
	out := make([]Node, hi-lo)
	copy(out, g.nodes[lo:hi])

	return out
}

// Edges returns every edge in insertion order: intra-frame edges first, then
// call links in frame order.
func (g *GlobalGraph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)

	return out
}

// EdgesOfKind returns the edges of the given kind.
func (g *GlobalGraph) EdgesOfKind(kind cfg.EdgeKind) []Edge {
	var out []Edge

	for _, e := range g.edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}

	return out
}

// Root returns the frame of the transaction recipient.
func (g *GlobalGraph) Root() *Instance {
	return g.Instances[0]
}
