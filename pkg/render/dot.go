// Package render serialises control-flow graphs to DOT and images.
package render

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"
	lrender "github.com/zboralski/lattice/render"

	"github.com/ethpandaops/execution-cfg/pkg/cfg"
	"github.com/ethpandaops/execution-cfg/pkg/highlight"
	"github.com/ethpandaops/execution-cfg/pkg/stitch"
)

// Options controls DOT output.
type Options struct {
	Title        string
	ExecutedOnly bool
	Theme        Theme
}

func (o Options) theme() Theme {
	if o.Theme.Tags == nil {
		return TokyoNight
	}

	return o.Theme
}

func newGraph(title string, t Theme) *dot.Graph {
	g := dot.NewGraph(dot.Directed)
	g.Attr("bgcolor", t.Background)
	g.Attr("fontcolor", t.Foreground)
	g.Attr("fontname", t.Font)

	if title != "" {
		g.Attr("label", title)
		g.Attr("labelloc", "t")
	}

	return g
}

func blockLabel(b *cfg.Block, tag highlight.Tag) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "[%d..%d]", b.Start, b.End)

	if tag != highlight.TagNone {
		fmt.Fprintf(&sb, " %s", tag)
	}

	for i := range b.Instructions {
		sb.WriteByte('\n')
		sb.WriteString(b.Instructions[i].String())
	}

	return sb.String()
}

func blockNode(g *dot.Graph, id string, b *cfg.Block, tag highlight.Tag, t Theme) dot.Node {
	return g.Node(id).
		Box().
		Label(blockLabel(b, tag)).
		Attr("style", "filled").
		Attr("fillcolor", t.fill(tag)).
		Attr("fontcolor", t.fontColor(tag)).
		Attr("color", t.Foreground).
		Attr("fontname", t.Font)
}

func styleEdge(e dot.Edge, kind cfg.EdgeKind, executed bool, t Theme) dot.Edge {
	if !kind.Intra() {
		return e.Bold().Attr("color", t.Call).Attr("penwidth", "2").Label(kind.String())
	}

	if !executed {
		return e.Dashed().Attr("color", t.Unexecuted)
	}

	return e.Solid().Attr("color", t.Edges[kind])
}

// ContractDOT renders one contract graph with its execution overlay.
func ContractDOT(a *highlight.Annotation, opts Options) *dot.Graph {
	t := opts.theme()
	g := newGraph(opts.Title, t)
	nodes := make(map[uint32]dot.Node)

	for _, b := range a.Graph.Blocks() {
		if opts.ExecutedOnly && !a.Executed(b.Start) {
			continue
		}

		nodes[b.Start] = blockNode(g, fmt.Sprintf("b%d", b.Start), b, a.Tag(b.Start), t)
	}

	for _, e := range a.Graph.Edges() {
		from, okFrom := nodes[e.From]
		to, okTo := nodes[e.To]

		if !okFrom || !okTo {
			continue
		}

		styleEdge(g.Edge(from, to), e.Kind, a.EdgeExecuted(e), t)
	}

	return g
}

// GlobalDOT renders the stitched transaction graph with one cluster per frame.
func GlobalDOT(gg *stitch.GlobalGraph, opts Options) *dot.Graph {
	t := opts.theme()
	g := newGraph(opts.Title, t)
	nodes := make(map[stitch.NodeID]dot.Node)

	for _, inst := range gg.Instances {
		sub := g.Subgraph(stitch.FrameName(inst.Frame), dot.ClusterOption{})
		sub.Attr("color", t.Unexecuted)
		sub.Attr("fontcolor", t.Foreground)

		for _, n := range gg.FrameNodes(inst.Frame.ID) {
			if n.Placeholder {
				nodes[n.ID] = sub.Node(n.ID.String()).
					Label(fmt.Sprintf("unknown contract\n%s", n.Address.Hex())).
					Attr("shape", "octagon").
					Attr("style", "dashed").
					Attr("color", t.Unexecuted).
					Attr("fontcolor", t.Foreground).
					Attr("fontname", t.Font)

				continue
			}

			nodes[n.ID] = blockNode(sub, n.ID.String(), n.Block, n.Tag, t)
		}
	}

	for _, e := range gg.Edges() {
		from, okFrom := nodes[e.From]
		to, okTo := nodes[e.To]

		if !okFrom || !okTo {
			continue
		}

		edge := styleEdge(g.Edge(from, to), e.Kind, e.Executed, t)
		if e.CallType != "" {
			edge.Attr("tooltip", string(e.CallType))
		}
	}

	return g
}

// LatticeDOT renders the frame call graph and the per-frame graphs through
// lattice.
func LatticeDOT(gg *stitch.GlobalGraph, name string) (callGraph, frames string) {
	return lrender.DOT(gg.CallGraph(), name), lrender.DOTCFG(gg.CFG(), name)
}
