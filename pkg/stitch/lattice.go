package stitch

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/zboralski/lattice"

	"github.com/ethpandaops/execution-cfg/pkg/cfg"
	"github.com/ethpandaops/execution-cfg/pkg/evm"
	"github.com/ethpandaops/execution-cfg/pkg/trace"
)

// FrameName labels a frame in exported graphs.
func FrameName(f *trace.Frame) string {
	if !f.Resolved {
		return fmt.Sprintf("%d:unknown", f.ID)
	}

	return fmt.Sprintf("%d:%s", f.ID, f.Address.Hex())
}

// CallGraph exports the frame level call tree.
func (g *GlobalGraph) CallGraph() *lattice.Graph {
	lg := &lattice.Graph{}

	for _, inst := range g.Instances {
		lg.Nodes = append(lg.Nodes, FrameName(inst.Frame))

		if p := inst.Frame.Parent; p != nil {
			lg.Edges = append(lg.Edges, lattice.Edge{
				Caller: FrameName(p),
				Callee: FrameName(inst.Frame),
			})
		}
	}

	lg.Dedup()

	return lg
}

// CFG exports one function per frame. Block bounds are pcs, end exclusive.
func (g *GlobalGraph) CFG() *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}

	for _, inst := range g.Instances {
		nodes := g.FrameNodes(inst.Frame.ID)
		fn := &lattice.FuncCFG{Name: FrameName(inst.Frame)}
		ids := make(map[uint32]int, len(nodes))

		for i, n := range nodes {
			ids[n.ID.Block] = i

			lb := &lattice.BasicBlock{ID: i, Start: int(n.ID.Block), End: int(n.ID.Block) + 1, Term: true}
			if n.Block != nil {
				lb.End = int(n.Block.End) + 1
				lb.Term = evm.IsHalt(n.Block.Terminator().Op)
			}

			fn.Blocks = append(fn.Blocks, lb)
		}

		for _, e := range g.edges {
			if e.From.Frame != inst.Frame.ID {
				continue
			}

			from := fn.Blocks[ids[e.From.Block]]

			switch {
			case e.Kind.Intra():
				from.Succs = append(from.Succs, lattice.Successor{
					BlockID: ids[e.To.Block],
					Cond:    condition(nodes[ids[e.From.Block]], e.Kind),
				})
			case e.Kind == cfg.EdgeCall:
				callee := g.Tree.Frames[e.To.Frame]
				from.Calls = append(from.Calls, lattice.CallSite{
					Offset: int(callee.CallPC),
					Callee: FrameName(callee),
				})
			}
		}

		cg.Funcs = append(cg.Funcs, fn)
	}

	return cg
}

// condition maps an edge to a branch label: T taken, F not taken, empty for
// unconditional flow.
func condition(n Node, kind cfg.EdgeKind) string {
	if n.Block == nil || n.Block.Terminator().Op != vm.JUMPI {
		return ""
	}

	if kind == cfg.EdgeFallthrough {
		return "F"
	}

	return "T"
}
