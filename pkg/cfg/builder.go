package cfg

import (
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/ethpandaops/execution-cfg/pkg/evm"
)

// BuildBlocks partitions the program into basic blocks. A block starts at pc 0,
// at every JUMPDEST and after every terminating instruction. The returned graph
// has no edges.
func BuildBlocks(p *evm.Program) *Graph {
	g := newGraph(p)
	g.Report.DecodeAnomalies = len(p.Anomalies)

	var cur *Block

	for i := range p.Instructions {
		ins := p.Instructions[i]

		if cur == nil || ins.Op == vm.JUMPDEST {
			if cur != nil {
				g.addBlock(cur)
			}

			cur = &Block{Start: ins.PC}
		}

		cur.Instructions = append(cur.Instructions, ins)
		cur.End = ins.Last()

		if evm.IsTerminator(ins.Op) {
			g.addBlock(cur)

			cur = nil
		}
	}

	if cur != nil {
		g.addBlock(cur)
	}

	return g
}

// ResolveDirect adds edges for jumps whose target is pushed by the immediately
// preceding instruction, JUMPI false branches, and blocks that run into the next
// block without a terminator.
func ResolveDirect(g *Graph) {
	for _, b := range g.Blocks() {
		last := b.Terminator()

		switch {
		case evm.IsJump(last.Op):
			if n := len(b.Instructions); n >= 2 {
				prev := &b.Instructions[n-2]
				if pushesConstant(prev.Op) && g.Program.IsJumpDestValue(prev.Value()) {
					g.AddEdge(Edge{From: b.Start, To: uint32(prev.Value().Uint64()), Kind: EdgeDirect})
				}
			}

			if last.Op == vm.JUMPI {
				g.AddEdge(Edge{From: b.Start, To: last.Next(), Kind: EdgeFallthrough})
			}
		case !evm.IsHalt(last.Op):
			g.AddEdge(Edge{From: b.Start, To: last.Next(), Kind: EdgeFallthrough})
		}
	}
}

func pushesConstant(op vm.OpCode) bool {
	return op == vm.PUSH0 || evm.IsPush(op)
}
