package cfg

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/ethpandaops/execution-cfg/pkg/evm"
)

// slot is a tracked stack entry. A nil slot is an opaque unknown value; a
// non-nil slot always holds a valid jump destination.
type slot = *uint256.Int

// state is a point in the traversal: the block about to be interpreted and the
// abstract stack on entry.
type state struct {
	block uint32
	stack []slot
}

// visitKey identifies a block transition under a given stack.
type visitKey struct {
	from, to  uint32
	signature string
}

// Tracer discovers indirect jump edges with a bounded abstract interpretation
// of the stack. Only constants that are valid jump destinations are tracked.
type Tracer struct {
	config *Config
}

// NewTracer returns a tracer with the given bounds. A nil config uses DefaultConfig.
func NewTracer(config *Config) *Tracer {
	if config == nil {
		config = DefaultConfig()
	}

	return &Tracer{config: config}
}

// run is the per-graph traversal state. It is discarded when Run returns.
type run struct {
	*Tracer

	g       *Graph
	visited map[visitKey]struct{}
	work    []state
}

// Run explores g from its entry block and adds every indirect and fallthrough
// edge it proves. Cancelling ctx or exceeding the configured budget abandons the
// remaining branches; edges already added stay.
func (t *Tracer) Run(ctx context.Context, g *Graph) {
	entry, ok := g.Entry()
	if !ok {
		return
	}

	if t.config.Budget > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, t.config.Budget)
		defer cancel()
	}

	r := &run{
		Tracer:  t,
		g:       g,
		visited: make(map[visitKey]struct{}),
		work:    []state{{block: entry.Start}},
	}

	for len(r.work) > 0 {
		if ctx.Err() != nil || (t.config.MaxStates > 0 && len(r.visited) >= t.config.MaxStates) {
			g.Report.BudgetExhausted = true

			break
		}

		s := r.work[len(r.work)-1]
		r.work = r.work[:len(r.work)-1]

		r.step(s)
	}

	g.Report.VisitedStates = len(r.visited)
}

// step interprets one block and schedules its successors.
func (r *run) step(s state) {
	b, ok := r.g.Block(s.block)
	if !ok {
		return
	}

	stack := s.stack

	for i := range b.Instructions {
		ins := &b.Instructions[i]

		switch op := ins.Op; {
		case op == vm.PUSH0 || evm.IsPush(op):
			v := ins.Value()
			if r.g.Program.IsJumpDestValue(v) {
				stack = push(stack, v)
			} else {
				stack = push(stack, nil)
			}

		case evm.IsDup(op):
			n := int(op-vm.DUP1) + 1
			if len(stack) < n {
				r.g.Report.StackUnderflows++

				return
			}

			stack = push(stack, stack[len(stack)-n])

		case evm.IsSwap(op):
			n := int(op-vm.SWAP1) + 1
			if len(stack) < n+1 {
				r.g.Report.StackUnderflows++

				return
			}

			stack = clone(stack)
			top := len(stack) - 1
			stack[top], stack[top-n] = stack[top-n], stack[top]

		case op == vm.AND:
			if len(stack) < 2 {
				r.g.Report.StackUnderflows++

				return
			}

			a, c := stack[len(stack)-1], stack[len(stack)-2]
			stack = stack[:len(stack)-2]

			var res slot

			if a != nil && c != nil {
				v := new(uint256.Int).And(a, c)
				if r.g.Program.IsJumpDestValue(v) {
					res = v
				}
			}

			stack = push(stack, res)

		case op == vm.JUMP:
			if len(stack) < 1 {
				r.g.Report.UnresolvedJumps++

				return
			}

			target := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if target == nil {
				r.g.Report.UnresolvedJumps++

				return
			}

			r.jump(b, target, stack)

			return

		case op == vm.JUMPI:
			if len(stack) < 2 {
				r.g.Report.UnresolvedJumps++

				return
			}

			target := stack[len(stack)-1]
			stack = stack[:len(stack)-2]

			if target == nil {
				r.g.Report.UnresolvedJumps++
			} else {
				r.jump(b, target, stack)
			}

			r.follow(b, ins.Next(), EdgeFallthrough, stack)

			return

		case evm.IsHalt(op):
			return

		default:
			pops, pushes := evm.StackArity(op)
			if len(stack) < pops {
				r.g.Report.StackUnderflows++

				return
			}

			stack = stack[:len(stack)-pops]
			for j := 0; j < pushes; j++ {
				stack = push(stack, nil)
			}
		}

		if !r.withinCaps(stack) {
			r.g.Report.CapacityExceeded++

			return
		}
	}

	r.follow(b, b.End+1, EdgeFallthrough, stack)
}

func (r *run) jump(from *Block, target slot, stack []slot) {
	to := uint32(target.Uint64())

	if !r.g.HasEdge(Edge{From: from.Start, To: to, Kind: EdgeDirect}) {
		if r.g.AddEdge(Edge{From: from.Start, To: to, Kind: EdgeIndirect}) {
			r.g.Report.IndirectEdges++
		}
	}

	r.schedule(from.Start, to, stack)
}

func (r *run) follow(from *Block, to uint32, kind EdgeKind, stack []slot) {
	if _, ok := r.g.Block(to); !ok {
		return
	}

	r.g.AddEdge(Edge{From: from.Start, To: to, Kind: kind})
	r.schedule(from.Start, to, stack)
}

// schedule queues a transition unless the same transition was already taken
// with an identical stack.
func (r *run) schedule(from, to uint32, stack []slot) {
	key := visitKey{from: from, to: to, signature: signature(stack)}
	if _, ok := r.visited[key]; ok {
		return
	}

	r.visited[key] = struct{}{}
	r.work = append(r.work, state{block: to, stack: stack})
}

func (r *run) withinCaps(stack []slot) bool {
	if len(stack) > r.config.MaxStackDepth {
		return false
	}

	distinct := make(map[uint256.Int]struct{}, r.config.MaxWidth+1)

	for _, s := range stack {
		if s == nil {
			continue
		}

		distinct[*s] = struct{}{}
		if len(distinct) > r.config.MaxWidth {
			return false
		}
	}

	return true
}

// push appends without aliasing the backing array of a stack shared with
// another queued state.
func push(stack []slot, v slot) []slot {
	out := make([]slot, len(stack), len(stack)+1)
	copy(out, stack)

	return append(out, v)
}

func clone(stack []slot) []slot {
	out := make([]slot, len(stack))
	copy(out, stack)

	return out
}

func signature(stack []slot) string {
	var sb strings.Builder

	for _, s := range stack {
		if s == nil {
			sb.WriteString("?,")

			continue
		}

		sb.WriteString(s.Hex())
		sb.WriteByte(',')
	}

	return sb.String()
}
