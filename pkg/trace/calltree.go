package trace

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// CallType is the opcode that opened a frame. The root frame has none.
type CallType string

const (
	CallTypeNone         CallType = ""
	CallTypeCall         CallType = "CALL"
	CallTypeCallCode     CallType = "CALLCODE"
	CallTypeDelegateCall CallType = "DELEGATECALL"
	CallTypeStaticCall   CallType = "STATICCALL"
	CallTypeCreate       CallType = "CREATE"
	CallTypeCreate2      CallType = "CREATE2"
)

func callTypeOf(op string) CallType {
	switch t := CallType(op); t {
	case CallTypeCall, CallTypeCallCode, CallTypeDelegateCall, CallTypeStaticCall, CallTypeCreate, CallTypeCreate2:
		return t
	default:
		return CallTypeNone
	}
}

// IsCreate reports whether the frame runs init code.
func (t CallType) IsCreate() bool {
	return t == CallTypeCreate || t == CallTypeCreate2
}

// Frame is one invocation in the call tree of a transaction.
type Frame struct {
	ID       uint32
	Path     []uint32 // Frame IDs from the root to this frame
	Parent   *Frame
	Children []*Frame
	Depth    uint64
	Type     CallType
	Caller   common.Address
	// Address is the account whose code runs in the frame. For DELEGATECALL
	// and CALLCODE this is the callee, not the storage context.
	Address  common.Address
	Resolved bool

	CallPC   uint32 // pc of the call instruction in the parent
	ReturnPC uint32 // pc of the first parent step after the frame ends
	Returned bool

	// Steps executed by this frame's code, children excluded.
	Steps []Step
}

func (f *Frame) IsRoot() bool {
	return f.Parent == nil
}

// LastStep returns the final step executed by the frame itself.
func (f *Frame) LastStep() (Step, bool) {
	if len(f.Steps) == 0 {
		return Step{}, false
	}

	return f.Steps[len(f.Steps)-1], true
}

// HasRuntimeCode reports whether the frame executed deployed code that can be
// fetched by address.
func (f *Frame) HasRuntimeCode() bool {
	return f.Resolved && !f.Type.IsCreate() && len(f.Steps) > 0 && !IsPrecompile(f.Address)
}

// Tree is the call tree of one transaction. Frames are indexed by ID.
type Tree struct {
	Root   *Frame
	Frames []*Frame

	steps []Step
}

// BuildCallTree walks the steps in order and splits them into frames by call
// depth. root is the transaction recipient, or the zero address for contract
// creations.
func BuildCallTree(steps []Step, root common.Address) *Tree {
	rootFrame := &Frame{
		Path:     []uint32{0},
		Address:  root,
		Resolved: root != (common.Address{}),
	}

	if !rootFrame.Resolved {
		rootFrame.Type = CallTypeCreate
	}

	if len(steps) > 0 {
		rootFrame.Depth = steps[0].Depth
	}

	tree := &Tree{
		Root:   rootFrame,
		Frames: []*Frame{rootFrame},
		steps:  steps,
	}

	ct := newCallTracker(rootFrame)

	var pending *Frame

	for i := range steps {
		s := &steps[i]

		if pending != nil {
			switch cur := ct.current().Depth; {
			case s.Depth > cur:
				ct.enter(pending)
			case s.Depth == cur:
				// Nothing executed: an account without code, a precompile or
				// a call that failed before entering.
				returned(pending, s)
			default:
				// The call instruction itself failed and unwound the caller,
				// so the frame never returns into it.
			}

			pending = nil
		}

		if popped := ct.unwind(s.Depth); len(popped) > 0 {
			returned(popped[len(popped)-1], s)
		}

		cur := ct.current()

		if s.Address != nil && !cur.Resolved {
			cur.Address = *s.Address
			cur.Resolved = true
		}

		cur.Steps = append(cur.Steps, *s)

		if t := callTypeOf(s.Op); t != CallTypeNone {
			f := &Frame{Type: t, Caller: cur.Address, CallPC: s.PC}

			if !t.IsCreate() {
				// Stack: [..., addr, gas] for every CALL variant.
				if v, ok := s.stackBack(1); ok {
					f.Address, f.Resolved = ParseAddress(v)
				}
			}

			ct.open(f)
			tree.Frames = append(tree.Frames, f)
			pending = f
		}
	}

	return tree
}

// returned records the parent step s that follows frame f. For creations the
// new contract address is on top of the stack at that point, zero on failure.
func returned(f *Frame, s *Step) {
	f.ReturnPC = s.PC
	f.Returned = true

	if !f.Type.IsCreate() || f.Resolved {
		return
	}

	v, ok := s.stackBack(0)
	if !ok {
		return
	}

	if addr, ok := ParseAddress(v); ok && addr != (common.Address{}) {
		f.Address = addr
		f.Resolved = true
	}
}

// Frame returns the frame with the given ID.
func (t *Tree) Frame(id uint32) (*Frame, bool) {
	if int(id) >= len(t.Frames) {
		return nil, false
	}

	return t.Frames[id], true
}

// Contracts lists the distinct addresses whose deployed code ran, sorted.
func (t *Tree) Contracts() []common.Address {
	seen := make(map[common.Address]struct{})
	out := make([]common.Address, 0)

	for _, f := range t.Frames {
		if !f.HasRuntimeCode() {
			continue
		}

		if _, ok := seen[f.Address]; ok {
			continue
		}

		seen[f.Address] = struct{}{}
		out = append(out, f.Address)
	}

	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })

	return out
}

// NumSteps returns the number of steps in the whole trace.
func (t *Tree) NumSteps() int {
	return len(t.steps)
}
