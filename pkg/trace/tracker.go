package trace

// callTracker keeps the active frames while walking a trace in order. The
// bottom of the stack is always the root frame.
type callTracker struct {
	stack  []*Frame // Stack of active call frames
	nextID uint32   // Next frame ID to assign
}

func newCallTracker(root *Frame) *callTracker {
	return &callTracker{
		stack:  []*Frame{root},
		nextID: root.ID + 1,
	}
}

// current returns the innermost active frame.
func (ct *callTracker) current() *Frame {
	return ct.stack[len(ct.stack)-1]
}

// open assigns the next frame ID to f and attaches it to the current frame
// without entering it.
func (ct *callTracker) open(f *Frame) {
	parent := ct.current()

	f.ID = ct.nextID
	f.Parent = parent
	f.Depth = parent.Depth + 1
	f.Path = append(append(make([]uint32, 0, len(parent.Path)+1), parent.Path...), f.ID)

	parent.Children = append(parent.Children, f)
	ct.nextID++
}

// enter makes f the current frame.
func (ct *callTracker) enter(f *Frame) {
	ct.stack = append(ct.stack, f)
}

// unwind pops every frame deeper than depth and returns them innermost first.
func (ct *callTracker) unwind(depth uint64) []*Frame {
	var popped []*Frame

	for len(ct.stack) > 1 && ct.current().Depth > depth {
		popped = append(popped, ct.current())
		ct.stack = ct.stack[:len(ct.stack)-1]
	}

	return popped
}
