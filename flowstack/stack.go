package flowstack

import "strings"

// LineSeparator joins rendered frames
const LineSeparator = "\n"

type node struct {
	frame Frame
	next  *node
	depth int
}

// CallStack is a persistent stack of pipeline frames. Every operation returns
// a new stack and leaves the receiver untouched, so a CallStack can be handed
// to parallel branches without copying or locking. The zero value is an empty
// stack.
type CallStack struct {
	top *node
}

// Push enters a pipeline
func (s CallStack) Push(pipeline string) CallStack {
	return CallStack{top: &node{
		frame: Frame{Pipeline: pipeline},
		next:  s.top,
		depth: s.Depth() + 1,
	}}
}

// Pop exits the most recently entered pipeline. Popping an empty stack returns
// it unchanged with ok false.
func (s CallStack) Pop() (rest CallStack, popped Frame, ok bool) {
	if s.top == nil {
		return s, Frame{}, false
	}
	return CallStack{top: s.top.next}, s.top.frame, true
}

// Annotate records ref as the component running in the top frame. Annotating
// an empty stack returns it unchanged with ok false.
func (s CallStack) Annotate(ref ComponentRef) (CallStack, bool) {
	if s.top == nil {
		return s, false
	}
	frame := s.top.frame
	frame.Component = &ref
	return CallStack{top: &node{frame: frame, next: s.top.next, depth: s.top.depth}}, true
}

// Clone returns an independent copy of s in constant time
func (s CallStack) Clone() CallStack {
	return s
}

// Peek returns the top frame
func (s CallStack) Peek() (Frame, bool) {
	if s.top == nil {
		return Frame{}, false
	}
	return s.top.frame, true
}

// Depth returns the number of active pipelines
func (s CallStack) Depth() int {
	if s.top == nil {
		return 0
	}
	return s.top.depth
}

// IsEmpty reports whether no pipeline is active
func (s CallStack) IsEmpty() bool {
	return s.top == nil
}

// Frames returns the frames, most recently entered first
func (s CallStack) Frames() []Frame {
	frames := make([]Frame, 0, s.Depth())
	for n := s.top; n != nil; n = n.next {
		frames = append(frames, n.frame)
	}
	return frames
}

// Render returns one line per frame, most recently entered first. An empty
// stack renders as "".
func (s CallStack) Render() string {
	if s.top == nil {
		return ""
	}
	var b strings.Builder
	for n := s.top; n != nil; n = n.next {
		if n != s.top {
			b.WriteString(LineSeparator)
		}
		b.WriteString(n.frame.String())
	}
	return b.String()
}

// String implements fmt.Stringer
func (s CallStack) String() string {
	return s.Render()
}
