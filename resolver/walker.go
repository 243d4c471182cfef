package resolver

import (
	"reflect"

	"github.com/c360/flowtrace/component"
	"github.com/c360/flowtrace/errortype"
)

// CandidateKind tells how a candidate's error type was obtained
type CandidateKind int

const (
	// RawCause is an ordinary error classified through the catalog
	RawCause CandidateKind = iota
	// PipelineCause is a pipeline error without a prior classification,
	// classified through the catalog
	PipelineCause
	// AlreadyClassified is a pipeline error that went through resolution; its
	// error type is reused verbatim
	AlreadyClassified
)

// String returns a string representation of the kind
func (k CandidateKind) String() string {
	switch k {
	case RawCause:
		return "raw"
	case PipelineCause:
		return "pipeline"
	case AlreadyClassified:
		return "classified"
	default:
		return "unknown"
	}
}

// Candidate is one classified cause of a failure
type Candidate struct {
	Kind CandidateKind
	Err  error
	Type errortype.ErrorType
	// Pipeline is set for PipelineCause and AlreadyClassified
	Pipeline *PipelineError
}

// maxWalkNodes bounds how many causes a single walk visits
const maxWalkNodes = 1 << 12

// Walk flattens err into its classified causes, outermost first.
//
// Traversal is depth-first and pre-order over both Unwrap() error and
// Unwrap() []error. A cause already visited is dropped, which cuts
// self-referential chains. Cycles through causes that cannot be compared end
// at maxWalkNodes. Causes classified as CORE:UNKNOWN are excluded. A nil err
// yields no candidates.
func Walk(failing component.Component, err error, locator errortype.Locator) []Candidate {
	if err == nil {
		return nil
	}

	id, hasID := component.IdentifierOf(failing)
	lookup := func(e error) errortype.ErrorType {
		if hasID {
			return locator.LookupComponentErrorType(id, e)
		}
		return locator.LookupErrorType(e)
	}

	var out []Candidate
	seen := newSeenSet()
	stack := []error{err}
	seen.mark(err)

	for visited := 0; len(stack) > 0 && visited < maxWalkNodes; visited++ {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if c, ok := classify(cur, lookup); ok {
			out = append(out, c)
		}

		switch u := cur.(type) {
		case interface{ Unwrap() []error }:
			children := u.Unwrap()
			for i := len(children) - 1; i >= 0; i-- {
				if children[i] != nil && seen.mark(children[i]) {
					stack = append(stack, children[i])
				}
			}
		case interface{ Unwrap() error }:
			if next := u.Unwrap(); next != nil && seen.mark(next) {
				stack = append(stack, next)
			}
		}
	}
	return out
}

func classify(e error, lookup func(error) errortype.ErrorType) (Candidate, bool) {
	pe, isPipeline := e.(*PipelineError)
	if isPipeline && pe.isClassified() {
		ce, _ := pe.Classified()
		if ce.Type().IsUnknown() {
			return Candidate{}, false
		}
		return Candidate{Kind: AlreadyClassified, Err: e, Type: ce.Type(), Pipeline: pe}, true
	}

	t := lookup(e)
	if t.IsZero() || t.IsUnknown() {
		return Candidate{}, false
	}
	if isPipeline {
		return Candidate{Kind: PipelineCause, Err: e, Type: t, Pipeline: pe}, true
	}
	return Candidate{Kind: RawCause, Err: e, Type: t}, true
}

// seenSet tracks visited errors. Values that are not comparable at runtime
// cannot be map keys and are never reported as seen.
type seenSet map[error]struct{}

func newSeenSet() seenSet {
	return make(seenSet, 8)
}

// mark reports whether e was not seen before
func (s seenSet) mark(e error) bool {
	if !reflect.ValueOf(e).Comparable() {
		return true
	}
	if _, ok := s[e]; ok {
		return false
	}
	s[e] = struct{}{}
	return true
}

// sameError reports whether a and b are the same error without panicking on
// non-comparable dynamic types
func sameError(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !reflect.ValueOf(a).Comparable() || !reflect.ValueOf(b).Comparable() {
		return false
	}
	return a == b
}
