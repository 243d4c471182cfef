// Package errormapping implements per-component error-mapping rules: an ordered
// list of (source pattern -> target type) pairs applied after a failure has been
// classified, where the first matching rule wins.
package errormapping

import (
	"github.com/c360/flowtrace/errors"
	"github.com/c360/flowtrace/errortype"
)

// Rule remaps error types matched by Source onto Target
type Rule struct {
	Source Matcher
	Target errortype.ErrorType
}

// NewRule builds a rule, rejecting incomplete ones
func NewRule(source Matcher, target errortype.ErrorType) (Rule, error) {
	if source == nil {
		return Rule{}, errors.WrapInvalid(errors.ErrInvalidMapping, "errormapping", "NewRule", "missing source pattern")
	}
	if target.IsZero() {
		return Rule{}, errors.WrapInvalid(errors.ErrInvalidMapping, "errormapping", "NewRule", "missing target type")
	}
	return Rule{Source: source, Target: target}, nil
}

// Match reports whether the rule applies to t
func (r Rule) Match(t errortype.ErrorType) bool {
	return r.Source != nil && r.Source.Match(t)
}

// String renders "source -> target"
func (r Rule) String() string {
	src := "<nil>"
	if r.Source != nil {
		src = r.Source.String()
	}
	return src + " -> " + r.Target.String()
}

// Table is an ordered list of rules. It is never mutated once attached to a component.
type Table []Rule

// Resolve returns the target of the first rule matching t. Without a match it
// returns t unchanged and false.
func (tbl Table) Resolve(t errortype.ErrorType) (errortype.ErrorType, bool) {
	for _, r := range tbl {
		if r.Match(t) {
			return r.Target, true
		}
	}
	return t, false
}

// Mapped is implemented by components that carry error mappings
type Mapped interface {
	ErrorMappings() Table
}

// For returns the mappings of v, or nil when v carries none
func For(v any) Table {
	if m, ok := v.(Mapped); ok {
		return m.ErrorMappings()
	}
	return nil
}
