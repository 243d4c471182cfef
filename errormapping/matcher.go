package errormapping

import (
	"fmt"
	"strings"

	"github.com/c360/flowtrace/errors"
	"github.com/c360/flowtrace/errortype"
)

// Matcher is the source pattern of a mapping rule: a predicate over error types
type Matcher interface {
	Match(t errortype.ErrorType) bool
	String() string
}

type anyMatcher struct{}

// Any matches every error type, including UNKNOWN and CRITICAL ones. Source
// patterns never produce it: "ANY" parses to Hierarchy(errortype.Any).
func Any() Matcher { return anyMatcher{} }

func (anyMatcher) Match(errortype.ErrorType) bool { return true }
func (anyMatcher) String() string                 { return "ANY" }

type exactMatcher struct{ typ errortype.ErrorType }

// Exact matches t only, never its descendants
func Exact(t errortype.ErrorType) Matcher { return exactMatcher{typ: t} }

func (m exactMatcher) Match(t errortype.ErrorType) bool { return t.Equal(m.typ) }
func (m exactMatcher) String() string                   { return "=" + m.typ.String() }

type hierarchyMatcher struct{ typ errortype.ErrorType }

// Hierarchy matches t and every type descending from it
func Hierarchy(t errortype.ErrorType) Matcher { return hierarchyMatcher{typ: t} }

func (m hierarchyMatcher) Match(t errortype.ErrorType) bool { return t.IsA(m.typ) }
func (m hierarchyMatcher) String() string                   { return m.typ.String() }

type wildcardMatcher struct {
	namespace  string
	identifier string
}

// Wildcard matches on namespace and identifier where "*" stands for any value.
// Wildcard("HTTP", "*") matches every HTTP type.
func Wildcard(namespace, identifier string) Matcher {
	return wildcardMatcher{
		namespace:  strings.ToUpper(namespace),
		identifier: strings.ToUpper(identifier),
	}
}

func (m wildcardMatcher) Match(t errortype.ErrorType) bool {
	return (m.namespace == "*" || m.namespace == t.Namespace()) &&
		(m.identifier == "*" || m.identifier == t.Identifier())
}

func (m wildcardMatcher) String() string { return m.namespace + ":" + m.identifier }

type anyOfMatcher struct{ matchers []Matcher }

// AnyOf matches when at least one of matchers does
func AnyOf(matchers ...Matcher) Matcher { return anyOfMatcher{matchers: matchers} }

func (m anyOfMatcher) Match(t errortype.ErrorType) bool {
	for _, inner := range m.matchers {
		if inner.Match(t) {
			return true
		}
	}
	return false
}

func (m anyOfMatcher) String() string {
	parts := make([]string, len(m.matchers))
	for i, inner := range m.matchers {
		parts[i] = inner.String()
	}
	return strings.Join(parts, ", ")
}

// ParseMatcher builds a matcher from its textual form:
//
//	ANY                    every type
//	HTTP:*  *:TIMEOUT      wildcards
//	HTTP:CONNECTIVITY      that type and its descendants (must be declared in repo)
//	A:X, B:Y               any of the comma separated patterns
func ParseMatcher(repo *errortype.Repository, s string) (Matcher, error) {
	parts := strings.Split(s, ",")
	matchers := make([]Matcher, 0, len(parts))
	for _, part := range parts {
		m, err := parseSingle(repo, strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	if len(matchers) == 1 {
		return matchers[0], nil
	}
	return AnyOf(matchers...), nil
}

func parseSingle(repo *errortype.Repository, s string) (Matcher, error) {
	if s == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidMapping, "errormapping", "ParseMatcher", "empty source pattern")
	}
	// CORE:ANY is a root like any other, so CRITICAL types stay unmatched
	if strings.EqualFold(s, "ANY") || strings.EqualFold(s, errortype.Any.String()) {
		return Hierarchy(errortype.Any), nil
	}
	if strings.Contains(s, "*") {
		ns, id, ok := strings.Cut(s, ":")
		if !ok || ns == "" || id == "" {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrInvalidMapping, s),
				"errormapping", "ParseMatcher", "wildcard format (NAMESPACE:IDENTIFIER)")
		}
		return Wildcard(ns, id), nil
	}
	if repo == nil {
		repo = errortype.NewRepository()
	}
	t, ok := repo.LookupString(s)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrUnknownErrorType, s),
			"errormapping", "ParseMatcher", "source type lookup")
	}
	return Hierarchy(t), nil
}
