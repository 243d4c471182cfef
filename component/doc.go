// Package component defines how the flowtrace packages see a processing step.
//
// # Overview
//
// A Component only has to describe itself (Meta). Everything else is an
// optional capability checked at runtime instead of a class hierarchy:
//
//   - Identifiable: the namespaced kind of the component ("http:request"),
//     used by the error-type catalog for component-specific classification.
//   - Locatable: where the component is declared (path, source file and line,
//     documentation name), used to render flow call stacks.
//   - errormapping.Mapped: per-component error-mapping rules (defined in the
//     errormapping package to keep this package dependency free).
//
// Capability detection is a type assertion:
//
//	if loc, ok := component.LocationOf(c); ok {
//	    fmt.Println(loc.Path)
//	}
//
// Static is a data-only implementation used for components built from
// configuration and in tests.
package component
