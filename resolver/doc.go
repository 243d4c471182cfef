// Package resolver selects the most relevant classified cause of a pipeline
// failure and enriches the failure with diagnostic context.
//
// A failure arrives as a *PipelineError wrapping an arbitrary error graph.
// Walk flattens the graph into classified candidates; causes the catalog
// classifies as CORE:UNKNOWN are left out. The Resolver picks the error type
// of the outermost candidate and reports the innermost cause of that type, so
// that wrapper errors re-raising the same failure do not hide where it started:
//
//	chain: A(unknown) -> B(TIMEOUT) -> C(TIMEOUT) -> D(VALIDATION)
//	type:  TIMEOUT
//	cause: C
//
// Error mappings declared on the failing component translate the selected type
// before it is attached to the event.
//
// # Enrichment
//
// Enrich asks every registered context provider for entries and adds them to
// the failure's info map. A key that is already set is never overwritten. The
// call-stack manager contributes the rendered trace under the "FlowStack" key.
package resolver
