// Package event models a unit of work flowing through pipelines.
//
// A Context carries the identity the call-stack manager indexes by, the
// originating location and the lineage of forked branches. All contexts of a
// lineage share one ProcessorsTrace, which is how a post-hoc audit sees every
// component that ran across parallel branches in execution order.
//
// An Event is an immutable snapshot on a Context. Failure resolution derives a
// new snapshot carrying a ClassifiedError:
//
//	ctx := event.NewContext("orders/listener")
//	ev := event.New(ctx, payload)
//	failed := ev.WithError(event.NewClassifiedError(errortype.Connectivity, err, ""))
//
// Forking for a scatter-gather creates one child context per branch:
//
//	branch := ev.Fork()
//	branch.Context().Parent() == ev.Context() // true
package event
