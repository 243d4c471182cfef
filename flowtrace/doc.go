// Package flowtrace tracks where every in-flight event currently is: which
// pipelines it has entered, nested, and which component last ran in each.
//
// A Manager listens to pipeline start/complete and component pre-invoke
// notifications and keeps one persistent flowstack.CallStack per event
// context. The stack of a context is created by its first pipeline start and
// released by the completion that unwinds it, so memory follows the number of
// in-flight events rather than total throughput. Contexts whose completion
// never arrives are released by an idle sweep (Config.MaxIdle).
//
// # Forks
//
// A scatter-gather forks an event into branches. Fork gives every branch a
// child context whose stack starts as a copy of the parent's; because stacks
// are persistent the copy is free and branches never observe each other.
// All contexts of a lineage append to one shared ProcessorsTrace, so the audit
// view sees every component of every branch in execution order. Join releases
// what remains of the branch stacks; the parent resumes where it forked.
//
//	branches := manager.Fork(ev, len(routes))
//	// run each route with its branch event ...
//	manager.Join(ev, branches...)
//
// # Diagnostics
//
// RenderedTrace renders the live stack, most recent pipeline first:
//
//	at nestedFlow(/route_1 @ orders-app:null:null)
//	at rootFlow(/scatter-gather @ orders-app:orders.yaml:14)
//
// The Manager is also a notification.ContextProvider, so a resolver embeds the
// rendered trace in every failure's info map under FlowStackInfoKey.
//
// # Failure semantics
//
// Callbacks never fail and never panic. Completing a pipeline with no active
// stack, annotating outside any pipeline, name mismatches and depth overflow
// are counted as protocol violations and logged at a bounded rate.
package flowtrace
