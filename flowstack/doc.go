// Package flowstack models the live call stack of an event: one Frame per
// nested pipeline invocation, each annotated with the last component that ran
// inside it.
//
// CallStack is persistent. Push, Pop and Annotate return a new stack and share
// structure with the old one, which makes cloning for a fork free and keeps
// sibling branches from ever observing each other's frames.
//
// Rendering follows a stable, line-oriented format, most recent pipeline first:
//
//	at nestedFlow(/route_1 @ orders-app:null:null)
//	at rootFlow(nestedFlow_ref @ orders-app:orders.yaml:12 (Call nested))
package flowstack
