// Package testutil drives pipelines in tests the way a runtime would.
//
// Runner executes a Flow step by step. Before every step it sends the
// component pre-invoke notification, around every flow it sends pipeline
// start and complete, and it resolves a failure where it is raised so the
// failure's info carries the call stack at that point. Steps are built with:
//
//   - Process: a single processor such as MockComponent
//   - FlowRef: a nested flow invoked from a referencing component
//   - ScatterGather: concurrent routes on forked events; failed routes are
//     gathered into a CompositeRoutingError (CORE:COMPOSITE_ROUTING)
//
// Example:
//
//	manager, _ := flowtrace.NewManager(ctx, cfg)
//	runner := testutil.NewRunner(manager, catalog)
//	flow := testutil.NewFlow("main",
//		testutil.Process(testutil.NewMockComponent("main/processors/0")),
//		testutil.FlowRef(ref, testutil.NewFlow("sub",
//			testutil.Process(testutil.Failing("sub/processors/0", err)))))
//	_, err := runner.Run(ctx, flow, ev)
//
// MockPublisher records published failure reports in memory; no NATS server is
// required.
package testutil
