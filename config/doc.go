// Package config loads and validates flowtrace application configuration.
//
// A configuration names the application, tunes call-stack tracking, declares
// application error types and attaches error mappings to component kinds:
//
//	application_id: orders
//	flow_trace:
//	  max_idle: 10m
//	  cleanup_interval: 1m
//	  max_depth: 512
//	error_types:
//	  - type: HTTP:CONNECTIVITY
//	    parent: CORE:CONNECTIVITY
//	components:
//	  http:request:
//	    error_mappings:
//	      - source: HTTP:CONNECTIVITY, HTTP:TIMEOUT
//	        target: CORE:RETRY_EXHAUSTED
//	      - expression: '"CORE:SECURITY" in ancestors'
//	        target: APP:DENIED
//	report:
//	  nats_url: nats://localhost:4222
//
// # Loading
//
// Loader merges YAML or JSON layers (later layers win, lists are replaced),
// checks the merged document against an embedded JSON schema, decodes it over
// DefaultConfig and applies FLOWTRACE_APPLICATION_ID, FLOWTRACE_ENABLED and
// FLOWTRACE_NATS_URL overrides:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.yaml")
//	cfg, err := loader.Load()
//
// Validate builds every declared type and mapping once, so an unknown target
// or a CEL expression that does not compile fails at load time rather than
// when the first pipeline fails.
//
// SafeConfig guards a Config behind a RWMutex and hands out deep copies.
package config
