// Package report publishes resolved pipeline failures.
//
// A Reporter writes every failure to the local slog logger and, when a
// Publisher is configured, publishes it as a JSON Report on
//
//	errors.{application}.{error type namespace}
//
// so that consumers can subscribe to a single application or to one family of
// errors (errors.*.http). Conn is a NATS-backed Publisher; tests use an
// in-memory one.
//
// Publishing never blocks failure handling: a failed publish is logged,
// counted in flowtrace_report_published_total{status="failed"} and returned
// as a transient error for the caller to ignore or retry.
package report
