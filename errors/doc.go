// Package errors provides standardized error handling patterns for flowtrace packages.
//
// # Overview
//
// The errors package implements a three-class error classification system: Transient
// (temporary, retryable), Invalid (bad input, non-retryable), and Fatal (unrecoverable).
// It is the ambient error layer of the module: configuration loading, catalog
// construction, mapping compilation and report publishing all return errors built
// with these helpers.
//
// It is NOT the classification applied to failing events. That lives in the
// errortype and resolver packages, which assign namespaced error types such as
// HTTP:CONNECTIVITY. The two meet in one place: the error-type catalog can map an
// OpError's class onto a core error type, so failures raised through this package
// classify sensibly even without explicit bindings.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Publisher", "Publish", "nats publish")
//	errors.WrapInvalid(err, "Config", "Validate", "error type reference")
//	errors.WrapFatal(err, "MetricsRegistry", "RegisterCounter", "prometheus register")
//
// The generic Wrap() function preserves the original error's classification:
//
//	errors.Wrap(err, "Component", "Method", "action")
//
// # Standard Error Variables
//
// Pre-defined error variables cover lifecycle (ErrManagerClosed),
// connections (ErrNoConnection, ErrPublishFailed), configuration (ErrInvalidConfig,
// ErrMissingConfig), the error-type catalog (ErrUnknownErrorType,
// ErrDuplicateErrorType, ErrInvalidErrorType) and error mappings (ErrInvalidMapping,
// ErrInvalidExpression).
//
// # Integration with errors.As/Is
//
//	var oe *errors.OpError
//	if errors.As(err, &oe) {
//	    log.Printf("Component: %s, Class: %s", oe.Component, oe.Class)
//	}
//
//	wrapped := errors.Wrap(errors.ErrConnectionTimeout, "Publisher", "Publish", "flush")
//	if errors.IsTransient(wrapped) { // true - classification preserved
//	    // retry
//	}
//
// Context errors (context.DeadlineExceeded, context.Canceled) are classified as
// Transient.
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Error variables
// are immutable and an OpError is safe to share across goroutines after creation.
package errors
