// Package errors provides standardized error handling patterns for RxCraft.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing).
//
// The classification maps directly onto the runtime's error taxonomy:
// configuration errors (malformed expressions, bad JSON arguments) are
// Invalid and recovered locally, runtime/data errors (network failure,
// throwing transforms) are Transient and surfaced as error lifecycle events,
// and Fatal is reserved for conditions that prevent the process from serving
// at all (unusable configuration).
//
// # Quick Start
//
// Use standard error variables for known conditions:
//
//	if _, ok := nodes[edge.Source]; !ok {
//	    return errors.ErrDanglingEdge
//	}
//
// Wrap errors with component and operation context:
//
//	if err := store.Get(ctx, id); err != nil {
//	    return errors.WrapInvalid(err, "flowstore", "Get", "lookup flow")
//	}
//
// Check classification at handling sites:
//
//	if errors.IsInvalid(err) {
//	    // degrade the node, keep the run alive
//	}
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
package errors
