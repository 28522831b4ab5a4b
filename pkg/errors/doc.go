/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package errors provides structured error types for better observability
// and programmatic error handling across the application.
//
// # Overview
//
// This package implements a structured error system with error codes for
// programmatic handling, human-readable messages, cause chaining, and
// optional context for debugging. It supports the standard errors.Is and
// errors.As functions through the Unwrap interface.
//
// # Error Codes
//
// Predefined error codes align with the API error contract:
//   - ErrCodeInvalidArgument: Caller-supplied constraints violated (HTTP 400)
//   - ErrCodeNotFound: Resource not found (HTTP 404)
//   - ErrCodeStale: Snapshot hash does not match the loaded graph (HTTP 409)
//   - ErrCodeCancelled: Deadline expired or explicit cancel (HTTP 499)
//   - ErrCodeRateLimitExceeded: Rate limit exceeded (HTTP 429)
//   - ErrCodeIntegrity: On-disk artifact failed validation (HTTP 500)
//   - ErrCodeInternal: Internal invariant violation (HTTP 500)
//
// # Usage
//
// Create a simple error:
//
//	err := errors.New(errors.ErrCodeNotFound, "cluster not found")
//
// Wrap an existing error:
//
//	err := errors.Wrap(errors.ErrCodeInternal, "solve failed", originalErr)
//
// Wrap with additional context (offending ids are truncated to MaxContextIDs):
//
//	err := errors.WrapWithContext(
//	    errors.ErrCodeInvalidArgument,
//	    "edges reference missing nodes",
//	    nil,
//	    map[string]any{
//	        "offenders": errors.TruncateIDs(missing),
//	        "total":     len(missing),
//	    },
//	)
//
// # Thread Safety
//
// All functions in this package are thread-safe and can be called concurrently.
package errors
