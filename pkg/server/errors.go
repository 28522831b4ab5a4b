/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package server

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	atlaserrors "github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/serializer"
)

// StatusClientClosedRequest mirrors the nginx convention for cancelled
// requests; net/http has no named constant for 499.
const StatusClientClosedRequest = 499

// ErrorResponse is the wire form of a failed operation.
type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId"`
	Timestamp time.Time      `json:"timestamp"`
	Retryable bool           `json:"retryable"`
}

// HTTPStatusFromCode maps a canonical error code to an HTTP status. This
// keeps transport-layer semantics centralized.
func HTTPStatusFromCode(code atlaserrors.ErrorCode) int {
	switch code {
	case atlaserrors.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case atlaserrors.ErrCodeNotFound:
		return http.StatusNotFound
	case atlaserrors.ErrCodeStale:
		return http.StatusConflict
	case atlaserrors.ErrCodeCancelled:
		return StatusClientClosedRequest
	case atlaserrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case atlaserrors.ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case atlaserrors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case atlaserrors.ErrCodeIntegrity, atlaserrors.ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

func retryableFromCode(code atlaserrors.ErrorCode) bool {
	switch code {
	case atlaserrors.ErrCodeRateLimitExceeded,
		atlaserrors.ErrCodeCancelled,
		atlaserrors.ErrCodeUnavailable,
		atlaserrors.ErrCodeInternal:
		return true
	}
	return false
}

// WriteError writes an ErrorResponse for an explicit code and message.
func WriteError(w http.ResponseWriter, r *http.Request, code atlaserrors.ErrorCode, message string, details map[string]any) {
	requestID, _ := r.Context().Value(contextKeyRequestID).(string)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	serializer.RespondJSON(w, HTTPStatusFromCode(code), ErrorResponse{
		Code:      string(code),
		Message:   message,
		Details:   details,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Retryable: retryableFromCode(code),
	})
}

// WriteErrorFromErr maps a structured error onto the wire, falling back to
// INTERNAL for unclassified errors.
func WriteErrorFromErr(w http.ResponseWriter, r *http.Request, err error) {
	var se *atlaserrors.StructuredError
	if stderrors.As(err, &se) {
		WriteError(w, r, se.Code, se.Message, se.Context)
		return
	}
	WriteError(w, r, atlaserrors.ErrCodeInternal, err.Error(), nil)
}
