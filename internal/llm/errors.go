// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrEmptyTurn indicates a stream ended with neither text nor tool calls.
	ErrEmptyTurn = errors.New("stream ended with neither text nor tool calls")

	// ErrTooManyTurns indicates the tool-calling loop exceeded its
	// configured maximum number of turns.
	ErrTooManyTurns = errors.New("maximum generation turns exceeded")
)

// =============================================================================
// VALIDATION ERROR
// =============================================================================

// ValidationError reports malformed caller input: an unsupported attachment
// extension, a tool call naming an unregistered function, or bad
// configuration. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// =============================================================================
// TRANSPORT ERROR
// =============================================================================

// TransportError reports a non-200 HTTP status or an underlying socket
// failure. The response body, when available, is captured for diagnostics.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Status != 0 {
		if e.Body != "" {
			return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Body)
		}
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// =============================================================================
// DECODE ERROR
// =============================================================================

// DecodeError reports a malformed frame or a protocol-level inconsistency
// in the streamed response. The whole turn is discarded; there is no
// partial-result recovery.
type DecodeError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "decode error: " + e.Message + ": " + e.Err.Error()
	}
	return "decode error: " + e.Message
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// =============================================================================
// TOOL ERROR
// =============================================================================

// ToolError reports a failed or panicked tool implementation. A single
// failure aborts the entire dispatch batch.
type ToolError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return "tool " + e.Name + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Err
}
