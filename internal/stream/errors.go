// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"
)

// =============================================================================
// TRANSPORT ERROR
// =============================================================================

// TransportError represents a failed exchange: a non-success response
// status, a network error, or a malformed stream. Partial preserves any
// content received before the failure.
type TransportError struct {
	Status  int    // HTTP status, 0 for network-level failures
	Partial string // Content received before the error
	Err     error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Partial != "":
		return fmt.Sprintf("exchange failed with HTTP %d (partial content: %d chars)", e.Status, len(e.Partial))
	case e.Status != 0:
		return fmt.Sprintf("exchange failed with HTTP %d", e.Status)
	case e.Partial != "":
		return fmt.Sprintf("exchange failed (partial content: %d chars): %v", len(e.Partial), e.Err)
	default:
		return fmt.Sprintf("exchange failed: %v", e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
