// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package staging

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

// RejectReason classifies why staging refused an attachment.
type RejectReason string

const (
	// TooLarge: the document exceeds the configured byte ceiling.
	TooLarge RejectReason = "too_large"
	// TooMany: admitting the image batch would exceed the staged-count cap.
	TooMany RejectReason = "too_many"
)

// ValidationError is a locally recovered staging rejection. The
// conversation state is untouched; the message is surfaced to the user
// as a transient notice.
// Use errors.Is with ErrTooLarge / ErrTooMany to check the reason.
type ValidationError struct {
	Reason  RejectReason
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// Is implements errors.Is support, matching on the reject reason.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

// ErrTooLarge is the comparison target for document-size rejections.
var ErrTooLarge = &ValidationError{Reason: TooLarge, Message: "attachment too large"}

// ErrTooMany is the comparison target for image-count rejections.
var ErrTooMany = &ValidationError{Reason: TooMany, Message: "too many images"}
