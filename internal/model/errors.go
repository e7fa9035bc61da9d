package model

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is the parent of every authorization failure. Conversations
// the caller cannot see are reported with it too, never as "not found".
var ErrUnauthorized = errors.New("not authorized")

var (
	ErrNotParticipant     = fmt.Errorf("%w: not a participant of this conversation", ErrUnauthorized)
	ErrNotModerator       = fmt.Errorf("%w: moderator rights required", ErrUnauthorized)
	ErrNotAdmin           = fmt.Errorf("%w: conversation admin rights required", ErrUnauthorized)
	ErrAnnouncementLocked = fmt.Errorf("%w: only moderators can reply to an announcement", ErrUnauthorized)
)

var (
	// ErrValidation marks malformed input rejected before any write
	ErrValidation = errors.New("validation failed")

	// ErrConcurrencyExhausted is returned when the read cursor retry budget is spent.
	// The caller may retry.
	ErrConcurrencyExhausted = errors.New("read position is contended, retry later")

	// ErrAttachmentFailure aborts the whole send
	ErrAttachmentFailure = errors.New("attachment could not be stored")

	ErrAlreadyParticipant = errors.New("user is already a participant")
)

// Validationf wraps ErrValidation with a reason
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
