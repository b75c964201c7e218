package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an engine error. It lets callers errors.As into a
// stable code rather than matching on message text.
type ErrorKind string

const (
	ErrOffsetOutOfBounds ErrorKind = "OffsetOutOfBounds"
	ErrInvalidRange      ErrorKind = "InvalidRange"
	ErrInvalidFirstEvent ErrorKind = "InvalidFirstEvent"
	ErrNotFound          ErrorKind = "NotFound"

	ErrInsufficientParticipants ErrorKind = "InsufficientParticipants"
	ErrTooManyParticipants      ErrorKind = "TooManyParticipants"
	ErrInvalidChallengeDuration ErrorKind = "InvalidChallengeDuration"
	ErrInvalidTurnProgression   ErrorKind = "InvalidTurnProgression"
	ErrNoSignatures             ErrorKind = "NoSignatures"
	ErrChannelIdMismatch        ErrorKind = "ChannelIdMismatch"
	ErrObjectiveNotFound        ErrorKind = "ObjectiveNotFound"
	ErrChannelNotFound          ErrorKind = "ChannelNotFound"

	ErrSignatureInvalid     ErrorKind = "SignatureInvalid"
	ErrSignerNotParticipant ErrorKind = "SignerNotParticipant"
	ErrStateHashMismatch    ErrorKind = "StateHashMismatch"
	ErrSignatureConflict    ErrorKind = "SignatureConflict"

	ErrCanonicalizationError ErrorKind = "CanonicalizationError"
	ErrInvalidPayload        ErrorKind = "InvalidPayload"

	ErrAllocationFailed ErrorKind = "AllocationFailed"
)

// ChannelError is the concrete error type returned across the engine. It
// wraps an ErrorKind and the id of the offending entity (an objective id, a
// channel id, or empty when not applicable), with a short message plus an
// optional "%w"-wrapped cause.
type ChannelError struct {
	Kind   ErrorKind
	Entity string
	msg    string
	cause  error
}

func (e *ChannelError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s [%s %s]", e.msg, e.Kind, e.Entity)
	}
	return fmt.Sprintf("%s [%s]", e.msg, e.Kind)
}

func (e *ChannelError) Unwrap() error { return e.cause }

// Is lets errors.Is(err, SomeKindSentinel) work via kind equality, and also
// lets two *ChannelError of the same kind compare equal.
func (e *ChannelError) Is(target error) bool {
	var other *ChannelError
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(kind ErrorKind, entity string, format string, args ...interface{}) *ChannelError {
	return &ChannelError{Kind: kind, Entity: entity, msg: fmt.Sprintf(format, args...)}
}

func wrapErr(kind ErrorKind, entity string, cause error, format string, args ...interface{}) *ChannelError {
	return &ChannelError{Kind: kind, Entity: entity, msg: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a
// *ChannelError, and reports whether one was found.
func KindOf(err error) (ErrorKind, bool) {
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
