package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTestNotFound is returned when a test id is not in the catalog.
	ErrTestNotFound = errors.New("test not found")
	// ErrUnknownSection indicates a definition section with an unsupported type.
	ErrUnknownSection = errors.New("unknown section type")
	// ErrIncompleteDefinition indicates a definition lacking a profile or allocation section.
	ErrIncompleteDefinition = errors.New("test definition is incomplete")
	// ErrCorruptSession indicates a persisted envelope that could not be decoded.
	ErrCorruptSession = errors.New("persisted session is corrupt")
	// ErrUnsupportedVersion indicates a persisted envelope with an unknown schema version.
	ErrUnsupportedVersion = errors.New("unsupported session version")
	// ErrUnknownField is returned when editing a field the profile section does not declare.
	ErrUnknownField = errors.New("unknown profile field")
	// ErrFieldLocked is returned when editing a read-only profile field.
	ErrFieldLocked = errors.New("profile field is locked")
	// ErrInvalidFieldValue is returned when a value does not fit the field type.
	ErrInvalidFieldValue = errors.New("invalid field value")
	// ErrUnknownBlock is returned for a block id that is not in the definition.
	ErrUnknownBlock = errors.New("unknown allocation block")
	// ErrUnknownItem is returned for an item id that is not in the block.
	ErrUnknownItem = errors.New("unknown allocation item")
	// ErrUnknownQuestion is returned for a legacy question id that is not in the test.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrUnknownOption is returned for a legacy option id that is not in the question.
	ErrUnknownOption = errors.New("unknown option")
	// ErrWrongMode is returned when an operation does not apply to the session's mode.
	ErrWrongMode = errors.New("operation not available in this test mode")
	// ErrSubmissionInFlight is returned when submit is called while another submit is pending.
	ErrSubmissionInFlight = errors.New("submission already in progress")
	// ErrAlreadySubmitted is returned for any mutation after a confirmed submission.
	ErrAlreadySubmitted = errors.New("answers already submitted")
	// ErrTimerStarted is returned when an activity timer is started twice.
	ErrTimerStarted = errors.New("activity timer already started")
)

// AccessDeniedError is a terminal, user-actionable access failure.
type AccessDeniedError struct {
	State AccessState
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.State)
}

// TransportError means no response was received from a remote service.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport failure: %v", e.Err)
	}
	return "transport failure"
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-success HTTP status from a remote service.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// ValidationKind names which local rule failed.
type ValidationKind string

const (
	InvalidProfile    ValidationKind = "profile"
	InvalidSelection  ValidationKind = "selection"
	InvalidSum        ValidationKind = "sum"
	InvalidRange      ValidationKind = "range"
	InvalidUnanswered ValidationKind = "unanswered"
)

// ValidationError is a local, step-scoped failure that blocks advancement or submission.
type ValidationError struct {
	StepIndex int
	Kind      ValidationKind
	// Target is the offending field, block, or question id.
	Target string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("step %d invalid (%s): %s", e.StepIndex, e.Kind, e.Target)
}

// ApplicationError means the server responded but declined the operation.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	if e.Message == "" {
		return "request declined"
	}
	return e.Message
}
