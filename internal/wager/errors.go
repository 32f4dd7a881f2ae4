package wager

import (
	"errors"
	"fmt"

	"github.com/coldbell/wager/backend/internal/fixedpoint"
)

// ProgramError is the custom error code surfaced to callers of the program.
type ProgramError uint32

const (
	ErrInvalidInstructionData ProgramError = iota
	ErrUnauthorisedAccess
	ErrDeserialize
	ErrConvertWithOverflow
	ErrOperationWithOverflow
)

// ErrAssertion is the code shared by every human-readable requirement
// failure.
const ErrAssertion ProgramError = 255

func (e ProgramError) Error() string {
	switch e {
	case ErrInvalidInstructionData:
		return "invalid instruction data"
	case ErrUnauthorisedAccess:
		return "unauthorised access"
	case ErrDeserialize:
		return "deserialize error"
	case ErrConvertWithOverflow:
		return "convert with overflow"
	case ErrOperationWithOverflow:
		return "operation with overflow"
	case ErrAssertion:
		return "requirement failed"
	default:
		return fmt.Sprintf("custom program error: %#x", uint32(e))
	}
}

// RequireError carries the message of a failed requirement.
type RequireError struct {
	Message string
}

func (e *RequireError) Error() string {
	return e.Message
}

func (e *RequireError) Is(target error) bool {
	code, ok := target.(ProgramError)
	return ok && code == ErrAssertion
}

func require(cond bool, message string) error {
	if cond {
		return nil
	}
	return &RequireError{Message: message}
}

// Code extracts the program error code from err.
func Code(err error) (ProgramError, bool) {
	var requireErr *RequireError
	if errors.As(err, &requireErr) {
		return ErrAssertion, true
	}
	var code ProgramError
	if errors.As(err, &code) {
		return code, true
	}
	return 0, false
}

func invalidAccount(role string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidInstructionData, role, fmt.Sprintf(format, args...))
}

func mathError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fixedpoint.ErrConvertOverflow):
		return fmt.Errorf("%w: %v", ErrConvertWithOverflow, err)
	case errors.Is(err, fixedpoint.ErrOperationOverflow):
		return fmt.Errorf("%w: %v", ErrOperationWithOverflow, err)
	default:
		return err
	}
}
