package model

import (
	"errors"
	"fmt"
)

// Code is the taxonomy code carried by every rejection.
type Code string

const (
	CodeMalformedCommand Code = "MalformedCommand"
	CodeUnknownPrefix    Code = "UnknownPrefix"
	CodeInvalidScope     Code = "InvalidScope"
	CodeAmbiguousChoice  Code = "AmbiguousChoice"
	CodeSessionBusy      Code = "SessionBusy"
	CodeInvalidState     Code = "InvalidState"
)

// RejectError is returned for every request that is refused before or
// instead of being dispatched. It never implies a state change.
type RejectError struct {
	Code       Code
	Msg        string
	Suggestion string
}

func (e *RejectError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (did you mean %q?)", e.Code, e.Msg, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Reject builds a RejectError with a formatted message.
func Reject(code Code, format string, a ...any) *RejectError {
	return &RejectError{Code: code, Msg: fmt.Sprintf(format, a...)}
}

// CodeOf extracts the rejection code from err, if any.
func CodeOf(err error) (Code, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}
