package hl7

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrCodeMissingHeader        ErrorCode = "MISSING_HEADER"
	ErrCodeMissingControlID     ErrorCode = "MISSING_CONTROL_ID"
	ErrCodeUnsupportedFieldName ErrorCode = "UNSUPPORTED_FIELD_NAME"
	ErrCodeFormat               ErrorCode = "FORMAT_ERROR"
	ErrCodeRegistry             ErrorCode = "REGISTRY_ERROR"
	ErrCodeDelimiters           ErrorCode = "DELIMITER_ERROR"
	ErrCodeSelector             ErrorCode = "SELECTOR_ERROR"
)

// Sentinels for errors.Is. Matching is by code only, so a detailed *Error
// returned from Parse or an accessor matches the sentinel with the same code.
var (
	ErrMissingHeader        = &Error{Code: ErrCodeMissingHeader, Message: "no header segment"}
	ErrMissingControlID     = &Error{Code: ErrCodeMissingControlID, Message: "header has no message control id"}
	ErrUnsupportedFieldName = &Error{Code: ErrCodeUnsupportedFieldName, Message: "unsupported field name"}
	ErrFormat               = &Error{Code: ErrCodeFormat, Message: "malformed field value"}
	ErrRegistryConflict     = &Error{Code: ErrCodeRegistry, Message: "conflicting segment registration"}
)

// Error is the single error type produced by the hl7 package.
type Error struct {
	Code    ErrorCode
	Message string
	Segment string
	Value   string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("hl7: %s: %s", e.Code, e.Message)
	if e.Segment != "" {
		msg += fmt.Sprintf(" (segment %s)", e.Segment)
	}
	if e.Value != "" {
		msg += fmt.Sprintf(": %q", e.Value)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func formatError(layout, value string, cause error) *Error {
	return &Error{Code: ErrCodeFormat, Message: "value does not match " + layout, Value: value, Cause: cause}
}

func fieldNameError(segment, name string) *Error {
	return &Error{Code: ErrCodeUnsupportedFieldName, Message: "no field named " + name, Segment: segment}
}
