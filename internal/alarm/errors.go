package alarm

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error class.
type Code string

const (
	ErrInternal     Code = "internal"
	ErrInvalid      Code = "invalid"
	ErrIdentity     Code = "identity"
	ErrTimeout      Code = "timeout"
	ErrInconsistent Code = "inconsistent"
	ErrNotFound     Code = "not_found"
	ErrStorage      Code = "storage"
)

// Error is an application error carrying a Code.
type Error struct {
	Code        Code
	Description string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "alarm: " + string(e.Code) + ": " + e.Description + ": " + e.Err.Error()
	}
	return "alarm: " + string(e.Code) + ": " + e.Description
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted description.
func Errorf(code Code, format string, args ...any) error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and description to err. A nil err stays nil.
func Wrap(code Code, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Description: fmt.Sprintf(format, args...), Err: err}
}

// ErrorCode returns the code of the first *Error in err's chain, or
// ErrInternal if there is none. A nil err has no code.
func ErrorCode(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return ErrInternal
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var e *Error
	for errors.As(err, &e) {
		if e.Code == code {
			return true
		}
		if e.Err == nil {
			return false
		}
		err = e.Err
	}
	return false
}

// ErrorDescription returns a human-readable description of err.
func ErrorDescription(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Description != "" {
		return e.Description
	}
	return "internal error"
}
