package apperr

import (
	"errors"
	"fmt"
)

// Type classifies an error by the stage that produced it.
type Type string

const (
	TypeValidation Type = "validation"
	TypeDecode     Type = "decode"
	TypeAPI        Type = "api"
	TypeStorage    Type = "storage"
	TypeConfig     Type = "config"
	TypeNotFound   Type = "not_found"
)

// Error carries a Type alongside the wrapped cause.
type Error struct {
	Type    Type
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new typed error
func New(t Type, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

func Validation(message string, err error) *Error { return New(TypeValidation, message, err) }
func Decode(message string, err error) *Error     { return New(TypeDecode, message, err) }
func API(message string, err error) *Error        { return New(TypeAPI, message, err) }
func Storage(message string, err error) *Error    { return New(TypeStorage, message, err) }
func Config(message string, err error) *Error     { return New(TypeConfig, message, err) }
func NotFound(message string, err error) *Error   { return New(TypeNotFound, message, err) }

// Is reports whether any error in err's chain is an *Error of type t.
func Is(err error, t Type) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}
