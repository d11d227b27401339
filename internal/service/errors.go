package service

import (
	"errors"
	"fmt"
)

// Kind classifies the errors returned by services.
type Kind int

const (
	KindExternalService Kind = iota
	KindUnauthorized
	KindNotFound
	KindInvalid
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindConfiguration:
		return "configuration"
	default:
		return "external_service"
	}
}

// Error is a classified service error. Message is safe to show to callers;
// Err holds the underlying cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Payload is the remote error body, when a remote service produced one.
	Payload []byte
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. Errors that were never classified count
// as external service errors, so a worker retries them.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindExternalService
}

// MessageOf returns the caller facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

// PayloadOf returns the remote error body carried by err, if any.
func PayloadOf(err error) []byte {
	var e *Error
	if errors.As(err, &e) {
		return e.Payload
	}
	return nil
}

func ErrUnauthorized(op, msg string) error {
	return &Error{Kind: KindUnauthorized, Op: op, Message: msg}
}

func ErrNotFound(op, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: msg}
}

func ErrInvalid(op, msg string) error {
	return &Error{Kind: KindInvalid, Op: op, Message: msg}
}

func ErrConfiguration(op, msg string) error {
	return &Error{Kind: KindConfiguration, Op: op, Message: msg}
}

func ErrExternal(op, msg string, payload []byte, err error) error {
	return &Error{Kind: KindExternalService, Op: op, Message: msg, Payload: payload, Err: err}
}
