// Package apperrors classifies failures surfaced to the operator.
package apperrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindValidation      Kind = "validation"
	KindAuthorization   Kind = "authorization"
	KindRemoteObjective Kind = "remote_objective"
	KindRemoteFatal     Kind = "remote_fatal"
	KindGeneration      Kind = "generation"
	KindInternal        Kind = "internal"
)

// Error carries a kind, the operation that failed and an operator-facing message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func Configuration(op, format string, args ...any) *Error {
	return New(KindConfiguration, op, fmt.Sprintf(format, args...), nil)
}

func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, fmt.Sprintf(format, args...), nil)
}

func Authorization(op string, err error) *Error {
	return New(KindAuthorization, op, "credential has no access to the ad account", err)
}

func RemoteObjective(op string, err error) *Error {
	return New(KindRemoteObjective, op, "", err)
}

func RemoteFatal(op string, err error) *Error {
	return New(KindRemoteFatal, op, "", err)
}

func GenerationFailure(op string, err error) *Error {
	return New(KindGeneration, op, "image generation failed", err)
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
