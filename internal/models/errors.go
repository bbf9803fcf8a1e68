package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies panel errors. Callers branch on the kind, never on the message.
type ErrorKind string

const (
	KindInvalidConfiguration ErrorKind = "INVALID_CONFIGURATION"
	KindHardwareIO           ErrorKind = "HARDWARE_IO"
	KindTimeout              ErrorKind = "TIMEOUT"
	KindNotSupported         ErrorKind = "NOT_SUPPORTED"
	KindInvalidArgument      ErrorKind = "INVALID_ARGUMENT"
	KindBusy                 ErrorKind = "BUSY"
	KindNotFound             ErrorKind = "NOT_FOUND"
)

// PanelError is a structured panel error.
type PanelError struct {
	Kind    ErrorKind `json:"error"`
	Op      string    `json:"op,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *PanelError) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PanelError) Unwrap() error { return e.Err }

// Is matches any PanelError of the same kind, so errors.Is(err, ErrNotSupported)
// works for errors built with the constructors below.
func (e *PanelError) Is(target error) bool {
	t, ok := target.(*PanelError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus maps the error kind onto a status code for the control API.
func (e *PanelError) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidArgument, KindInvalidConfiguration:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindBusy:
		return http.StatusConflict
	case KindNotSupported:
		return http.StatusNotImplemented
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindHardwareIO:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Sentinels for errors.Is.
var (
	ErrNotSupported  = &PanelError{Kind: KindNotSupported, Message: "not supported"}
	ErrTimeout       = &PanelError{Kind: KindTimeout, Message: "timed out"}
	ErrInvalidConfig = &PanelError{Kind: KindInvalidConfiguration, Message: "invalid configuration"}
	ErrHardwareIO    = &PanelError{Kind: KindHardwareIO, Message: "hardware i/o failure"}
	ErrBusy          = &PanelError{Kind: KindBusy, Message: "busy"}
	ErrInvalidArg    = &PanelError{Kind: KindInvalidArgument, Message: "invalid argument"}
)

// Brightness math failures. These are plain errors: they never reach the API.
var (
	ErrInvalidRange    = errors.New("invalid interpolation range")
	ErrNoMatchingRange = errors.New("no matching brightness range")
)

// Error constructors.
var (
	ErrConfig = func(op, format string, args ...any) *PanelError {
		return &PanelError{Kind: KindInvalidConfiguration, Op: op, Message: fmt.Sprintf(format, args...)}
	}
	ErrHardware = func(op string, err error) *PanelError {
		return &PanelError{Kind: KindHardwareIO, Op: op, Message: "hardware i/o failure", Err: err}
	}
	ErrTimedOut = func(op string) *PanelError {
		return &PanelError{Kind: KindTimeout, Op: op, Message: "timed out"}
	}
	ErrUnsupported = func(op string) *PanelError {
		return &PanelError{Kind: KindNotSupported, Op: op, Message: "not supported"}
	}
	ErrBadArgument = func(op, format string, args ...any) *PanelError {
		return &PanelError{Kind: KindInvalidArgument, Op: op, Message: fmt.Sprintf(format, args...)}
	}
	ErrNotFound = func(op, format string, args ...any) *PanelError {
		return &PanelError{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
	}
	ErrInUse = func(op, format string, args ...any) *PanelError {
		return &PanelError{Kind: KindBusy, Op: op, Message: fmt.Sprintf(format, args...)}
	}
)
