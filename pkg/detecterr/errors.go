// Package detecterr defines the single error type returned by the detector
// discovery packages.
//
// Every failure carries a Kind. Callers branch on the kind with errors.Is
// against the exported sentinels, or extract it with KindOf:
//
//	if errors.Is(err, detecterr.ErrMalformedCircuit) {
//	    ...
//	}
package detecterr

import (
	"errors"
	"fmt"
)

// Kind discriminates the failure classes.
type Kind int

const (
	KindUnknown Kind = iota
	MalformedCircuit
	InvalidOffset
	NonDeterministicCollapse
	IncompatibleMerge
	MissingCoordinate
	InvalidConstruction
)

// Error codes, stable across releases.
const (
	CodeUnknown                  = "DET000"
	CodeMalformedCircuit         = "DET001"
	CodeInvalidOffset            = "DET002"
	CodeNonDeterministicCollapse = "DET003"
	CodeIncompatibleMerge        = "DET004"
	CodeMissingCoordinate        = "DET005"
	CodeInvalidConstruction      = "DET006"
)

// Code returns the stable error code of the kind.
func (k Kind) Code() string {
	switch k {
	case MalformedCircuit:
		return CodeMalformedCircuit
	case InvalidOffset:
		return CodeInvalidOffset
	case NonDeterministicCollapse:
		return CodeNonDeterministicCollapse
	case IncompatibleMerge:
		return CodeIncompatibleMerge
	case MissingCoordinate:
		return CodeMissingCoordinate
	case InvalidConstruction:
		return CodeInvalidConstruction
	default:
		return CodeUnknown
	}
}

func (k Kind) String() string {
	switch k {
	case MalformedCircuit:
		return "malformed circuit"
	case InvalidOffset:
		return "invalid offset"
	case NonDeterministicCollapse:
		return "non-deterministic collapse"
	case IncompatibleMerge:
		return "incompatible merge"
	case MissingCoordinate:
		return "missing coordinate"
	case InvalidConstruction:
		return "invalid construction"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrMalformedCircuit         = &Error{Kind: MalformedCircuit}
	ErrInvalidOffset            = &Error{Kind: InvalidOffset}
	ErrNonDeterministicCollapse = &Error{Kind: NonDeterministicCollapse}
	ErrIncompatibleMerge        = &Error{Kind: IncompatibleMerge}
	ErrMissingCoordinate        = &Error{Kind: MissingCoordinate}
	ErrInvalidConstruction      = &Error{Kind: InvalidConstruction}
)

// Error is a detector discovery failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind.Code(), e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" || t.Cause != nil {
		return t == e
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsUserError reports whether err was caused by the input rather than by a
// bug or an environmental failure.
func IsUserError(err error) bool {
	switch KindOf(err) {
	case MalformedCircuit, InvalidOffset, NonDeterministicCollapse,
		IncompatibleMerge, MissingCoordinate, InvalidConstruction:
		return true
	default:
		return false
	}
}
