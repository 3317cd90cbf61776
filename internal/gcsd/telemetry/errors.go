package telemetry

import (
	"errors"
	"fmt"
)

// DecodeErrorKind distinguishes the recoverable decode failure classes so
// callers can tell "drop and count" from "drop and alert".
type DecodeErrorKind int

const (
	// KindMalformed means the record could not be parsed at all.
	KindMalformed DecodeErrorKind = iota

	// KindOutOfRange means a field parsed but violates its physical range.
	KindOutOfRange

	// KindUnknownVehicle means the record names a vehicle the session does
	// not know and auto-registration is disabled.
	KindUnknownVehicle
)

func (k DecodeErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindOutOfRange:
		return "out_of_range"
	case KindUnknownVehicle:
		return "unknown_vehicle"
	default:
		return "unknown"
	}
}

// DecodeError reports a rejected telemetry record.
type DecodeError struct {
	Kind  DecodeErrorKind
	Field string // set for KindOutOfRange
	Cause string
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case KindOutOfRange:
		return fmt.Sprintf("telemetry decode: field %s out of range: %s", e.Field, e.Cause)
	case KindUnknownVehicle:
		return fmt.Sprintf("telemetry decode: unknown vehicle: %s", e.Cause)
	default:
		return fmt.Sprintf("telemetry decode: malformed record: %s", e.Cause)
	}
}

// NewDecodeError builds a DecodeError of the given kind.
func NewDecodeError(kind DecodeErrorKind, field, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: kind, Field: field, Cause: fmt.Sprintf(format, args...)}
}

func errMalformed(format string, args ...any) *DecodeError {
	return NewDecodeError(KindMalformed, "", format, args...)
}

func errOutOfRange(field, format string, args ...any) *DecodeError {
	return NewDecodeError(KindOutOfRange, field, format, args...)
}

// AsDecodeError unwraps err into a *DecodeError if it is one.
func AsDecodeError(err error) (*DecodeError, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
