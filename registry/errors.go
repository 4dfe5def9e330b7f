package registry

import (
	"errors"
	"fmt"
)

// MalformedAccountError indicates account bytes that do not decode under any
// known layout. The data is wrong, not merely newer; retrying will not help.
type MalformedAccountError struct {
	reason string
}

func NewMalformedAccountError(format string, args ...interface{}) MalformedAccountError {
	return MalformedAccountError{reason: fmt.Sprintf(format, args...)}
}

func (e MalformedAccountError) Error() string {
	return fmt.Sprintf("malformed account data: %s", e.reason)
}

// IsMalformedAccountError returns true if err is or wraps a MalformedAccountError.
func IsMalformedAccountError(err error) bool {
	var target MalformedAccountError
	return errors.As(err, &target)
}

// UnsupportedVersionError indicates a structurally sound account written with
// a layout version this build does not understand.
type UnsupportedVersionError struct {
	version uint32
}

func NewUnsupportedVersionError(version uint32) UnsupportedVersionError {
	return UnsupportedVersionError{version: version}
}

func (e UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported account layout version %d", e.version)
}

// Version returns the unrecognized layout version found on chain.
func (e UnsupportedVersionError) Version() uint32 {
	return e.version
}

// IsUnsupportedVersionError returns true if err is or wraps an UnsupportedVersionError.
func IsUnsupportedVersionError(err error) bool {
	var target UnsupportedVersionError
	return errors.As(err, &target)
}
