package client

import (
	"errors"
	"fmt"

	"github.com/jet-lab/lookup-table-registry-go/solana"
)

// AbsentError indicates the ledger holds no registry for the authority. The
// answer is authoritative; any previously cached record has been dropped.
type AbsentError struct {
	authority solana.PublicKey
	err       error
}

func NewAbsentError(authority solana.PublicKey, err error) AbsentError {
	return AbsentError{authority: authority, err: err}
}

func (e AbsentError) Error() string {
	return fmt.Sprintf("no registry for authority %s: %v", e.authority, e.err)
}

func (e AbsentError) Unwrap() error {
	return e.err
}

// Authority returns the authority the lookup was for.
func (e AbsentError) Authority() solana.PublicKey {
	return e.authority
}

// IsAbsentError returns true if err is or wraps an AbsentError.
func IsAbsentError(err error) bool {
	var target AbsentError
	return errors.As(err, &target)
}

// RetryableError indicates resolution failed for a reason that may clear on
// its own. Nothing was cached; the same lookup is worth repeating.
type RetryableError struct {
	err error
}

func NewRetryableError(err error) RetryableError {
	return RetryableError{err: err}
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("registry resolution failed transiently: %v", e.err)
}

func (e RetryableError) Unwrap() error {
	return e.err
}

// IsRetryableError returns true if err is or wraps a RetryableError.
func IsRetryableError(err error) bool {
	var target RetryableError
	return errors.As(err, &target)
}

// DecodeFailureError indicates the on-chain registry state could not be
// decoded under any layout this build knows, usually version skew between
// the client and the program. Any previously cached record has been dropped.
type DecodeFailureError struct {
	err error
}

func NewDecodeFailureError(err error) DecodeFailureError {
	return DecodeFailureError{err: err}
}

func (e DecodeFailureError) Error() string {
	return fmt.Sprintf("could not decode on-chain registry state: %v", e.err)
}

func (e DecodeFailureError) Unwrap() error {
	return e.err
}

// IsDecodeFailureError returns true if err is or wraps a DecodeFailureError.
func IsDecodeFailureError(err error) bool {
	var target DecodeFailureError
	return errors.As(err, &target)
}
