package ledger

import (
	"errors"
	"fmt"
)

// ErrAccountNotFound is returned when no account exists at the requested
// address. The ledger answered authoritatively; retrying will not help.
var ErrAccountNotFound = errors.New("account not found")

// TransientError indicates a failure that may resolve on its own, such as a
// network error, a rate limit, or node overload. Reads failing with it are
// safe to retry.
type TransientError struct {
	err error
}

func NewTransientError(err error) TransientError {
	return TransientError{err: err}
}

func (e TransientError) Error() string {
	return fmt.Sprintf("transient ledger failure: %v", e.err)
}

func (e TransientError) Unwrap() error {
	return e.err
}

// IsTransientError returns true if err is or wraps a TransientError.
func IsTransientError(err error) bool {
	var target TransientError
	return errors.As(err, &target)
}

// NodeRejectedError indicates the node rejected the request as invalid. The
// request itself is wrong; retrying the same request will not help.
type NodeRejectedError struct {
	code    int
	message string
}

func NewNodeRejectedError(code int, message string) NodeRejectedError {
	return NodeRejectedError{code: code, message: message}
}

func (e NodeRejectedError) Error() string {
	return fmt.Sprintf("node rejected request (code %d): %s", e.code, e.message)
}

// Code returns the node's error code.
func (e NodeRejectedError) Code() int {
	return e.code
}

// IsNodeRejectedError returns true if err is or wraps a NodeRejectedError.
func IsNodeRejectedError(err error) bool {
	var target NodeRejectedError
	return errors.As(err, &target)
}
