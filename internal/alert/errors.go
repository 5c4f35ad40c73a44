package alert

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrUnauthenticated means there was no signed-in user. Nothing was written.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidRecipient wraps the policy's reason. Nothing was written or sent.
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// PersistenceError means the alert row could not be written. No dispatch was attempted
// and the submission can be retried.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to record alert: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DispatchError means the alert was recorded but its notification failed.
type DispatchError struct {
	AlertID uuid.UUID
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("alert %s recorded but notification failed: %v", e.AlertID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
