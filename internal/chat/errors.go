package chat

import (
	"errors"
	"fmt"
)

// ErrViewClosed is returned when an operation is attempted on a closed
// conversation view.
var ErrViewClosed = errors.New("conversation view is closed")

// IdentityError reports an invalid participant pair.
type IdentityError struct {
	Reason string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("invalid participants: %s", e.Reason)
}

// ValidationError reports rejected message content.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid message: %s", e.Reason)
}

// AuthorizationError reports a sender that is not a participant of the
// conversation it tried to post to.
type AuthorizationError struct {
	UserID         string
	ConversationID string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s is not a participant of conversation %s", e.UserID, e.ConversationID)
}

// StoreError wraps a failure of the backing persistence layer.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// TransportError wraps a failure of the push subscription channel.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SendError reports a failed send. Content carries the rejected text so
// the caller can restore the user's input for a manual retry.
type SendError struct {
	Content string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
