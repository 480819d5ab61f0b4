// Package session persists conversation history across workflow runs, keyed
// by session id. The workflow core never reads prior history back into run
// state; the store exists for front-ends that render or resume threads.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/queryloom/queryloom/core/protocol"
)

// Sentinel errors for store operations.
var (
	ErrInvalidID  = errors.New("invalid session id")
	ErrLoadFailed = errors.New("session load failed")
	ErrSaveFailed = errors.New("session save failed")
)

// Store holds per-session conversation history. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns a defensive copy of the session's history. Unknown ids
	// yield an empty history, not an error.
	Get(ctx context.Context, id string) ([]protocol.Message, error)

	// Append adds messages to the session's history, creating it if needed.
	Append(ctx context.Context, id string, msgs ...protocol.Message) error

	// Clear removes the session's history.
	Clear(ctx context.Context, id string) error
}

// NewID returns a fresh UUIDv7 session identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
