package session

import (
	"context"
	"slices"
	"sync"

	"github.com/queryloom/queryloom/core/protocol"
)

type memoryStore struct {
	sessions map[string][]protocol.Message
	mu       sync.RWMutex
}

// NewMemoryStore creates a Store backed by an in-memory map.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[string][]protocol.Message),
	}
}

func (s *memoryStore) Get(_ context.Context, id string) ([]protocol.Message, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyMessages(s.sessions[id]), nil
}

func (s *memoryStore) Append(_ context.Context, id string, msgs ...protocol.Message) error {
	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = append(s.sessions[id], copyMessages(msgs)...)
	return nil
}

func (s *memoryStore) Clear(_ context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func copyMessages(msgs []protocol.Message) []protocol.Message {
	copied := make([]protocol.Message, len(msgs))
	for i, msg := range msgs {
		copied[i] = msg
		copied[i].ToolCalls = slices.Clone(msg.ToolCalls)
	}
	return copied
}
