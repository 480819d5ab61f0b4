package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/queryloom/queryloom/core/protocol"
)

type fileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore creates a Store persisting each session as a JSON file under
// root. Writes go through a temp file and rename, so readers never observe a
// partially written session.
func NewFileStore(root string) Store {
	return &fileStore{root: root}
}

func (s *fileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.root, id+".json"), nil
}

func (s *fileStore) Get(_ context.Context, id string) ([]protocol.Message, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(path)
}

func (s *fileStore) read(path string) ([]protocol.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []protocol.Message{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	var msgs []protocol.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return msgs, nil
}

func (s *fileStore) Append(_ context.Context, id string, msgs ...protocol.Message) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read(path)
	if err != nil {
		return err
	}

	data, err := json.Marshal(append(existing, msgs...))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	return nil
}

func (s *fileStore) Clear(_ context.Context, id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}
