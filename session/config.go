package session

import "fmt"

// Config selects the session store backend.
type Config struct {
	// Backend is "memory" or "file".
	Backend string `json:"backend" yaml:"backend"`

	// Root is the directory for the file backend.
	Root string `json:"root,omitempty" yaml:"root,omitempty"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{Backend: "memory"}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source == nil {
		return
	}
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Root != "" {
		c.Root = source.Root
	}
}

// New creates a Store from configuration.
func New(cfg *Config) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		if cfg.Root == "" {
			return nil, fmt.Errorf("file session store requires a root directory")
		}
		return NewFileStore(cfg.Root), nil
	default:
		return nil, fmt.Errorf("unknown session backend: %s", cfg.Backend)
	}
}
