package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/queryloom/queryloom/session"
)

const (
	defaultDataQueryCallLimit   = 4
	defaultCodeExecuteCallLimit = 3
	defaultMaxIterations        = 50
	defaultTimeout              = 2 * time.Minute
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds initialization parameters for a Workflow.
type Config struct {
	// DataQueryCallLimit bounds tool-invoking generation cycles in the
	// data-query branch.
	DataQueryCallLimit int `json:"data_query_call_limit" yaml:"data_query_call_limit" validate:"gte=0"`

	// CodeExecuteCallLimit bounds script runs in the code branch.
	CodeExecuteCallLimit int `json:"code_execute_call_limit" yaml:"code_execute_call_limit" validate:"gte=0"`

	// MaxIterations backstops the graph executor against miswired routing.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" validate:"gt=0"`

	// Timeout is the overall deadline for one Invoke or Stream run.
	Timeout Duration `json:"timeout" yaml:"timeout"`

	// Observer names a registered observer ("noop", "slog", ...).
	Observer string `json:"observer" yaml:"observer" validate:"required"`

	// Session selects the conversation store backend.
	Session session.Config `json:"session" yaml:"session"`
}

// DefaultConfig returns a Config with the canonical loop limits.
func DefaultConfig() Config {
	return Config{
		DataQueryCallLimit:   defaultDataQueryCallLimit,
		CodeExecuteCallLimit: defaultCodeExecuteCallLimit,
		MaxIterations:        defaultMaxIterations,
		Timeout:              Duration(defaultTimeout),
		Observer:             "slog",
		Session:              session.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source == nil {
		return
	}

	if source.DataQueryCallLimit > 0 {
		c.DataQueryCallLimit = source.DataQueryCallLimit
	}
	if source.CodeExecuteCallLimit > 0 {
		c.CodeExecuteCallLimit = source.CodeExecuteCallLimit
	}
	if source.MaxIterations > 0 {
		c.MaxIterations = source.MaxIterations
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
	c.Session.Merge(&source.Session)
}

// Validate checks the configuration's structural constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid workflow config: %w", err)
	}
	return nil
}

// LoadConfig reads a JSON or YAML config file (by extension), merges it with
// defaults, validates, and returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch ext := filepath.Ext(filename); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	default:
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Duration wraps time.Duration with "2m"-style text in JSON and YAML.
type Duration time.Duration

// MarshalJSON encodes the duration as its text form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts either a duration string or nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	return d.set(value)
}

// MarshalYAML encodes the duration as its text form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts either a duration string or nanoseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var value any
	if err := node.Decode(&value); err != nil {
		return err
	}
	return d.set(value)
}

func (d *Duration) set(value any) error {
	switch v := value.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v))
	case int:
		*d = Duration(time.Duration(v))
	default:
		return fmt.Errorf("invalid duration value %v", value)
	}
	return nil
}
