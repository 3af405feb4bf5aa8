package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means the dataset location cannot be resolved.
	ErrConfiguration = errors.New("dataset configuration error")

	// ErrSchema means a required column is missing. It matches ErrConfiguration too.
	ErrSchema = fmt.Errorf("%w: schema", ErrConfiguration)

	// ErrNoValidData means nothing survived joining and class filtering.
	ErrNoValidData = errors.New("no valid data after filtering")
)

// ConfigError carries the path or columns that could not be resolved.
type ConfigError struct {
	Kind   error
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *ConfigError) Unwrap() error {
	return e.Kind
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Kind: ErrConfiguration, Detail: fmt.Sprintf(format, args...)}
}

func schemaErrorf(format string, args ...any) error {
	return &ConfigError{Kind: ErrSchema, Detail: fmt.Sprintf(format, args...)}
}
