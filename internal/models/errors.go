package models

import (
	"errors"
	"fmt"
)

// ConfigurationError signals a configuration that cannot be turned into a valid detector.
type ConfigurationError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("configuration %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("configuration %q=%q: %s", e.Key, e.Value, e.Reason)
}

// DataIntegrityError signals malformed or inconsistent experiment data.
type DataIntegrityError struct {
	Experiment string
	Reason     string
	Err        error
}

func (e *DataIntegrityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("experiment %s: %s", e.Experiment, e.Reason)
	}
	return fmt.Sprintf("experiment %s: %s: %v", e.Experiment, e.Reason, e.Err)
}

func (e *DataIntegrityError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsDataIntegrityError reports whether err carries a DataIntegrityError.
func IsDataIntegrityError(err error) bool {
	var target *DataIntegrityError
	return errors.As(err, &target)
}
