package config

import "fmt"

// ConfigError is returned for any configuration parsing failure.
type ConfigError struct {
	err error
}

// ConfigErrorFromString builds a ConfigError from a format string.
func ConfigErrorFromString(format string, args ...interface{}) *ConfigError {
	return &ConfigError{err: fmt.Errorf(format, args...)}
}

// ConfigErrorFromError wraps an existing error as a ConfigError.
func ConfigErrorFromError(err error) *ConfigError {
	return &ConfigError{err: err}
}

func (ce *ConfigError) Error() string {
	return fmt.Sprintf("config: %v", ce.err)
}

func (ce *ConfigError) Unwrap() error {
	return ce.err
}
