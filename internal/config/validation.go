package config

import (
	"fmt"
	"strings"
)

// ValidationError represents an invalid setting
type ValidationError struct {
	Key     string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Key == "" {
		return ve.Message
	}
	return fmt.Sprintf("setting '%s': %s", ve.Key, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(key, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Key:     key,
		Value:   val,
		Message: message,
	})
}

// ValidateOneOf checks that value is one of allowed, ignoring case
func ValidateOneOf(key, value string, allowed []string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return ValidationError{
		Key:     key,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ContainerRuntimes are the accepted values of container.runtime.
var ContainerRuntimes = []string{"docker", "podman"}

var logLevels = []string{"debug", "info", "warn", "warning", "error"}

var logFormats = []string{"text", "json"}

// Validate checks the settings that have a closed value set or a range.
func (s Settings) Validate() error {
	var errs ValidationErrors
	if err := ValidateOneOf("container.runtime", s.Container.Runtime, ContainerRuntimes); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if s.Startup.Timeout <= 0 {
		errs.Add("startup.timeout", "must be positive", s.Startup.Timeout)
	}
	if s.Stop.Parallelism < 1 {
		errs.Add("stop.parallelism", "must be at least 1", s.Stop.Parallelism)
	}
	if err := ValidateOneOf("log.level", s.Log.Level, logLevels); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if err := ValidateOneOf("log.format", s.Log.Format, logFormats); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	for key, name := range map[string]string{
		"database.env.url":      s.Database.Env.URL,
		"database.env.username": s.Database.Env.Username,
		"database.env.password": s.Database.Env.Password,
	} {
		if strings.TrimSpace(name) == "" {
			errs.Add(key, "must not be empty")
		}
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}
