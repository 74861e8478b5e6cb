package config

import (
	"fmt"
	"strings"
)

// ConfigurationError represents a structured error that occurs while loading settings
type ConfigurationError struct {
	FilePath    string   // Full path to the file that caused the error, empty for environment settings
	ErrorType   string   // Type of error (parse, validation, io)
	Message     string   // Human-readable error message
	Details     string   // Additional details about the error
	Suggestions []string // Actionable suggestions to fix the error
}

// Error implements the error interface
func (ce ConfigurationError) Error() string {
	source := ce.FilePath
	if source == "" {
		source = "environment"
	}
	return fmt.Sprintf("[%s] %s: %s", ce.ErrorType, source, ce.Message)
}

// DetailedError returns a detailed error message with all context
func (ce ConfigurationError) DetailedError() string {
	var parts []string

	if ce.FilePath != "" {
		parts = append(parts, fmt.Sprintf("Configuration Error in %s", ce.FilePath))
	} else {
		parts = append(parts, "Configuration Error in environment settings")
	}
	parts = append(parts, fmt.Sprintf("  Type: %s", ce.ErrorType))
	parts = append(parts, fmt.Sprintf("  Error: %s", ce.Message))

	if ce.Details != "" {
		parts = append(parts, fmt.Sprintf("  Details: %s", ce.Details))
	}

	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", suggestion))
		}
	}

	return strings.Join(parts, "\n")
}

func parseError(path string, err error) ConfigurationError {
	return ConfigurationError{
		FilePath:  path,
		ErrorType: "parse",
		Message:   "file is not valid YAML",
		Details:   err.Error(),
		Suggestions: []string{
			"Check indentation, settings are nested maps (startup:\\n  timeout: 90s)",
		},
	}
}

func validationError(path string, err error) ConfigurationError {
	return ConfigurationError{
		FilePath:  path,
		ErrorType: "validation",
		Message:   "invalid settings",
		Details:   err.Error(),
		Suggestions: []string{
			"Environment variables use the TESTBAY_ prefix with dots replaced by underscores (TESTBAY_STARTUP_TIMEOUT)",
			"Durations use Go syntax such as 90s or 2m",
		},
	}
}
