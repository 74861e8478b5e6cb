package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

var (
	// ErrStartup is matched by StartupError and StartupTimeoutError.
	ErrStartup = errors.New("test environment failed to start")

	// ErrHandlesReleased is returned by Handles after the run was stopped.
	ErrHandlesReleased = errors.New("handles released, the environment was stopped")
)

// ConfigurationError reports a bad or duplicate ContainerSpec.
type ConfigurationError struct {
	Container string
	Message   string
}

func (e *ConfigurationError) Error() string {
	if e.Container == "" {
		return "invalid configuration: " + e.Message
	}
	return fmt.Sprintf("invalid configuration of container %s: %s", e.Container, e.Message)
}

// StartupError reports containers that failed to start, become ready or initialize.
type StartupError struct {
	Failed []string
	Cause  error
}

func (e *StartupError) Error() string {
	if len(e.Failed) == 0 {
		return fmt.Sprintf("startup failed: %v", e.Cause)
	}
	return fmt.Sprintf("startup of %s failed: %v", strings.Join(e.Failed, ", "), e.Cause)
}

func (e *StartupError) Unwrap() error { return e.Cause }

func (e *StartupError) Is(target error) bool { return target == ErrStartup }

// StartupTimeoutError reports that the concurrent group did not finish within the bound.
type StartupTimeoutError struct {
	Timeout time.Duration
	Pending []string
	Failed  []string
}

func (e *StartupTimeoutError) Error() string {
	msg := fmt.Sprintf("containers not ready after %s: %s", e.Timeout, strings.Join(e.Pending, ", "))
	if len(e.Failed) > 0 {
		msg += fmt.Sprintf(" (failed: %s)", strings.Join(e.Failed, ", "))
	}
	return msg
}

func (e *StartupTimeoutError) Is(target error) bool { return target == ErrStartup }

// DataError reports a failed script or dataset operation.
type DataError struct {
	Container string
	Op        string
	Err       error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s of %s failed: %v", e.Op, e.Container, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// InjectionError reports handles requested before the environment was started.
type InjectionError struct {
	RunID string
	State RunState
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("cannot inject handles of run %s in state %s", e.RunID, e.State)
}

// StopFailure is one failed stop step.
type StopFailure struct {
	Name string
	Err  error
}

// AggregatedStopError collects every failure of a teardown.
type AggregatedStopError struct {
	Failures []StopFailure
}

func (e *AggregatedStopError) Error() string {
	return fmt.Sprintf("failed to stop %s: %v", strings.Join(e.Names(), ", "), e.Unwrap())
}

// Unwrap exposes every underlying error to errors.Is and errors.As.
func (e *AggregatedStopError) Unwrap() error {
	var err error
	for _, f := range e.Failures {
		err = multierr.Append(err, fmt.Errorf("%s: %w", f.Name, f.Err))
	}
	return err
}

// Names returns the names of everything that failed to stop.
func (e *AggregatedStopError) Names() []string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Name)
	}
	return names
}
