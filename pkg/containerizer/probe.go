package containerizer

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/testcontainers/testcontainers-go/wait"
)

// DefaultProbeTimeout applies when neither the probe nor the container set one.
const DefaultProbeTimeout = 60 * time.Second

// ProbeKind selects how readiness is detected.
type ProbeKind string

const (
	ProbeNone  ProbeKind = ""
	ProbeHTTP  ProbeKind = "http"
	ProbeLog   ProbeKind = "log"
	ProbeDelay ProbeKind = "delay"
)

// Probe describes when a started container counts as ready.
type Probe struct {
	Kind ProbeKind

	// HTTP
	Path   string
	Port   string
	Status int

	// Log
	Pattern    string
	Occurrence int

	// Delay
	Delay time.Duration
}

// HTTPProbe waits until GET path on port answers with status.
func HTTPProbe(path, port string, status int) Probe {
	return Probe{Kind: ProbeHTTP, Path: path, Port: port, Status: status}
}

// LogProbe waits until a log line matches pattern.
func LogProbe(pattern string) Probe {
	return Probe{Kind: ProbeLog, Pattern: pattern, Occurrence: 1}
}

// DelayProbe waits a fixed duration after the container started.
func DelayProbe(d time.Duration) Probe {
	return Probe{Kind: ProbeDelay, Delay: d}
}

// Validate reports malformed probes.
func (p Probe) Validate() error {
	switch p.Kind {
	case ProbeNone:
		return nil
	case ProbeHTTP:
		if p.Path == "" {
			return fmt.Errorf("http probe needs a path")
		}
	case ProbeLog:
		if p.Pattern == "" {
			return fmt.Errorf("log probe needs a pattern")
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return fmt.Errorf("log probe pattern: %w", err)
		}
	case ProbeDelay:
		if p.Delay <= 0 {
			return fmt.Errorf("delay probe needs a positive delay")
		}
	default:
		return fmt.Errorf("unknown probe kind %q", p.Kind)
	}
	return nil
}

func (p Probe) String() string {
	switch p.Kind {
	case ProbeHTTP:
		return fmt.Sprintf("http GET %s -> %d", p.Path, p.expectedStatus())
	case ProbeLog:
		return fmt.Sprintf("log /%s/", p.Pattern)
	case ProbeDelay:
		return fmt.Sprintf("delay %s", p.Delay)
	default:
		return "none"
	}
}

func (p Probe) expectedStatus() int {
	if p.Status == 0 {
		return http.StatusOK
	}
	return p.Status
}

// strategy converts the probe into a testcontainers wait strategy.
func (p Probe) strategy(timeout time.Duration) wait.Strategy {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	switch p.Kind {
	case ProbeHTTP:
		want := p.expectedStatus()
		s := wait.ForHTTP(p.Path).
			WithStatusCodeMatcher(func(status int) bool { return status == want }).
			WithStartupTimeout(timeout)
		if p.Port != "" {
			s = s.WithPort(natPort(p.Port))
		}
		return s
	case ProbeLog:
		occurrence := p.Occurrence
		if occurrence < 1 {
			occurrence = 1
		}
		return wait.ForLog(p.Pattern).AsRegexp().
			WithOccurrence(occurrence).
			WithStartupTimeout(timeout)
	case ProbeDelay:
		return delayStrategy{delay: p.Delay}
	default:
		return nil
	}
}

// delayStrategy is ready once the delay elapsed.
type delayStrategy struct {
	delay time.Duration
}

func (s delayStrategy) WaitUntilReady(ctx context.Context, _ wait.StrategyTarget) error {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
