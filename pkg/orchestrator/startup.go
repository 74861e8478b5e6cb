package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"

	"testbay/pkg/logging"
)

// errRunStopped is the result of a task that finished after Stop.
var errRunStopped = errors.New("run was stopped before the container became ready")

// Start brings the environment up. Sequential containers start one after the
// other; the first failure aborts Start before the concurrent group is
// launched. The concurrent group then starts on independent goroutines and
// Start waits at most the startup timeout for all of them to report.
//
// Tasks are never cancelled: a task still running when Start gives up keeps
// going, and stops its own container if the run was stopped in the meantime.
func (c *Controller) Start(ctx context.Context, run *Run) error {
	run.mu.Lock()
	if run.state != RunConfigured {
		state := run.state
		run.mu.Unlock()
		return fmt.Errorf("run %s cannot be started in state %s", run.ID, state)
	}
	run.state = RunStarting
	run.mu.Unlock()

	started := time.Now()
	logging.Info(subsystem, "Starting run %s", run.ID)

	network, err := c.runtime.CreateNetwork(ctx)
	if err != nil {
		run.failed.Store(true)
		run.setState(RunFailed)
		return &StartupError{Cause: err}
	}
	run.mu.Lock()
	run.network = network
	run.mu.Unlock()

	for _, phase := range run.phases {
		if len(phase) == 1 && run.spec(phase[0]).StartMode == StartSequential {
			name := phase[0]
			res := c.runTask(ctx, run, run.spec(name))
			if res.Err != nil {
				run.setState(RunFailed)
				return &StartupError{Failed: []string{name}, Cause: res.Err}
			}
			continue
		}
		if err := c.startGroup(ctx, run, phase); err != nil {
			run.setState(RunFailed)
			return err
		}
	}

	run.setState(RunStarted)
	logging.Info(subsystem, "Run %s started in %s", run.ID, time.Since(started).Round(time.Millisecond))
	return nil
}

// startGroup launches one task per container and waits for all of them to
// report. The wait is bounded by the startup timeout, or by the longest
// per-container StartupTimeout of the group when that is larger.
func (c *Controller) startGroup(ctx context.Context, run *Run, names []string) error {
	done := make(chan string, len(names))
	p := pool.New()
	bound := c.startupTimeout
	for _, name := range names {
		spec := run.spec(name)
		if spec.StartupTimeout > bound {
			bound = spec.StartupTimeout
		}
		run.setResult(name, ReadinessResult{Outcome: OutcomePending})
		p.Go(func() {
			c.runTask(ctx, run, spec)
			done <- spec.Name
		})
	}
	go p.Wait()

	timer := time.NewTimer(bound)
	defer timer.Stop()

	pending := make(map[string]bool, len(names))
	for _, name := range names {
		pending[name] = true
	}

	var failed []string
	var causes error
	for len(pending) > 0 {
		select {
		case name := <-done:
			delete(pending, name)
			if res, _ := run.Result(name); res.Err != nil {
				failed = append(failed, name)
				causes = multierr.Append(causes, fmt.Errorf("%s: %w", name, res.Err))
			}
		case <-timer.C:
			run.failed.Store(true)
			waiting := sortedKeys(pending)
			err := &StartupTimeoutError{Timeout: bound, Pending: waiting, Failed: failed}
			run.markUnreported(waiting, OutcomeTimedOut, err)
			logging.Error(subsystem, err, "Run %s did not become ready in time", run.ID)
			return err
		case <-ctx.Done():
			run.failed.Store(true)
			waiting := sortedKeys(pending)
			run.markUnreported(waiting, OutcomeFailed, ctx.Err())
			return &StartupError{Failed: append(failed, waiting...), Cause: multierr.Append(causes, ctx.Err())}
		}
	}

	if run.failed.Load() {
		return &StartupError{Failed: failed, Cause: causes}
	}
	return nil
}

// runTask starts a single container, waits for its probe and initializes its
// component. Errors and panics stay inside the task and end up in the result.
func (c *Controller) runTask(ctx context.Context, run *Run, spec ContainerSpec) (res ReadinessResult) {
	began := time.Now()

	recovered := panics.Try(func() {
		res = c.startContainer(ctx, run, spec)
	})
	if err := recovered.AsError(); err != nil {
		res = ReadinessResult{Outcome: OutcomeFailed, Err: fmt.Errorf("startup task panicked: %w", err)}
	}
	res.Duration = time.Since(began)

	if res.Err != nil {
		run.failed.Store(true)
		if !errors.Is(res.Err, errRunStopped) {
			logging.Error(subsystem, res.Err, "Container %s failed to start", spec.Name)
		}
	} else {
		logging.Info(subsystem, "Container %s ready after %s", spec.Name, res.Duration.Round(time.Millisecond))
	}
	run.setResult(spec.Name, res)
	return res
}

func (c *Controller) startContainer(ctx context.Context, run *Run, spec ContainerSpec) ReadinessResult {
	cfg := spec.ContainerConfig
	run.mu.RLock()
	if run.network != nil {
		cfg.Network = run.network.Name()
	}
	run.mu.RUnlock()
	if len(cfg.NetworkAliases) == 0 {
		cfg.NetworkAliases = []string{spec.Name}
	}

	container, err := c.runtime.StartContainer(ctx, cfg)
	if container != nil && !run.recordContainer(spec.Name, container) {
		logging.Warn(subsystem, "Run %s was stopped while %s was starting, stopping it", run.ID, spec.Name)
		if stopErr := container.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			logging.Error(subsystem, stopErr, "Failed to stop late container %s", spec.Name)
		}
		return ReadinessResult{Outcome: OutcomeFailed, Err: errRunStopped}
	}
	if err != nil {
		return ReadinessResult{Outcome: OutcomeFailed, Err: err}
	}
	if container == nil {
		return ReadinessResult{Outcome: OutcomeFailed, Err: fmt.Errorf("runtime returned no handle for %s", spec.Name)}
	}

	if init, ok := spec.Component.(Initializer); ok {
		if err := init.Initialize(ctx, container); err != nil {
			var dataErr *DataError
			if !errors.As(err, &dataErr) {
				err = &DataError{Container: spec.Name, Op: "initialization", Err: err}
			}
			return ReadinessResult{Outcome: OutcomeFailed, Err: err}
		}
	}
	return ReadinessResult{Outcome: OutcomeReady}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
