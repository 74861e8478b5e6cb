package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"testbay/internal/dependency"
	"testbay/pkg/containerizer"
	"testbay/pkg/logging"
)

// Stop tears the environment down in reverse startup order. Every container
// that was created is stopped, whatever happened to its siblings. Failures
// are logged and collected; the returned AggregatedStopError names all of them.
// Handles obtained from the run are released even when Stop fails.
// Stopping a run twice is a no-op.
func (c *Controller) Stop(ctx context.Context, run *Run) error {
	run.mu.Lock()
	if run.state == RunStopped {
		run.mu.Unlock()
		return nil
	}
	run.state = RunStopped
	containers := run.containers
	run.containers = make(map[string]containerizer.Container)
	network := run.network
	run.network = nil
	handles := run.handles
	run.handles = nil
	run.mu.Unlock()

	if handles != nil {
		handles.release()
	}

	logging.Info(subsystem, "Stopping run %s (%d containers)", run.ID, len(containers))

	var (
		mu       sync.Mutex
		failures []StopFailure
	)
	record := func(name string, err error) {
		logging.Error(subsystem, err, "Failed to stop %s", name)
		mu.Lock()
		failures = append(failures, StopFailure{Name: name, Err: err})
		mu.Unlock()
	}

	for i := len(run.phases) - 1; i >= 0; i-- {
		var g errgroup.Group
		g.SetLimit(c.stopParallelism)
		for _, name := range run.phases[i] {
			spec := run.spec(name)
			container := containers[name]
			g.Go(func() error {
				if err := stopContainer(ctx, spec, container); err != nil {
					record(name, err)
				}
				return nil
			})
		}
		_ = g.Wait()
		for _, name := range run.phases[i] {
			run.mu.Lock()
			run.graph.SetState(dependency.NodeID(name), dependency.StateStopped)
			run.mu.Unlock()
		}
	}

	if network != nil {
		if err := network.Remove(ctx); err != nil {
			record("network "+network.Name(), err)
		}
	}

	if len(failures) > 0 {
		return &AggregatedStopError{Failures: failures}
	}
	logging.Info(subsystem, "Run %s stopped", run.ID)
	return nil
}

// stopContainer closes the component, then stops the container. Both steps
// run even if the first fails.
func stopContainer(ctx context.Context, spec ContainerSpec, container containerizer.Container) error {
	var closeErr error
	if closer, ok := spec.Component.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			closeErr = fmt.Errorf("close component: %w", err)
		}
	}
	if container == nil {
		return closeErr
	}
	if err := container.Stop(ctx); err != nil {
		if closeErr != nil {
			return fmt.Errorf("%w; stop container: %w", closeErr, err)
		}
		return err
	}
	return closeErr
}
