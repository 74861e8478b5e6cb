package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"testbay/internal/dependency"
	"testbay/pkg/containerizer"
	"testbay/pkg/logging"
)

const subsystem = "Orchestrator"

const (
	// DefaultStartupTimeout bounds the wait for the concurrent startup group.
	DefaultStartupTimeout = time.Minute
	// DefaultStopParallelism bounds concurrent stops within one phase.
	DefaultStopParallelism = 4
)

// Config holds the controller settings.
type Config struct {
	// Runtime starts containers and networks. Required.
	Runtime containerizer.ContainerRuntime
	// StartupTimeout bounds the wait for the concurrent group. A container
	// with a longer StartupTimeout of its own extends the bound.
	StartupTimeout time.Duration
	// StopParallelism bounds concurrent stops within one phase.
	StopParallelism int
}

// Controller starts, exposes and tears down the containers of test environments.
// One controller may drive many runs.
type Controller struct {
	runtime         containerizer.ContainerRuntime
	startupTimeout  time.Duration
	stopParallelism int
}

// New creates a controller. Zero values in cfg fall back to the defaults.
func New(cfg Config) (*Controller, error) {
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("orchestrator needs a container runtime")
	}
	c := &Controller{
		runtime:         cfg.Runtime,
		startupTimeout:  cfg.StartupTimeout,
		stopParallelism: cfg.StopParallelism,
	}
	if c.startupTimeout <= 0 {
		c.startupTimeout = DefaultStartupTimeout
	}
	if c.stopParallelism <= 0 {
		c.stopParallelism = DefaultStopParallelism
	}
	return c, nil
}

// StartupTimeout returns the bound applied to the concurrent startup group.
func (c *Controller) StartupTimeout() time.Duration {
	return c.startupTimeout
}

// Configure validates the specs and creates a run for them. Specs are copied;
// later changes by the caller do not affect the run.
func (c *Controller) Configure(specs []ContainerSpec) (*Run, error) {
	if len(specs) == 0 {
		return nil, &ConfigurationError{Message: "no containers declared"}
	}

	run := &Run{
		ID:         uuid.NewString(),
		index:      make(map[string]int, len(specs)),
		containers: make(map[string]containerizer.Container),
		results:    make(map[string]ReadinessResult),
		state:      RunConfigured,
	}

	var applications []string
	for _, s := range specs {
		if s.Name == "" {
			return nil, &ConfigurationError{Message: "container name must not be empty"}
		}
		if _, dup := run.index[s.Name]; dup {
			return nil, &ConfigurationError{Container: s.Name, Message: "duplicate container name"}
		}
		if err := s.validate(); err != nil {
			return nil, &ConfigurationError{Container: s.Name, Message: err.Error()}
		}
		if s.role() == RoleApplication {
			applications = append(applications, s.Name)
		}
		spec := s.clone()
		spec.Role = s.role()
		spec.StartMode = s.startMode()
		run.index[s.Name] = len(run.specs)
		run.specs = append(run.specs, spec)
	}

	switch len(applications) {
	case 0:
		return nil, &ConfigurationError{Message: "exactly one application container is required, none declared"}
	case 1:
	default:
		return nil, &ConfigurationError{Message: fmt.Sprintf("exactly one application container is required, got %v", applications)}
	}

	mergeApplicationEnv(run)

	graph, phases, err := buildGraph(run.specs)
	if err != nil {
		return nil, &ConfigurationError{Message: err.Error()}
	}
	run.graph = graph
	run.phases = phases

	logging.Debug(subsystem, "Configured run %s with %d containers in %d phases", run.ID, len(run.specs), len(phases))
	return run, nil
}

// mergeApplicationEnv adds what EnvProvider components contribute to the
// application container. Variables declared on the application win.
func mergeApplicationEnv(run *Run) {
	app := &run.specs[run.index[run.applicationName()]]
	for _, s := range run.specs {
		p, ok := s.Component.(EnvProvider)
		if !ok {
			continue
		}
		for k, v := range p.ApplicationEnv() {
			if app.Env == nil {
				app.Env = make(map[string]string)
			}
			if _, exists := app.Env[k]; !exists {
				app.Env[k] = v
			}
		}
	}
}

// buildGraph chains sequential specs in declaration order and makes every
// concurrent spec depend on the last sequential one.
func buildGraph(specs []ContainerSpec) (*dependency.Graph, [][]string, error) {
	g := dependency.New()
	var lastSequential dependency.NodeID
	for _, s := range specs {
		if s.StartMode != StartSequential {
			continue
		}
		n := dependency.Node{ID: dependency.NodeID(s.Name), FriendlyName: s.Name, Kind: s.Role.kind(), State: dependency.StateStopped}
		if lastSequential != "" {
			n.DependsOn = []dependency.NodeID{lastSequential}
		}
		g.AddNode(n)
		lastSequential = n.ID
	}
	for _, s := range specs {
		if s.StartMode != StartConcurrent {
			continue
		}
		n := dependency.Node{ID: dependency.NodeID(s.Name), FriendlyName: s.Name, Kind: s.Role.kind(), State: dependency.StateStopped}
		if lastSequential != "" {
			n.DependsOn = []dependency.NodeID{lastSequential}
		}
		g.AddNode(n)
	}

	ids, err := g.Phases()
	if err != nil {
		return nil, nil, err
	}
	phases := make([][]string, len(ids))
	for i, phase := range ids {
		for _, id := range phase {
			phases[i] = append(phases[i], string(id))
		}
	}
	return g, phases, nil
}

// GetLogs returns the captured output of a container. It works for
// containers of a failed startup as long as the run was not stopped.
func (c *Controller) GetLogs(ctx context.Context, run *Run, name string) (string, error) {
	if _, ok := run.index[name]; !ok {
		return "", fmt.Errorf("unknown container %s", name)
	}
	container := run.container(name)
	if container == nil {
		return "", fmt.Errorf("container %s was not started", name)
	}
	return container.Logs(ctx)
}

// RefreshPerTestState seeds per-test state, in startup order.
func (c *Controller) RefreshPerTestState(ctx context.Context, run *Run) error {
	if s := run.State(); s != RunStarted {
		return &InjectionError{RunID: run.ID, State: s}
	}
	for _, phase := range run.phases {
		for _, name := range phase {
			sm, ok := run.spec(name).Component.(StateManager)
			if !ok {
				continue
			}
			if err := sm.Refresh(ctx); err != nil {
				return &DataError{Container: name, Op: "refresh", Err: err}
			}
		}
	}
	return nil
}

// ClearPerTestState removes per-test state, in reverse startup order.
// Schema objects are left untouched.
func (c *Controller) ClearPerTestState(ctx context.Context, run *Run) error {
	if s := run.State(); s != RunStarted {
		return &InjectionError{RunID: run.ID, State: s}
	}
	for i := len(run.phases) - 1; i >= 0; i-- {
		phase := run.phases[i]
		for j := len(phase) - 1; j >= 0; j-- {
			name := phase[j]
			sm, ok := run.spec(name).Component.(StateManager)
			if !ok {
				continue
			}
			if err := sm.Clear(ctx); err != nil {
				return &DataError{Container: name, Op: "clear", Err: err}
			}
		}
	}
	return nil
}
