package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"

	"testbay/internal/dependency"
	"testbay/pkg/containerizer"
)

// RunState is the lifecycle state of a Run.
type RunState int

const (
	RunConfigured RunState = iota
	RunStarting
	RunStarted
	RunFailed
	RunStopped
)

func (s RunState) String() string {
	switch s {
	case RunConfigured:
		return "configured"
	case RunStarting:
		return "starting"
	case RunStarted:
		return "started"
	case RunFailed:
		return "failed"
	case RunStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Outcome of a container's startup task.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeReady    Outcome = "ready"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed out"
)

// ReadinessResult is what a startup task reports for its container.
type ReadinessResult struct {
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Run is one configured test environment, from Configure to Stop.
type Run struct {
	ID string

	specs  []ContainerSpec
	index  map[string]int
	phases [][]string

	// failed only ever goes from false to true.
	failed atomic.Bool

	mu         sync.RWMutex
	state      RunState
	graph      *dependency.Graph
	network    containerizer.Network
	containers map[string]containerizer.Container
	results    map[string]ReadinessResult
	handles    *Handles
}

// State returns the current lifecycle state.
func (r *Run) State() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Failed reports whether any startup task failed.
func (r *Run) Failed() bool {
	return r.failed.Load()
}

// Specs returns the configured specs in declaration order.
func (r *Run) Specs() []ContainerSpec {
	out := make([]ContainerSpec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s.clone())
	}
	return out
}

// Phases returns container names grouped by startup phase.
func (r *Run) Phases() [][]string {
	out := make([][]string, len(r.phases))
	for i, p := range r.phases {
		out[i] = append([]string(nil), p...)
	}
	return out
}

// Result returns the readiness result of a container.
func (r *Run) Result(name string) (ReadinessResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[name]
	return res, ok
}

// Results returns a copy of all readiness results.
func (r *Run) Results() map[string]ReadinessResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ReadinessResult, len(r.results))
	for k, v := range r.results {
		out[k] = v
	}
	return out
}

// ContainerState returns the state of a container node.
func (r *Run) ContainerState(name string) dependency.NodeState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n := r.graph.Get(dependency.NodeID(name)); n != nil {
		return n.State
	}
	return dependency.StateUnknown
}

func (r *Run) spec(name string) ContainerSpec {
	return r.specs[r.index[name]]
}

func (r *Run) applicationName() string {
	for _, s := range r.specs {
		if s.role() == RoleApplication {
			return s.Name
		}
	}
	return ""
}

// recordContainer stores the handle of a created container. It returns false
// when the run was already stopped, in which case the caller owns the
// container and must stop it.
func (r *Run) recordContainer(name string, c containerizer.Container) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RunStopped {
		return false
	}
	if _, exists := r.containers[name]; !exists {
		r.containers[name] = c
	}
	return true
}

func (r *Run) container(name string) containerizer.Container {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.containers[name]
}

func (r *Run) setResult(name string, res ReadinessResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[name] = res
	if r.state == RunStopped {
		return
	}
	switch res.Outcome {
	case OutcomeReady:
		r.graph.SetState(dependency.NodeID(name), dependency.StateRunning)
	case OutcomePending:
		r.graph.SetState(dependency.NodeID(name), dependency.StateStarting)
	default:
		r.graph.SetState(dependency.NodeID(name), dependency.StateError)
	}
}

// markUnreported records outcome for containers whose task has not reported yet.
func (r *Run) markUnreported(names []string, outcome Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if res, ok := r.results[name]; ok && res.Outcome != OutcomePending {
			continue
		}
		r.results[name] = ReadinessResult{Outcome: outcome, Err: err}
		r.graph.SetState(dependency.NodeID(name), dependency.StateError)
	}
}

func (r *Run) setState(s RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RunStopped {
		r.state = s
	}
}
