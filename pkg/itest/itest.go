package itest

import (
	"context"
	"errors"
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"testbay/internal/config"
	"testbay/pkg/containerizer"
	"testbay/pkg/orchestrator"
	"testbay/pkg/restclient"
)

// Env is a started test environment bound to a test.
type Env struct {
	ctrl    *orchestrator.Controller
	run     *orchestrator.Run
	handles *orchestrator.Handles
}

// NewController builds a controller from the testbay settings. The test is
// skipped when the container engine cannot be reached.
func NewController(tb testing.TB) *orchestrator.Controller {
	tb.Helper()
	settings, err := config.Load("")
	require.NoError(tb, err)
	settings.InitLogging(os.Stderr)

	rt, err := containerizer.NewContainerRuntime(settings.Container.Runtime)
	require.NoError(tb, err)
	if err := rt.Ping(context.Background()); err != nil {
		tb.Skipf("container runtime %s not available: %v", settings.Container.Runtime, err)
	}

	ctrl, err := orchestrator.New(orchestrator.Config{
		Runtime:         rt,
		StartupTimeout:  settings.Startup.Timeout,
		StopParallelism: settings.Stop.Parallelism,
	})
	require.NoError(tb, err)
	return ctrl
}

// Setup configures and starts an environment and stops it when the test
// ends. On startup failure the logs of the failed containers are printed
// and the test fails immediately.
func Setup(tb testing.TB, ctrl *orchestrator.Controller, specs ...orchestrator.ContainerSpec) *Env {
	tb.Helper()
	ctx := context.Background()

	run, err := ctrl.Configure(specs)
	require.NoError(tb, err)
	env := &Env{ctrl: ctrl, run: run}

	tb.Cleanup(func() {
		if err := ctrl.Stop(context.Background(), run); err != nil {
			tb.Errorf("stopping environment: %v", err)
		}
	})

	if err := ctrl.Start(ctx, run); err != nil {
		for _, name := range failedContainers(err, run) {
			env.printLog(tb, name)
		}
		require.NoError(tb, err, "environment did not start")
	}

	env.handles, err = ctrl.InjectHandles(run)
	require.NoError(tb, err)
	return env
}

// failedContainers lists the containers whose logs explain a startup error.
func failedContainers(err error, run *orchestrator.Run) []string {
	var names []string
	var se *orchestrator.StartupError
	var te *orchestrator.StartupTimeoutError
	switch {
	case errors.As(err, &te):
		names = append(append(names, te.Failed...), te.Pending...)
	case errors.As(err, &se):
		names = append(names, se.Failed...)
	}
	if len(names) == 0 {
		for name, res := range run.Results() {
			if res.Outcome == orchestrator.OutcomeFailed || res.Outcome == orchestrator.OutcomeTimedOut {
				names = append(names, name)
			}
		}
		sort.Strings(names)
	}
	return names
}

// Handles returns the environment's handles.
func (e *Env) Handles() *orchestrator.Handles {
	return e.handles
}

// Orchestration returns the underlying orchestrator run.
func (e *Env) Orchestration() *orchestrator.Run {
	return e.run
}

// Run runs fn as a subtest with fresh per-test state: the state is
// refreshed before fn and cleared afterwards. When the subtest fails the
// application log is printed.
func (e *Env) Run(t *testing.T, name string, fn func(t *testing.T, h *orchestrator.Handles)) bool {
	t.Helper()
	return t.Run(name, func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, e.ctrl.RefreshPerTestState(ctx, e.run), "refreshing per-test state")
		t.Cleanup(func() {
			if err := e.ctrl.ClearPerTestState(context.Background(), e.run); err != nil {
				t.Errorf("clearing per-test state: %v", err)
			}
		})
		t.Cleanup(func() {
			if t.Failed() {
				e.printLog(t, e.handles.ApplicationName())
			}
		})
		fn(t, e.handles)
	})
}

// NoError fails the test when err is not nil. For 404 and 5xx responses
// the application log is printed first, it usually tells why.
func (e *Env) NoError(tb testing.TB, err error, msgAndArgs ...interface{}) {
	tb.Helper()
	if err == nil {
		return
	}
	if restclient.IsNotFound(err) || restclient.IsServerError(err) {
		e.printLog(tb, e.handles.ApplicationName())
	}
	require.NoError(tb, err, msgAndArgs...)
}

// Logs returns the output of a container.
func (e *Env) Logs(name string) (string, error) {
	return e.ctrl.GetLogs(context.Background(), e.run, name)
}

func (e *Env) printLog(tb testing.TB, name string) {
	tb.Helper()
	logs, err := e.Logs(name)
	if err != nil {
		tb.Logf("no log of %s: %v", name, err)
		return
	}
	tb.Logf("log of %s:\n%s", name, logs)
}
