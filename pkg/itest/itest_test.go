package itest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testbay/pkg/containerizer"
	"testbay/pkg/orchestrator"
	"testbay/pkg/restclient"
)

type fakeContainer struct {
	name    string
	port    string
	mu      sync.Mutex
	stopped bool
}

func (c *fakeContainer) Name() string                              { return c.name }
func (c *fakeContainer) ID() string                                { return "id-" + c.name }
func (c *fakeContainer) Host(context.Context) (string, error)      { return "127.0.0.1", nil }
func (c *fakeContainer) MappedPort(context.Context, string) (string, error) {
	return c.port, nil
}
func (c *fakeContainer) Logs(context.Context) (string, error) {
	return "output of " + c.name, nil
}
func (c *fakeContainer) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}

func (c *fakeContainer) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

type fakeRuntime struct {
	port  string
	fail  map[string]error
	mu    sync.Mutex
	items map[string]*fakeContainer
}

func newFakeRuntime(port string) *fakeRuntime {
	return &fakeRuntime{port: port, fail: map[string]error{}, items: map[string]*fakeContainer{}}
}

func (r *fakeRuntime) CreateNetwork(context.Context) (containerizer.Network, error) {
	return fakeNetwork{}, nil
}

func (r *fakeRuntime) StartContainer(_ context.Context, cfg containerizer.ContainerConfig) (containerizer.Container, error) {
	c := &fakeContainer{name: cfg.Name, port: r.port}
	r.mu.Lock()
	r.items[cfg.Name] = c
	r.mu.Unlock()
	return c, r.fail[cfg.Name]
}

func (r *fakeRuntime) container(name string) *fakeContainer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[name]
}

type fakeNetwork struct{}

func (fakeNetwork) Name() string                 { return "testbay-net" }
func (fakeNetwork) Remove(context.Context) error { return nil }

// recorder is a component that logs its per-test callbacks.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) Refresh(context.Context) error { r.add("refresh"); return nil }
func (r *recorder) Clear(context.Context) error   { r.add("clear"); return nil }

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// fakeTB records failures instead of failing the surrounding test. Every
// method the glue and testify call is implemented; the embedded TB is nil.
type fakeTB struct {
	testing.TB
	mu       sync.Mutex
	logs     []string
	failed   bool
	cleanups []func()
}

func (f *fakeTB) Helper() {}

func (f *fakeTB) Name() string { return "fakeTB" }

func (f *fakeTB) Failed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

func (f *fakeTB) Log(args ...interface{}) {
	f.Logf("%s", fmt.Sprint(args...))
}

func (f *fakeTB) Logf(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, fmt.Sprintf(format, args...))
}

func (f *fakeTB) Errorf(format string, args ...interface{}) {
	f.Logf(format, args...)
	f.mu.Lock()
	f.failed = true
	f.mu.Unlock()
}

func (f *fakeTB) FailNow() {
	f.mu.Lock()
	f.failed = true
	f.mu.Unlock()
	runtime.Goexit()
}

func (f *fakeTB) Cleanup(fn func()) {
	f.cleanups = append(f.cleanups, fn)
}

func (f *fakeTB) output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.logs, "\n")
}

// runTB runs fn on its own goroutine so FailNow can end it, then runs the
// registered cleanups.
func runTB(fn func(tb *fakeTB)) *fakeTB {
	tb := &fakeTB{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(tb)
	}()
	<-done
	for i := len(tb.cleanups) - 1; i >= 0; i-- {
		tb.cleanups[i]()
	}
	return tb
}

func newController(t *testing.T, rt containerizer.ContainerRuntime) *orchestrator.Controller {
	t.Helper()
	ctrl, err := orchestrator.New(orchestrator.Config{Runtime: rt, StartupTimeout: 5 * time.Second})
	require.NoError(t, err)
	return ctrl
}

func appSpec() orchestrator.ContainerSpec {
	return orchestrator.ContainerSpec{
		ContainerConfig: containerizer.ContainerConfig{Name: "app", Image: "app:1", ExposedPorts: []string{"8080"}},
		Role:            orchestrator.RoleApplication,
	}
}

func dbSpec(c any) orchestrator.ContainerSpec {
	return orchestrator.ContainerSpec{
		ContainerConfig: containerizer.ContainerConfig{Name: "db", Image: "db:1", ExposedPorts: []string{"5432"}},
		Role:            orchestrator.RoleDatabase,
		Component:       c,
	}
}

func TestSetup_RunsSubtestsWithFreshState(t *testing.T) {
	rt := newFakeRuntime("18080")
	rec := &recorder{}

	t.Run("environment", func(t *testing.T) {
		env := Setup(t, newController(t, rt), appSpec(), dbSpec(rec))
		assert.Equal(t, orchestrator.RunStarted, env.Orchestration().State())

		for _, name := range []string{"first", "second"} {
			env.Run(t, name, func(t *testing.T, h *orchestrator.Handles) {
				base, err := h.BaseURL(context.Background())
				require.NoError(t, err)
				assert.Equal(t, "http://127.0.0.1:18080", base)
			})
		}

		logs, err := env.Logs("db")
		require.NoError(t, err)
		assert.Equal(t, "output of db", logs)
	})

	assert.Equal(t, []string{"refresh", "clear", "refresh", "clear"}, rec.snapshot())
	assert.True(t, rt.container("app").isStopped(), "cleanup stops the environment")
	assert.True(t, rt.container("db").isStopped())
}

func TestSetup_StartupFailurePrintsLogs(t *testing.T) {
	rt := newFakeRuntime("18080")
	rt.fail["db"] = errors.New("port already allocated")
	ctrl := newController(t, rt)

	tb := runTB(func(tb *fakeTB) {
		Setup(tb, ctrl, appSpec(), dbSpec(nil))
		tb.Errorf("Setup returned although startup failed")
	})

	assert.True(t, tb.failed)
	out := tb.output()
	assert.Contains(t, out, "log of db:\noutput of db")
	assert.Contains(t, out, "port already allocated")
	assert.NotContains(t, out, "Setup returned")
	assert.True(t, rt.container("db").isStopped())
}

func TestEnv_NoErrorPrintsLogForServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/bad":
			http.Error(w, "nope", http.StatusBadRequest)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()
	client, err := restclient.New(srv.URL)
	require.NoError(t, err)

	env := Setup(t, newController(t, newFakeRuntime("18080")), appSpec())

	tests := []struct {
		path    string
		wantLog bool
	}{
		{path: "/missing", wantLog: true},
		{path: "/fail", wantLog: true},
		{path: "/bad", wantLog: false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			callErr := client.Get(context.Background(), tt.path, nil)
			require.Error(t, callErr)

			tb := runTB(func(tb *fakeTB) { env.NoError(tb, callErr) })
			assert.True(t, tb.failed)
			assert.Equal(t, tt.wantLog, strings.Contains(tb.output(), "output of app"))
		})
	}

	tb := runTB(func(tb *fakeTB) { env.NoError(tb, nil) })
	assert.False(t, tb.failed)
}

func TestFailedContainers(t *testing.T) {
	timeout := &orchestrator.StartupTimeoutError{Timeout: time.Second, Pending: []string{"slow"}, Failed: []string{"broken"}}
	assert.Equal(t, []string{"broken", "slow"}, failedContainers(timeout, nil))

	startup := &orchestrator.StartupError{Failed: []string{"db"}, Cause: errors.New("x")}
	assert.Equal(t, []string{"db"}, failedContainers(fmt.Errorf("wrapped: %w", startup), nil))
}
