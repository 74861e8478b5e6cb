package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"testbay/pkg/containerizer"
)

// behavior scripts how the fake runtime treats one container.
type behavior struct {
	delay       time.Duration
	release     chan struct{}
	err         error
	handleOnErr bool
	panic       bool
	stopErr     error
	logs        string
}

type fakeContainer struct {
	name    string
	logs    string
	stopErr error
	stopped atomic.Int32
	config  containerizer.ContainerConfig
}

func (f *fakeContainer) Name() string                         { return f.name }
func (f *fakeContainer) ID() string                           { return "id-" + f.name }
func (f *fakeContainer) Host(context.Context) (string, error) { return "127.0.0.1", nil }
func (f *fakeContainer) Logs(context.Context) (string, error) { return f.logs, nil }
func (f *fakeContainer) MappedPort(_ context.Context, port string) (string, error) {
	return "4" + port, nil
}

func (f *fakeContainer) Stop(context.Context) error {
	f.stopped.Add(1)
	return f.stopErr
}

type fakeNetwork struct {
	removed   atomic.Int32
	removeErr error
}

func (n *fakeNetwork) Name() string { return "testbay-net" }

func (n *fakeNetwork) Remove(context.Context) error {
	n.removed.Add(1)
	return n.removeErr
}

type fakeRuntime struct {
	mu         sync.Mutex
	behaviors  map[string]behavior
	started    []string
	containers map[string]*fakeContainer
	network    *fakeNetwork
	networkErr error
	// inflight counts containers currently inside StartContainer.
	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		behaviors:  make(map[string]behavior),
		containers: make(map[string]*fakeContainer),
		network:    &fakeNetwork{},
	}
}

func (f *fakeRuntime) set(name string, b behavior) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[name] = b
}

func (f *fakeRuntime) CreateNetwork(context.Context) (containerizer.Network, error) {
	if f.networkErr != nil {
		return nil, f.networkErr
	}
	return f.network, nil
}

func (f *fakeRuntime) StartContainer(ctx context.Context, cfg containerizer.ContainerConfig) (containerizer.Container, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	b := f.behaviors[cfg.Name]
	f.started = append(f.started, cfg.Name)
	f.mu.Unlock()

	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if b.release != nil {
		<-b.release
	}
	if b.panic {
		panic("runtime exploded")
	}

	c := &fakeContainer{name: cfg.Name, logs: b.logs, stopErr: b.stopErr, config: cfg}
	f.mu.Lock()
	f.containers[cfg.Name] = c
	f.mu.Unlock()

	if b.err != nil {
		if b.handleOnErr {
			return c, b.err
		}
		return nil, b.err
	}
	return c, nil
}

func (f *fakeRuntime) startedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func (f *fakeRuntime) container(name string) *fakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containers[name]
}

// recorder is a component that records its lifecycle calls.
type recorder struct {
	name       string
	log        *callLog
	initErr    error
	initPanic  bool
	refreshErr error
	closeErr   error
	env        map[string]string
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (r *recorder) Initialize(_ context.Context, c containerizer.Container) error {
	if r.initPanic {
		panic("init exploded")
	}
	r.log.add("init:" + r.name)
	return r.initErr
}

func (r *recorder) Refresh(context.Context) error {
	r.log.add("refresh:" + r.name)
	return r.refreshErr
}

func (r *recorder) Clear(context.Context) error {
	r.log.add("clear:" + r.name)
	return nil
}

func (r *recorder) Close() error {
	r.log.add("close:" + r.name)
	return r.closeErr
}

func (r *recorder) ApplicationEnv() map[string]string {
	return r.env
}

var errBoom = errors.New("boom")

func appSpec() ContainerSpec {
	return ContainerSpec{
		ContainerConfig: containerizer.ContainerConfig{
			Name:         "app",
			Image:        "payara/micro:5.2022.2-jdk11",
			ExposedPorts: []string{"8080"},
			Probe:        containerizer.HTTPProbe("/health", "8080", 200),
		},
		Role: RoleApplication,
	}
}

func auxSpec(name string, role Role, mode StartMode) ContainerSpec {
	return ContainerSpec{
		ContainerConfig: containerizer.ContainerConfig{
			Name:  name,
			Image: name + ":latest",
		},
		Role:      role,
		StartMode: mode,
	}
}
