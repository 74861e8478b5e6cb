package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"

	"testbay/pkg/containerizer"
	"testbay/pkg/restclient"
)

// DatabaseProvider is implemented by components that expose a database connection.
type DatabaseProvider interface {
	DB() *gorm.DB
}

// Handles is the fixture context handed to tests: the running containers,
// their components and clients derived from them. It becomes unusable once
// the run is stopped.
type Handles struct {
	mu         sync.RWMutex
	released   bool
	runID      string
	app        string
	basePath   string
	appPort    string
	order      []string
	containers map[string]containerizer.Container
	components map[string]any
}

// InjectHandles returns the fixture context of a started run. Repeated calls
// return the same Handles.
func (c *Controller) InjectHandles(run *Run) (*Handles, error) {
	run.mu.Lock()
	defer run.mu.Unlock()

	if run.state != RunStarted {
		return nil, &InjectionError{RunID: run.ID, State: run.state}
	}
	if run.handles != nil {
		return run.handles, nil
	}

	appSpec := run.spec(run.applicationName())
	h := &Handles{
		runID:      run.ID,
		app:        appSpec.Name,
		basePath:   appSpec.BasePath,
		appPort:    appSpec.ExposedPorts[0],
		containers: make(map[string]containerizer.Container, len(run.containers)),
		components: make(map[string]any),
	}
	for _, s := range run.specs {
		container, ok := run.containers[s.Name]
		if !ok {
			return nil, &InjectionError{RunID: run.ID, State: run.state}
		}
		h.order = append(h.order, s.Name)
		h.containers[s.Name] = container
		if s.Component != nil {
			h.components[s.Name] = s.Component
		}
	}
	run.handles = h
	return h, nil
}

func (h *Handles) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
	h.containers = nil
	h.components = nil
}

// Released reports whether the run behind these handles was stopped.
func (h *Handles) Released() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.released
}

// RunID identifies the run these handles belong to.
func (h *Handles) RunID() string {
	return h.runID
}

// Names returns the container names in declaration order.
func (h *Handles) Names() []string {
	return append([]string(nil), h.order...)
}

// Application returns the application container.
func (h *Handles) Application() (containerizer.Container, error) {
	return h.Container(h.app)
}

// ApplicationName returns the name of the application container.
func (h *Handles) ApplicationName() string {
	return h.app
}

// Container returns a container by name.
func (h *Handles) Container(name string) (containerizer.Container, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return nil, ErrHandlesReleased
	}
	c, ok := h.containers[name]
	if !ok {
		return nil, fmt.Errorf("no container named %s", name)
	}
	return c, nil
}

// Component returns the component attached to a container.
func (h *Handles) Component(name string) (any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return nil, ErrHandlesReleased
	}
	c, ok := h.components[name]
	if !ok {
		return nil, fmt.Errorf("no component attached to %s", name)
	}
	return c, nil
}

// BaseURL returns the application URL reachable from the test process,
// including the runtime's deployment root.
func (h *Handles) BaseURL(ctx context.Context) (string, error) {
	app, err := h.Application()
	if err != nil {
		return "", err
	}
	endpoint, err := containerizer.Endpoint(ctx, app, h.appPort)
	if err != nil {
		return "", err
	}
	base := "http://" + endpoint
	if p := strings.Trim(h.basePath, "/"); p != "" {
		base += "/" + p
	}
	return base, nil
}

// RestClient returns a JSON client for the application. path is appended to
// the base URL, so a client can be bound to a resource root.
func (h *Handles) RestClient(ctx context.Context, path string, opts ...restclient.ClientOption) (*restclient.Client, error) {
	base, err := h.BaseURL(ctx)
	if err != nil {
		return nil, err
	}
	if p := strings.Trim(path, "/"); p != "" {
		base += "/" + p
	}
	return restclient.New(base, opts...)
}

// Database returns the connection of the first component that provides one.
func (h *Handles) Database() (*gorm.DB, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return nil, ErrHandlesReleased
	}
	for _, name := range h.order {
		if p, ok := h.components[name].(DatabaseProvider); ok {
			if db := p.DB(); db != nil {
				return db, nil
			}
		}
	}
	return nil, fmt.Errorf("no database declared in run %s", h.runID)
}
