package stub

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"testbay/pkg/containerizer"
	"testbay/pkg/orchestrator"
)

const subsystem = "Stub"

const (
	DefaultImage = "wiremock/wiremock:2.34.0"
	DefaultName  = "wiremock"
	Port         = "8080"
)

// Options configure a WireMock companion.
type Options struct {
	// Name is the container name and the host name the application uses.
	Name  string
	Image string // tag or full image reference

	// EnvName, when set, hands the in-network base URL
	// ("http://wiremock:8080") to the application under this variable.
	EnvName string

	StartupTimeout time.Duration
	LiveLogging    bool
}

// Stub is the orchestrator component for a WireMock container.
type Stub struct {
	opts Options

	mu    sync.RWMutex
	admin *Admin
	url   string
}

// New fills in defaults.
func New(opts Options) *Stub {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	switch {
	case opts.Image == "":
		opts.Image = DefaultImage
	case !strings.Contains(opts.Image, "/") && !strings.Contains(opts.Image, ":"):
		opts.Image = "wiremock/wiremock:" + opts.Image
	}
	return &Stub{opts: opts}
}

// Name returns the container name.
func (s *Stub) Name() string {
	return s.opts.Name
}

// Spec returns the container spec with the stub as its component.
func (s *Stub) Spec() orchestrator.ContainerSpec {
	return orchestrator.ContainerSpec{
		ContainerConfig: containerizer.ContainerConfig{
			Name:           s.opts.Name,
			Image:          s.opts.Image,
			ExposedPorts:   []string{Port},
			NetworkAliases: []string{s.opts.Name},
			Probe:          containerizer.HTTPProbe("/__admin/mappings", Port, http.StatusOK),
			StartupTimeout: s.opts.StartupTimeout,
			LiveLogging:    s.opts.LiveLogging,
		},
		Role:      orchestrator.RoleStub,
		StartMode: orchestrator.StartConcurrent,
		Component: s,
	}
}

// InternalURL is the base URL of the stub inside the environment network.
func (s *Stub) InternalURL() string {
	return "http://" + s.opts.Name + ":" + Port
}

// ApplicationEnv implements orchestrator.EnvProvider.
func (s *Stub) ApplicationEnv() map[string]string {
	if s.opts.EnvName == "" {
		return nil
	}
	return map[string]string{s.opts.EnvName: s.InternalURL()}
}

// Initialize implements orchestrator.Initializer by binding the admin client
// to the mapped port.
func (s *Stub) Initialize(ctx context.Context, c containerizer.Container) error {
	endpoint, err := containerizer.Endpoint(ctx, c, Port)
	if err != nil {
		return err
	}
	return s.bind("http://" + endpoint)
}

func (s *Stub) bind(url string) error {
	admin, err := NewAdmin(url)
	if err != nil {
		return fmt.Errorf("failed to create admin client for %s: %w", s.opts.Name, err)
	}
	s.mu.Lock()
	s.admin = admin
	s.url = url
	s.mu.Unlock()
	return nil
}

// URL is the base URL of the stub as seen from the test process.
func (s *Stub) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// Admin returns the admin client, nil before the container is ready.
func (s *Stub) Admin() *Admin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admin
}

// Configure builds and submits a mapping, returning its id.
func (s *Stub) Configure(ctx context.Context, b *MappingBuilder) (string, error) {
	admin, err := s.ready()
	if err != nil {
		return "", err
	}
	m, err := b.Build()
	if err != nil {
		return "", err
	}
	return admin.SubmitMapping(ctx, m)
}

// Refresh implements orchestrator.StateManager.
func (s *Stub) Refresh(ctx context.Context) error {
	return s.reset(ctx)
}

// Clear implements orchestrator.StateManager.
func (s *Stub) Clear(ctx context.Context) error {
	return s.reset(ctx)
}

func (s *Stub) reset(ctx context.Context) error {
	admin, err := s.ready()
	if err != nil {
		return err
	}
	return multierr.Combine(admin.ResetMappings(ctx), admin.DeleteAllRequests(ctx))
}

func (s *Stub) ready() (*Admin, error) {
	admin := s.Admin()
	if admin == nil {
		return nil, fmt.Errorf("stub %s is not initialized", s.opts.Name)
	}
	return admin, nil
}

// From returns the stub attached to the container called name.
func From(h *orchestrator.Handles, name string) (*Stub, error) {
	c, err := h.Component(name)
	if err != nil {
		return nil, err
	}
	s, ok := c.(*Stub)
	if !ok {
		return nil, fmt.Errorf("%s is not a stub server", name)
	}
	return s, nil
}
