package containerizer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"

	"testbay/pkg/logging"
)

const runtimeSubsystem = "ContainerRuntime"

// TestcontainersRuntime implements ContainerRuntime on top of testcontainers-go.
type TestcontainersRuntime struct {
	provider testcontainers.ProviderType
}

// NewTestcontainersRuntime creates a runtime talking to the given provider.
func NewTestcontainersRuntime(provider testcontainers.ProviderType) *TestcontainersRuntime {
	return &TestcontainersRuntime{provider: provider}
}

// Ping checks that the container daemon answers.
func (r *TestcontainersRuntime) Ping(ctx context.Context) error {
	p, err := r.provider.GetProvider()
	if err != nil {
		return fmt.Errorf("container runtime not available: %w", err)
	}
	defer p.Close()

	if err := p.Health(ctx); err != nil {
		return fmt.Errorf("container runtime not healthy: %w", err)
	}
	return nil
}

// CreateNetwork creates a uniquely named bridge network through the
// runtime's provider.
func (r *TestcontainersRuntime) CreateNetwork(ctx context.Context) (Network, error) {
	req := r.networkRequest("testbay-" + uuid.NewString())
	// network.New always goes through the Docker provider.
	nw, err := testcontainers.GenericNetwork(ctx, req) //nolint:staticcheck
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}
	logging.Debug(runtimeSubsystem, "Created network %s", req.Name)
	return &tcNetwork{name: req.Name, nw: nw}, nil
}

func (r *TestcontainersRuntime) networkRequest(name string) testcontainers.GenericNetworkRequest {
	return testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{
			Name:   name,
			Driver: "bridge",
			Labels: testcontainers.GenericLabels(),
		},
		ProviderType: r.provider,
	}
}

// StartContainer starts a container with the given configuration and waits for its probe.
func (r *TestcontainersRuntime) StartContainer(ctx context.Context, config ContainerConfig) (Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	req := toContainerRequest(config)
	logging.Info(runtimeSubsystem, "Starting container %s (%s), waiting for %s", config.Name, describeSource(config), config.Probe)

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		ProviderType:     r.provider,
		Started:          true,
		Logger:           logging.Printer{Subsystem: runtimeSubsystem},
	})

	var handle Container
	if c != nil {
		handle = &tcContainer{name: config.Name, c: c}
	}
	if err != nil {
		return handle, fmt.Errorf("failed to start container %s: %w", config.Name, err)
	}

	logging.Info(runtimeSubsystem, "Container %s is ready (id %s)", config.Name, shortID(c.GetContainerID()))
	return handle, nil
}

// toContainerRequest translates a ContainerConfig into a testcontainers request.
func toContainerRequest(config ContainerConfig) testcontainers.ContainerRequest {
	req := testcontainers.ContainerRequest{
		Image:      config.Image,
		Env:        make(map[string]string, len(config.Env)),
		WaitingFor: config.Probe.strategy(config.StartupTimeout),
	}
	for k, v := range config.Env {
		req.Env[k] = v
	}

	seen := make(map[nat.Port]bool)
	for _, p := range config.ExposedPorts {
		port := natPort(p)
		if !seen[port] {
			seen[port] = true
			req.ExposedPorts = append(req.ExposedPorts, string(port))
		}
	}
	for _, b := range config.FixedPorts {
		port := natPort(b.ContainerPort)
		if !seen[port] {
			seen[port] = true
			req.ExposedPorts = append(req.ExposedPorts, string(port))
		}
	}

	if config.Build != nil {
		req.FromDockerfile = testcontainers.FromDockerfile{
			Context:    config.Build.ContextDir,
			Dockerfile: config.Build.Dockerfile,
			Repo:       config.Build.Repo,
			Tag:        config.Build.Tag,
			KeepImage:  config.Build.KeepImage,
		}
	}

	if config.Network != "" {
		aliases := config.NetworkAliases
		if len(aliases) == 0 {
			aliases = []string{config.Name}
		}
		req.Networks = []string{config.Network}
		req.NetworkAliases = map[string][]string{config.Network: append([]string(nil), aliases...)}
	}

	if len(config.Volumes) > 0 || len(config.FixedPorts) > 0 {
		req.HostConfigModifier = hostConfigModifier(config.Volumes, config.FixedPorts)
	}

	if config.LiveLogging {
		req.LogConsumerCfg = &testcontainers.LogConsumerConfig{
			Consumers: []testcontainers.LogConsumer{lineConsumer{logger: logging.LineLogger{Subsystem: config.Name}}},
		}
	}

	return req
}

// hostConfigModifier adds bind mounts and fixed host port bindings.
func hostConfigModifier(volumes []VolumeMount, fixed []PortBinding) func(*container.HostConfig) {
	return func(hc *container.HostConfig) {
		for _, v := range volumes {
			bind := v.HostPath + ":" + v.ContainerPath
			if v.ReadOnly {
				bind += ":ro"
			}
			hc.Binds = append(hc.Binds, bind)
		}
		if len(fixed) == 0 {
			return
		}
		if hc.PortBindings == nil {
			hc.PortBindings = nat.PortMap{}
		}
		for _, b := range fixed {
			hc.PortBindings[natPort(b.ContainerPort)] = []nat.PortBinding{{HostPort: b.HostPort}}
		}
	}
}

// natPort turns "8080" into "8080/tcp" and keeps explicit protocols.
func natPort(p string) nat.Port {
	p = strings.TrimSpace(p)
	if strings.Contains(p, "/") {
		proto, port := nat.SplitProtoPort(p)
		return nat.Port(port + "/" + proto)
	}
	return nat.Port(p + "/tcp")
}

func describeSource(config ContainerConfig) string {
	if config.Build != nil {
		return "built from " + config.Build.ContextDir
	}
	return config.Image
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// lineConsumer forwards container output to the logger line by line.
type lineConsumer struct {
	logger logging.LineLogger
}

func (l lineConsumer) Accept(entry testcontainers.Log) {
	for _, line := range strings.Split(string(entry.Content), "\n") {
		l.logger.Line(line)
	}
}

type tcContainer struct {
	name string
	c    testcontainers.Container
}

func (t *tcContainer) Name() string { return t.name }

func (t *tcContainer) ID() string { return t.c.GetContainerID() }

func (t *tcContainer) Host(ctx context.Context) (string, error) {
	return t.c.Host(ctx)
}

func (t *tcContainer) MappedPort(ctx context.Context, port string) (string, error) {
	mapped, err := t.c.MappedPort(ctx, natPort(port))
	if err != nil {
		return "", err
	}
	return mapped.Port(), nil
}

func (t *tcContainer) Logs(ctx context.Context) (string, error) {
	rc, err := t.c.Logs(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read logs of %s: %w", t.name, err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read logs of %s: %w", t.name, err)
	}
	return string(b), nil
}

func (t *tcContainer) Stop(ctx context.Context) error {
	logging.Debug(runtimeSubsystem, "Terminating container %s", t.name)
	if err := t.c.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate container %s: %w", t.name, err)
	}
	return nil
}

type tcNetwork struct {
	name string
	nw   testcontainers.Network
}

func (n *tcNetwork) Name() string { return n.name }

func (n *tcNetwork) Remove(ctx context.Context) error {
	if err := n.nw.Remove(ctx); err != nil {
		return fmt.Errorf("failed to remove network %s: %w", n.name, err)
	}
	return nil
}
