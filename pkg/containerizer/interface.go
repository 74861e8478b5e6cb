package containerizer

import (
	"context"
	"fmt"
	"net"
	"time"
)

// ContainerRuntime defines the interface for container runtime operations
type ContainerRuntime interface {
	// CreateNetwork creates a network that containers can join by name
	CreateNetwork(ctx context.Context) (Network, error)

	// StartContainer starts a container and blocks until its probe passes.
	// When the container was created but never became ready, the handle is
	// returned together with the error so it can be inspected and stopped.
	StartContainer(ctx context.Context, config ContainerConfig) (Container, error)
}

// Container is a handle to a started container
type Container interface {
	// Name returns the logical name the container was configured with
	Name() string

	// ID returns the runtime's container identifier
	ID() string

	// Host returns the host on which mapped ports are reachable
	Host(ctx context.Context) (string, error)

	// MappedPort returns the host port bound to a container port ("8080" or "8080/tcp")
	MappedPort(ctx context.Context, port string) (string, error)

	// Logs returns everything the container wrote to stdout and stderr so far
	Logs(ctx context.Context) (string, error)

	// Stop terminates and removes the container
	Stop(ctx context.Context) error
}

// Network is a runtime network shared by the containers of one environment
type Network interface {
	Name() string
	Remove(ctx context.Context) error
}

// ContainerConfig holds configuration for starting a container
type ContainerConfig struct {
	Name           string            // Logical name, used for logs and as default network alias
	Image          string            // Container image, mutually exclusive with Build
	Build          *BuildConfig      // Image build instructions
	Env            map[string]string // Environment variables
	ExposedPorts   []string          // Container ports published on random host ports
	FixedPorts     []PortBinding     // Container ports pinned to fixed host ports
	Volumes        []VolumeMount     // Host directories bound into the container
	Network        string            // Network to join
	NetworkAliases []string          // Aliases within Network
	Probe          Probe             // Readiness probe
	StartupTimeout time.Duration     // Upper bound for the probe, zero means the probe default
	LiveLogging    bool              // Follow container output through the logger
}

// BuildConfig describes an image built from a local context directory
type BuildConfig struct {
	ContextDir string // Directory sent to the daemon as build context
	Dockerfile string // Dockerfile path relative to ContextDir
	Repo       string // Optional image repository for the built image
	Tag        string // Optional tag for the built image
	KeepImage  bool   // Keep the image after the container is removed
}

// PortBinding pins a container port to a host port
type PortBinding struct {
	HostPort      string
	ContainerPort string
}

// VolumeMount binds a host path into the container
type VolumeMount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// Validate checks that the configuration can be handed to a runtime.
func (c ContainerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("container name must not be empty")
	}
	if c.Image == "" && c.Build == nil {
		return fmt.Errorf("container %s: either image or build must be set", c.Name)
	}
	if c.Image != "" && c.Build != nil {
		return fmt.Errorf("container %s: image and build are mutually exclusive", c.Name)
	}
	if c.Build != nil && c.Build.ContextDir == "" {
		return fmt.Errorf("container %s: build context directory must be set", c.Name)
	}
	for _, v := range c.Volumes {
		if v.HostPath == "" || v.ContainerPath == "" {
			return fmt.Errorf("container %s: volume mounts need both host and container path", c.Name)
		}
	}
	for _, p := range c.FixedPorts {
		if p.HostPort == "" || p.ContainerPort == "" {
			return fmt.Errorf("container %s: fixed ports need both host and container port", c.Name)
		}
	}
	if err := c.Probe.Validate(); err != nil {
		return fmt.Errorf("container %s: %w", c.Name, err)
	}
	return nil
}

// Endpoint returns "host:port" under which a container port is reachable from
// the test process.
func Endpoint(ctx context.Context, c Container, port string) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get host of %s: %w", c.Name(), err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return "", fmt.Errorf("failed to get mapped port %s of %s: %w", port, c.Name(), err)
	}
	return net.JoinHostPort(host, mapped), nil
}
