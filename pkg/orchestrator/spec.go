package orchestrator

import (
	"context"
	"fmt"

	"testbay/internal/dependency"
	"testbay/pkg/containerizer"
)

// Role is the part a container plays in a test environment.
type Role string

const (
	RoleApplication Role = "application"
	RoleDatabase    Role = "database"
	RoleStub        Role = "stub"
	RoleUserDefined Role = "user-defined"
)

func (r Role) kind() dependency.NodeKind {
	switch r {
	case RoleApplication:
		return dependency.KindApplication
	case RoleDatabase:
		return dependency.KindDatabase
	case RoleStub:
		return dependency.KindStub
	case RoleUserDefined:
		return dependency.KindUserDefined
	default:
		return dependency.KindUnknown
	}
}

// StartMode selects whether a container joins the concurrent startup group.
type StartMode string

const (
	// StartConcurrent containers start together once all sequential ones are ready.
	StartConcurrent StartMode = "concurrent"
	// StartSequential containers start one at a time, in declaration order,
	// before the concurrent group.
	StartSequential StartMode = "sequential"
)

// ContainerSpec declares one container of a test environment.
//
// The embedded ContainerConfig carries what the runtime needs; Name doubles
// as the container's alias on the environment network.
type ContainerSpec struct {
	containerizer.ContainerConfig

	Role      Role
	StartMode StartMode

	// BasePath is appended to the application's base URL, e.g. "/test".
	BasePath string

	// Component receives lifecycle callbacks. It may implement any of
	// Initializer, StateManager, EnvProvider and io.Closer.
	Component any
}

// Initializer runs once the container is ready, inside its startup task.
type Initializer interface {
	Initialize(ctx context.Context, c containerizer.Container) error
}

// StateManager seeds and clears per-test state.
type StateManager interface {
	Refresh(ctx context.Context) error
	Clear(ctx context.Context) error
}

// EnvProvider contributes environment variables to the application container,
// e.g. the in-network database URL.
type EnvProvider interface {
	ApplicationEnv() map[string]string
}

func (s ContainerSpec) startMode() StartMode {
	if s.StartMode == "" {
		return StartConcurrent
	}
	return s.StartMode
}

func (s ContainerSpec) role() Role {
	if s.Role == "" {
		return RoleUserDefined
	}
	return s.Role
}

// clone returns a deep copy, sharing only the Component.
func (s ContainerSpec) clone() ContainerSpec {
	c := s
	if s.Env != nil {
		c.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			c.Env[k] = v
		}
	}
	c.ExposedPorts = append([]string(nil), s.ExposedPorts...)
	c.FixedPorts = append([]containerizer.PortBinding(nil), s.FixedPorts...)
	c.Volumes = append([]containerizer.VolumeMount(nil), s.Volumes...)
	c.NetworkAliases = append([]string(nil), s.NetworkAliases...)
	if s.Build != nil {
		b := *s.Build
		c.Build = &b
	}
	return c
}

func (s ContainerSpec) validate() error {
	switch s.role() {
	case RoleApplication, RoleDatabase, RoleStub, RoleUserDefined:
	default:
		return fmt.Errorf("unknown role %q", s.Role)
	}
	switch s.startMode() {
	case StartConcurrent, StartSequential:
	default:
		return fmt.Errorf("unknown start mode %q", s.StartMode)
	}
	if s.role() == RoleApplication && len(s.ExposedPorts) == 0 {
		return fmt.Errorf("the application container must expose its HTTP port")
	}
	return s.ContainerConfig.Validate()
}
