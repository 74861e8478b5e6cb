package containerizer

import (
	"fmt"
	"strings"

	"github.com/testcontainers/testcontainers-go"
)

// RuntimeType defines the type of container runtime
type RuntimeType string

const (
	RuntimeTypeDocker RuntimeType = "docker"
	RuntimeTypePodman RuntimeType = "podman"
)

// NewContainerRuntime creates a new container runtime based on the specified type
func NewContainerRuntime(runtimeType string) (*TestcontainersRuntime, error) {
	rt := RuntimeType(strings.ToLower(strings.TrimSpace(runtimeType)))

	switch rt {
	case RuntimeTypeDocker, "":
		// Default to Docker if not specified
		return NewTestcontainersRuntime(testcontainers.ProviderDocker), nil
	case RuntimeTypePodman:
		return NewTestcontainersRuntime(testcontainers.ProviderPodman), nil
	default:
		return nil, fmt.Errorf("unsupported container runtime: %s", runtimeType)
	}
}
