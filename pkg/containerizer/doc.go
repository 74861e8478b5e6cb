// Package containerizer provides the container runtime abstraction for testbay.
//
// It hides the container library behind a small interface so the orchestrator
// can be exercised without a Docker daemon.
//
// # Core Components
//
// ContainerRuntime: Interface that abstracts container operations
//   - CreateNetwork: Create the network shared by one test environment
//   - StartContainer: Build or pull, start and wait until the container is ready
//
// Container: Handle to a started container
//   - Host / MappedPort: Where the container can be reached from the test process
//   - Logs: Captured stdout and stderr
//   - Stop: Terminate and remove the container
//
// TestcontainersRuntime: Implementation on top of testcontainers-go, usable
// with Docker and Podman.
//
// # Readiness
//
// A ContainerConfig carries a Probe describing when the container counts as
// ready:
//   - HTTPProbe: a GET on a path answers with the expected status
//   - LogProbe: a log line matches a regular expression
//   - DelayProbe: a fixed amount of time has passed
//
// # Container Configuration
//
// Containers are configured with:
//   - Image or Build: Image reference, or a build context with a Dockerfile
//   - ExposedPorts: Container ports published on random host ports
//   - FixedPorts: Container ports pinned to a host port (remote debugging)
//   - Env: Environment variables
//   - Volumes: Host directories bound into the container
//   - Network / NetworkAliases: Shared network membership
package containerizer
