// Package dependency provides a directed acyclic graph (DAG) used to order
// container startup and teardown in testbay.
//
// # Core Concepts
//
// Graph: A directed acyclic graph that represents startup dependencies.
// Each node is a container, and edges point at the containers that must be
// ready first.
//
// Node: Represents a container in the dependency graph with:
//   - ID: The container name
//   - FriendlyName: Human-readable name
//   - Kind: Role of the container (application, database, stub, user-defined)
//   - DependsOn: Containers that must be ready before this one starts
//
// # Phases
//
// Phases layers the graph. Containers in one phase may start concurrently;
// a phase only starts once every earlier phase is ready. Teardown walks the
// phases in reverse.
//
// Sequentially started containers are chained one after the other, and every
// concurrently started container depends on the last sequential one, which
// yields one phase per sequential container followed by a single concurrent
// phase.
package dependency
