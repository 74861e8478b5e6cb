// internal/dependency/graph.go
package dependency

import (
	"fmt"
	"strings"
)

// NodeState represents the lifecycle state of a node (container). The
// orchestrator updates it while starting and stopping so that the CLI can
// render a status table.
type NodeState int

const (
	StateUnknown NodeState = iota
	StateStopped
	StateStarting
	StateRunning
	StateError
)

func (s NodeState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// NodeID is the unique identifier for a node inside a dependency graph.
// Container names are used directly.
type NodeID string

// NodeKind categorises nodes by the role of the container they stand for.
type NodeKind int

const (
	KindUnknown NodeKind = iota
	KindApplication
	KindDatabase
	KindStub
	KindUserDefined
)

// Node represents a container together with its dependency list.
//
// A node can depend on zero or more other nodes. The graph must be a Directed
// Acyclic Graph; Phases reports cycles.
type Node struct {
	ID           NodeID
	FriendlyName string
	Kind         NodeKind
	DependsOn    []NodeID
	State        NodeState
}

// Graph is a very small helper to answer dependency queries. It is *not*
// thread-safe by itself; callers must synchronise if they write concurrently.
type Graph struct {
	nodes map[NodeID]*Node
	order []NodeID
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode adds (or replaces) a node in the graph. Insertion order is kept and
// decides the order of nodes within a phase.
func (g *Graph) AddNode(n Node) {
	if g.nodes == nil {
		g.nodes = make(map[NodeID]*Node)
	}
	if _, exists := g.nodes[n.ID]; !exists {
		g.order = append(g.order, n.ID)
	}
	// Copy to avoid external mutations
	copied := n
	copied.DependsOn = append([]NodeID(nil), n.DependsOn...)
	g.nodes[n.ID] = &copied
}

// Get returns a pointer to the stored node or nil if it does not exist.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Nodes returns node IDs in insertion order.
func (g *Graph) Nodes() []NodeID {
	return append([]NodeID(nil), g.order...)
}

// SetState updates the state of a node. Unknown IDs are ignored.
func (g *Graph) SetState(id NodeID, state NodeState) {
	if n, ok := g.nodes[id]; ok {
		n.State = state
	}
}

// Dependencies returns a slice of immediate dependency IDs for the given node.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	if n, ok := g.nodes[id]; ok {
		// Return a copy to avoid callers modifying internal slice.
		depsCopy := make([]NodeID, len(n.DependsOn))
		copy(depsCopy, n.DependsOn)
		return depsCopy
	}
	return nil
}

// Dependents returns all node IDs that have a direct dependency on the given
// node, in insertion order.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var res []NodeID
	for _, nid := range g.order {
		for _, dep := range g.nodes[nid].DependsOn {
			if dep == id {
				res = append(res, nid)
				break
			}
		}
	}
	return res
}

// Phases layers the graph: every node of phase i only depends on nodes of
// earlier phases. Nodes keep their insertion order inside a phase.
// It fails on dependencies to unknown nodes and on cycles.
func (g *Graph) Phases() ([][]NodeID, error) {
	indegree := make(map[NodeID]int, len(g.order))
	for _, id := range g.order {
		for _, dep := range g.nodes[id].DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return nil, fmt.Errorf("node %s depends on unknown node %s", id, dep)
			}
		}
		indegree[id] = len(g.nodes[id].DependsOn)
	}

	var phases [][]NodeID
	placed := 0
	done := make(map[NodeID]bool, len(g.order))
	for placed < len(g.order) {
		var phase []NodeID
		for _, id := range g.order {
			if !done[id] && indegree[id] == 0 {
				phase = append(phase, id)
			}
		}
		if len(phase) == 0 {
			var stuck []string
			for _, id := range g.order {
				if !done[id] {
					stuck = append(stuck, string(id))
				}
			}
			return nil, fmt.Errorf("dependency cycle between %s", strings.Join(stuck, ", "))
		}
		for _, id := range phase {
			done[id] = true
			for _, dependent := range g.Dependents(id) {
				indegree[dependent]--
			}
		}
		placed += len(phase)
		phases = append(phases, phase)
	}
	return phases, nil
}
