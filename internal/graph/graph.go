// Package graph provides the dependency graph backing binding resolution:
// cycle detection with lazy-edge awareness and topological ordering for
// eager initialization.
package graph

import (
	"fmt"
	"sync"
)

// Graph records dependency edges between nodes identified by a comparable
// key. Edges may be marked lazy; lazy edges represent deferred acquisition
// (a provider handle) and never participate in cycle detection or
// topological ordering.
type Graph[K comparable] struct {
	mu    sync.RWMutex
	nodes map[K]bool
	edges map[K][]Edge[K]

	// order remembers node insertion order for deterministic traversals.
	order []K
}

// Edge is one outgoing dependency of a node.
type Edge[K comparable] struct {
	To   K
	Lazy bool
}

// New creates an empty graph.
func New[K comparable]() *Graph[K] {
	return &Graph[K]{
		nodes: make(map[K]bool),
		edges: make(map[K][]Edge[K]),
	}
}

// AddNode registers a node with its outgoing edges, replacing any previous
// edge set for that node. Edge targets are registered implicitly.
func (g *Graph[K]) AddNode(key K, edges []Edge[K]) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.insert(key)
	g.edges[key] = append([]Edge[K](nil), edges...)
	for _, e := range edges {
		g.insert(e.To)
	}
}

func (g *Graph[K]) insert(key K) {
	if !g.nodes[key] {
		g.nodes[key] = true
		g.order = append(g.order, key)
	}
}

// Checkpoint is a copy of the graph contents captured before an incremental
// update, so a failed update can be rewound with Restore.
type Checkpoint[K comparable] struct {
	nodes map[K]bool
	edges map[K][]Edge[K]
	order []K
}

// Checkpoint captures the current graph contents.
func (g *Graph[K]) Checkpoint() *Checkpoint[K] {
	g.mu.RLock()
	defer g.mu.RUnlock()

	c := &Checkpoint[K]{
		nodes: make(map[K]bool, len(g.nodes)),
		edges: make(map[K][]Edge[K], len(g.edges)),
		order: append([]K(nil), g.order...),
	}
	for k, v := range g.nodes {
		c.nodes[k] = v
	}
	for k, v := range g.edges {
		// AddNode replaces edge slices wholesale, so sharing them is safe.
		c.edges[k] = v
	}
	return c
}

// Restore rewinds the graph to a previously captured checkpoint, discarding
// every node and edge added since. A checkpoint may be restored more than
// once.
func (g *Graph[K]) Restore(c *Checkpoint[K]) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[K]bool, len(c.nodes))
	g.edges = make(map[K][]Edge[K], len(c.edges))
	g.order = append([]K(nil), c.order...)
	for k, v := range c.nodes {
		g.nodes[k] = v
	}
	for k, v := range c.edges {
		g.edges[k] = v
	}
}

// HasNode reports whether the node is known to the graph.
func (g *Graph[K]) HasNode(key K) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[key]
}

// Size returns the number of nodes.
func (g *Graph[K]) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the direct non-lazy dependencies of a node.
func (g *Graph[K]) Dependencies(key K) []K {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []K
	for _, e := range g.edges[key] {
		if !e.Lazy {
			out = append(out, e.To)
		}
	}
	return out
}

// DetectCycle searches for a cycle through non-lazy edges, returning the
// cycle path when one exists. A cycle broken by at least one lazy edge is
// legal and is not reported.
func (g *Graph[K]) DetectCycle() *CycleError[K] {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[K]int, len(g.nodes))

	var stack []K
	var found *CycleError[K]

	var visit func(key K) bool
	visit = func(key K) bool {
		switch state[key] {
		case done:
			return false
		case visiting:
			// Reconstruct the cycle from the current stack.
			var path []K
			for i := len(stack) - 1; i >= 0; i-- {
				path = append([]K{stack[i]}, path...)
				if stack[i] == key {
					break
				}
			}
			found = &CycleError[K]{Node: key, Path: path}
			return true
		}

		state[key] = visiting
		stack = append(stack, key)
		for _, e := range g.edges[key] {
			if e.Lazy {
				continue
			}
			if visit(e.To) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		state[key] = done
		return false
	}

	for _, key := range g.order {
		if state[key] == unvisited {
			if visit(key) {
				return found
			}
		}
	}
	return nil
}

// TopologicalOrder returns the nodes with dependencies before dependents,
// considering only non-lazy edges. Ties break by insertion order so the
// result is deterministic. Fails when a non-lazy cycle remains.
func (g *Graph[K]) TopologicalOrder() ([]K, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// In-degree over reversed non-lazy edges: a node is ready once all of
	// its dependencies have been emitted.
	pending := make(map[K]int, len(g.nodes))
	dependents := make(map[K][]K, len(g.nodes))
	for _, key := range g.order {
		for _, e := range g.edges[key] {
			if e.Lazy {
				continue
			}
			pending[key]++
			dependents[e.To] = append(dependents[e.To], key)
		}
	}

	queue := make([]K, 0, len(g.nodes))
	for _, key := range g.order {
		if pending[key] == 0 {
			queue = append(queue, key)
		}
	}

	result := make([]K, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dep := range dependents[current] {
			pending[dep]--
			if pending[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, fmt.Errorf("dependency graph contains a cycle: %d of %d nodes sorted",
			len(result), len(g.nodes))
	}
	return result, nil
}

// TransitiveDependencies returns every node reachable from key through
// non-lazy edges, in breadth-first order.
func (g *Graph[K]) TransitiveDependencies(key K) []K {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[K]bool{key: true}
	var result []K
	queue := []K{key}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range g.edges[current] {
			if e.Lazy || visited[e.To] {
				continue
			}
			visited[e.To] = true
			result = append(result, e.To)
			queue = append(queue, e.To)
		}
	}
	return result
}
