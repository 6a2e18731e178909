package kgraph

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Adjacency is the read side of a graph used by validation.
type Adjacency interface {
	Children(id NodeID) []NodeID
	NodeIDs() []NodeID
}

// pathBetween returns a path from -> ... -> to, or nil when to is not
// reachable from from.
func pathBetween(g Adjacency, from, to NodeID) []NodeID {
	visited := make(map[NodeID]bool)

	var dfs func(NodeID, []NodeID, int) []NodeID
	dfs = func(nodeID NodeID, path []NodeID, depth int) []NodeID {
		if depth > MaxDepth {
			return nil
		}
		path = append(path, nodeID)
		if nodeID == to {
			return path
		}
		visited[nodeID] = true
		for _, childID := range g.Children(nodeID) {
			if visited[childID] {
				continue
			}
			if found := dfs(childID, path, depth+1); found != nil {
				return found
			}
		}
		return nil
	}

	return dfs(from, nil, 0)
}

func formatPath(path []NodeID) string {
	pathStr := make([]string, len(path))
	for i, id := range path {
		pathStr[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(pathStr, " -> ")
}

// DetectCycles uses Depth-First Search (DFS) to find cycles in the graph.
// Returns ErrCycleDetected if any cycle is found.
// Time complexity: O(V + E) where V is vertices and E is edges.
func DetectCycles(g Adjacency) error {
	ids := g.NodeIDs()
	visited := make(map[NodeID]bool, len(ids))
	recStack := make(map[NodeID]bool, len(ids))

	var dfs func(NodeID, []NodeID, int) error
	dfs = func(nodeID NodeID, path []NodeID, depth int) error {
		if depth > MaxDepth {
			return fmt.Errorf("%w: maximum depth %d exceeded", ErrInvalidTopology, MaxDepth)
		}

		visited[nodeID] = true
		recStack[nodeID] = true
		path = append(path, nodeID)

		children := g.Children(nodeID)
		if len(children) > MaxChildrenPerNode {
			return fmt.Errorf("%w: node %d has %d children, exceeds maximum %d",
				ErrInvalidTopology, nodeID, len(children), MaxChildrenPerNode)
		}

		for _, childID := range children {
			if !visited[childID] {
				if err := dfs(childID, path, depth+1); err != nil {
					return err
				}
			} else if recStack[childID] {
				return fmt.Errorf("%w: %s", ErrCycleDetected, formatPath(append(path, childID)))
			}
		}

		recStack[nodeID] = false
		return nil
	}

	// Disconnected components
	for _, nodeID := range ids {
		if !visited[nodeID] {
			if err := dfs(nodeID, nil, 0); err != nil {
				return err
			}
		}
	}

	return nil
}

func insertSorted(slice []NodeID, item NodeID) []NodeID {
	idx := sort.Search(len(slice), func(i int) bool {
		return slice[i] >= item
	})
	return slices.Insert(slice, idx, item)
}

// TopologicalOrder returns a deterministic ordering using Kahn's algorithm.
// Among nodes whose parents are all emitted, the lowest id goes first.
func TopologicalOrder(g Adjacency) ([]NodeID, error) {
	ids := g.NodeIDs()
	inDegree := make(map[NodeID]int, len(ids))
	for _, id := range ids {
		inDegree[id] += 0
		for _, child := range g.Children(id) {
			inDegree[child]++
		}
	}

	queue := make([]NodeID, 0)
	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = insertSorted(queue, id)
		}
	}

	result := make([]NodeID, 0, len(ids))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, child := range g.Children(current) {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = insertSorted(queue, child)
			}
		}
	}

	if len(result) != len(ids) {
		return nil, fmt.Errorf("%w: topological sort failed, %d of %d nodes ordered",
			ErrCycleDetected, len(result), len(ids))
	}

	return result, nil
}
