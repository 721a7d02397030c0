package scheduler

import "fmt"

// WPSpec is a work package's static scheduling input: its id and its
// declared dependency set, as read from its frontmatter.
type WPSpec struct {
	ID           string
	Dependencies []string
}

// Graph is the finalized dependency graph over a feature's work packages.
// BuildGraph rejects cyclic or dangling-reference graphs at construction,
// mirroring the teacher's config.detectCycles check on concern watch
// chains, generalized from a linear watch-chain to an arbitrary DAG.
type Graph struct {
	nodes map[string]WPSpec
}

// BuildGraph validates that every dependency refers to a WP present in
// specs and that the graph is acyclic, per spec §4.D finalization.
func BuildGraph(specs []WPSpec) (*Graph, error) {
	nodes := make(map[string]WPSpec, len(specs))
	for _, s := range specs {
		nodes[s.ID] = s
	}
	for _, s := range specs {
		for _, dep := range s.Dependencies {
			if _, ok := nodes[dep]; !ok {
				return nil, fmt.Errorf("work package %s declares non-existent dependency %s", s.ID, dep)
			}
		}
	}
	if cyc := findCycle(nodes); cyc != nil {
		return nil, fmt.Errorf("dependency cycle detected: %v", cyc)
	}
	return &Graph{nodes: nodes}, nil
}

func findCycle(nodes map[string]WPSpec) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodes))
	var path []string
	var cyclePath []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		for _, dep := range nodes[id].Dependencies {
			switch color[dep] {
			case gray:
				cyclePath = append(append([]string{}, path...), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for id := range nodes {
		if color[id] == white {
			if visit(id) {
				return cyclePath
			}
		}
	}
	return nil
}

// IDs returns every work package id in the graph.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	return ids
}

// Dependencies returns the declared dependency set for id.
func (g *Graph) Dependencies(id string) []string {
	return g.nodes[id].Dependencies
}
