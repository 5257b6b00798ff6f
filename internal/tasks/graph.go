package tasks

import (
	"fmt"
	"slices"

	"github.com/desertthunder/xlsync/internal/shared"
)

// waves orders nodes with Kahn's algorithm, one wave per round.
//
// Ties are broken by registration order so the same graph always plans the same way.
func waves(nodes []*node, byName map[string]*node) ([][]string, error) {
	for _, n := range nodes {
		for _, dep := range n.deps {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("%w: task %q depends on unknown task %q", shared.ErrInvalidConfig, n.name, dep)
			}
		}
	}

	indeg := make(map[string]int, len(nodes))
	dependents := make(map[string][]*node, len(nodes))
	for _, n := range nodes {
		indeg[n.name] = len(n.deps)
		for _, dep := range n.deps {
			dependents[dep] = append(dependents[dep], n)
		}
	}

	var ready []*node
	for _, n := range nodes {
		if indeg[n.name] == 0 {
			ready = append(ready, n)
		}
	}

	var out [][]string
	placed := 0
	for len(ready) > 0 {
		wave := make([]string, 0, len(ready))
		var next []*node
		for _, n := range ready {
			wave = append(wave, n.name)
			for _, d := range dependents[n.name] {
				indeg[d.name]--
				if indeg[d.name] == 0 {
					next = append(next, d)
				}
			}
		}
		slices.SortFunc(next, func(a, b *node) int { return a.position - b.position })

		out = append(out, wave)
		placed += len(wave)
		ready = next
	}

	if placed != len(nodes) {
		return nil, &CycleError{Path: findCycle(nodes, byName)}
	}
	return out, nil
}

// findCycle walks dependency edges depth-first and returns the first cycle it closes.
func findCycle(nodes []*node, byName map[string]*node) []string {
	const (
		unvisited = iota
		visiting
		visited
	)

	state := make(map[string]int, len(nodes))
	var stack []string
	var cycle []string

	var visit func(n *node) bool
	visit = func(n *node) bool {
		state[n.name] = visiting
		stack = append(stack, n.name)
		for _, dep := range n.deps {
			switch state[dep] {
			case unvisited:
				if visit(byName[dep]) {
					return true
				}
			case visiting:
				start := slices.Index(stack, dep)
				cycle = append(append([]string(nil), stack[start:]...), dep)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		state[n.name] = visited
		return false
	}

	for _, n := range nodes {
		if state[n.name] == unvisited && visit(n) {
			break
		}
	}
	return cycle
}
