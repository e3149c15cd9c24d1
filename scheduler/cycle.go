// Package scheduler implements the Compile Scheduler (C8) and the Cycle
// Detector/Reporter (C9).
//
// The cycle detector is grounded line-for-line on
// _examples/original_source/src/build/compile/dependency_cycle.rs: a
// BFS from every remaining node recording (distance, parent), back-chain
// reconstruction on re-hitting the start node, the globally-shortest
// cycle kept across all starts, and the reversed/closed/arrow-joined
// rendering.
package scheduler

import (
	"strings"

	"github.com/rescript-lang/rewatch/buildstate"
)

// FindCycle runs find_shortest_cycle over the given modules, returning
// nil if no cycle exists.
func FindCycle(modules map[string]*buildstate.Module) []string {
	graph := map[string][]string{}
	for name, m := range modules {
		deps := make([]string, 0, len(m.Deps))
		for d := range m.Deps {
			deps = append(deps, d)
		}
		graph[name] = deps
	}

	var shortest []string
	for start := range graph {
		cycle := findCycleBFS(start, graph)
		if cycle == nil {
			continue
		}
		if shortest == nil || len(cycle) < len(shortest) {
			shortest = cycle
		}
	}
	return shortest
}

type visit struct {
	distance int
	parent   string
}

func findCycleBFS(start string, graph map[string][]string) []string {
	visited := map[string]visit{start: {distance: 0}}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, neighbor := range graph[current] {
			if neighbor == start {
				path := []string{start}
				curr := current
				for curr != start {
					path = append(path, curr)
					curr = visited[curr].parent
				}
				return path
			}
			if _, seen := visited[neighbor]; !seen {
				visited[neighbor] = visit{distance: visited[current].distance + 1, parent: current}
				queue = append(queue, neighbor)
			}
		}
	}
	return nil
}

// FormatCycle reverses the discovered cycle, closes the loop by
// appending the first module again, and joins with " → " after
// rendering each name through nameFn (the namespace-aware module name
// printer).
func FormatCycle(cycle []string, nameFn func(string) string) string {
	reversed := make([]string, len(cycle))
	for i, name := range cycle {
		reversed[len(cycle)-1-i] = name
	}
	if len(reversed) > 0 {
		reversed = append(reversed, reversed[0])
	}

	rendered := make([]string, len(reversed))
	for i, name := range reversed {
		if nameFn != nil {
			rendered[i] = nameFn(name)
		} else {
			rendered[i] = name
		}
	}
	return strings.Join(rendered, " → ")
}
