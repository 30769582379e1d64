package graph

import (
	"fmt"
	"sort"
	"strings"
)

// DOT renders the graph in Graphviz DOT format for external tooling. Lazy
// edges render dashed. Node labels come from the label function, which
// also controls grouping: nodes mapping to the same label collapse.
func (g *Graph[K]) DOT(name string, label func(K) string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", name)
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, fontsize=10];\n\n")

	ids := make(map[K]string, len(g.nodes))
	for i, key := range g.order {
		id := fmt.Sprintf("n%d", i)
		ids[key] = id
		fmt.Fprintf(&b, "  %s [label=%q];\n", id, label(key))
	}
	b.WriteString("\n")

	// Deterministic edge output: follow insertion order of source nodes.
	for _, from := range g.order {
		edges := append([]Edge[K](nil), g.edges[from]...)
		sort.SliceStable(edges, func(i, j int) bool {
			return ids[edges[i].To] < ids[edges[j].To]
		})
		for _, e := range edges {
			if e.Lazy {
				fmt.Fprintf(&b, "  %s -> %s [style=dashed, label=\"lazy\"];\n", ids[from], ids[e.To])
			} else {
				fmt.Fprintf(&b, "  %s -> %s;\n", ids[from], ids[e.To])
			}
		}
	}

	b.WriteString("}\n")
	return b.String()
}
