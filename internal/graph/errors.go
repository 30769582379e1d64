package graph

import (
	"fmt"
	"strings"
)

// CycleError reports a cycle through non-lazy edges.
type CycleError[K comparable] struct {
	Node K
	Path []K
}

func (e *CycleError[K]) Error() string {
	var b strings.Builder
	b.WriteString("circular dependency detected:\n")

	if len(e.Path) == 0 {
		fmt.Fprintf(&b, "    %v -> %v\n", e.Node, e.Node)
		return b.String()
	}

	for _, n := range e.Path {
		fmt.Fprintf(&b, "    %v\n      ↓\n", n)
	}
	fmt.Fprintf(&b, "    %v (cycle)\n", e.Path[0])
	return b.String()
}
