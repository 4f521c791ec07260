package deps

import "sort"

// Node is one package in a resolved dependency graph.
type Node struct {
	Name     string
	Version  string
	License  string
	Children []string // node IDs
}

// Graph is a resolved dependency graph. Node IDs are fetcher-specific
// (install location, name@version, normalized name).
type Graph struct {
	Nodes map[string]*Node
	Roots []string // node IDs of the direct dependencies
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

// Add inserts or replaces the node with id.
func (g *Graph) Add(id string, n *Node) { g.Nodes[id] = n }

// Dependencies walks the graph breadth-first from the roots and returns
// every reachable node once, with the shortest chain that reaches it.
// Unknown IDs are skipped.
func (g *Graph) Dependencies() []Dependency {
	type item struct {
		id   string
		path []string
	}
	roots := append([]string(nil), g.Roots...)
	sort.Strings(roots)

	seen := make(map[string]bool, len(g.Nodes))
	var queue []item
	for _, id := range roots {
		if _, ok := g.Nodes[id]; ok && !seen[id] {
			seen[id] = true
			queue = append(queue, item{id: id})
		}
	}

	var out []Dependency
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := g.Nodes[cur.id]
		path := append(append([]string(nil), cur.path...), n.Name)
		out = append(out, Dependency{
			Name:    n.Name,
			Version: n.Version,
			License: n.License,
			Path:    JoinPath(path...),
			Direct:  len(cur.path) == 0,
		})

		children := append([]string(nil), n.Children...)
		sort.Strings(children)
		for _, c := range children {
			if _, ok := g.Nodes[c]; ok && !seen[c] {
				seen[c] = true
				queue = append(queue, item{id: c, path: path})
			}
		}
	}
	return out
}
