package hooks

// Graph holds nodes and their parent→children adjacency list.
// It is immutable once built; a reload builds a new Graph and the engine swaps it atomically.
type Graph struct {
	nodes    map[string]Node
	children map[string][]Node
	roots    []*HookNode
}

func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]Node),
		children: make(map[string][]Node),
	}
}

// AddNode registers a node by its ID. Hook nodes become roots.
func (g *Graph) AddNode(n Node) {
	g.nodes[n.ID()] = n
	if hn, ok := n.(*HookNode); ok {
		g.roots = append(g.roots, hn)
	}
}

func (g *Graph) AddEdge(parentID string, child Node) {
	g.children[parentID] = append(g.children[parentID], child)
}

// Node returns a node by ID (nil if not found).
func (g *Graph) Node(id string) Node { return g.nodes[id] }

func (g *Graph) Children(id string) []Node { return g.children[id] }

func (g *Graph) Roots() []*HookNode { return g.roots }

func (g *Graph) NodeCount() int { return len(g.nodes) }
