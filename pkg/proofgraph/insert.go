package proofgraph

import "fmt"

// Insert adds a node with explicit parents, independent of the graph's
// current heads. Unlike Append/AppendSigned (which always chain onto the
// single running head), Insert lets a caller attach a node under any
// already-known parents — the shape the commitment DAG needs, since a
// receipt or decision card may cite multiple causal ancestors (e.g. a
// commitment's declaration node AND its policy-evaluation node).
//
// Insert is idempotent by EventID: inserting the same event twice returns
// the first-inserted node without creating a duplicate or advancing the
// Lamport clock.
func (g *Graph) Insert(n *Node) (*Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n.EventID != "" {
		if existing, ok := g.byEvent[n.EventID]; ok {
			return existing, nil
		}
	}

	for _, p := range n.Parents {
		if _, ok := g.nodes[p]; !ok {
			return nil, fmt.Errorf("proofgraph: parent %s not found", p)
		}
	}

	g.lamport++
	n.Lamport = g.lamport
	n.NodeHash = n.ComputeNodeHash()

	if g.nodes == nil {
		g.nodes = make(map[string]*Node)
	}
	g.nodes[n.NodeHash] = n
	if n.EventID != "" {
		if g.byEvent == nil {
			g.byEvent = make(map[string]*Node)
		}
		g.byEvent[n.EventID] = n
	}
	for _, p := range n.Parents {
		if g.children == nil {
			g.children = make(map[string][]string)
		}
		g.children[p] = append(g.children[p], n.NodeHash)
	}

	g.heads = recomputeHeads(g.nodes, g.children)
	return n, nil
}

// recomputeHeads returns every node with no recorded children: the current
// tips of the DAG.
func recomputeHeads(nodes map[string]*Node, children map[string][]string) []string {
	heads := make([]string, 0)
	for id := range nodes {
		if len(children[id]) == 0 {
			heads = append(heads, id)
		}
	}
	return heads
}

// Restore loads previously persisted nodes verbatim: hashes and Lamport
// positions are trusted as stored, and the children index and heads are
// rebuilt. Used when a process rehydrates the DAG from the provenance/
// layout.
func (g *Graph) Restore(nodes []*Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.nodes == nil {
		g.nodes = make(map[string]*Node)
	}
	if g.byEvent == nil {
		g.byEvent = make(map[string]*Node)
	}
	for _, n := range nodes {
		if n.NodeHash == "" {
			return fmt.Errorf("proofgraph: restore: node without hash")
		}
		if _, ok := g.nodes[n.NodeHash]; ok {
			continue
		}
		g.nodes[n.NodeHash] = n
		if n.EventID != "" {
			g.byEvent[n.EventID] = n
		}
		if n.Lamport > g.lamport {
			g.lamport = n.Lamport
		}
	}
	g.children = make(map[string][]string)
	for _, n := range g.nodes {
		for _, p := range n.Parents {
			g.children[p] = append(g.children[p], n.NodeHash)
		}
	}
	g.heads = recomputeHeads(g.nodes, g.children)
	return nil
}

// ByEvent resolves a node by its event id.
func (g *Graph) ByEvent(eventID string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.byEvent[eventID]
	return n, ok
}

// Children returns the direct children of a node.
func (g *Graph) Children(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.children[id]))
	copy(out, g.children[id])
	return out
}
