package proofgraph

import "fmt"

// Ancestors returns every node reachable by walking Parents edges backward
// from id, not including id itself.
func (g *Graph) Ancestors(id string) ([]*Node, error) {
	return g.AncestorsWithin(id, 0)
}

// AncestorsWithin bounds the ancestor walk to depth generations; depth <= 0
// means unbounded.
func (g *Graph) AncestorsWithin(id string, depth int) ([]*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.walkLocked(id, depth, func(cur string) []string { return g.nodes[cur].Parents })
}

// Descendants returns every node reachable by walking Children edges
// forward from id, not including id itself.
func (g *Graph) Descendants(id string) ([]*Node, error) {
	return g.DescendantsWithin(id, 0)
}

// DescendantsWithin bounds the descendant walk to depth generations;
// depth <= 0 means unbounded.
func (g *Graph) DescendantsWithin(id string, depth int) ([]*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.walkLocked(id, depth, func(cur string) []string { return g.children[cur] })
}

// walkLocked runs a breadth-first traversal from id along next edges,
// stopping after maxDepth generations when maxDepth > 0.
func (g *Graph) walkLocked(id string, maxDepth int, next func(string) []string) ([]*Node, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("proofgraph: node %s not found", id)
	}

	type hop struct {
		id    string
		depth int
	}
	visited := make(map[string]bool)
	queue := []hop{{id: id}}
	var out []*Node
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if maxDepth > 0 && cur.depth >= maxDepth {
			continue
		}
		for _, n := range next(cur.id) {
			if visited[n] {
				continue
			}
			visited[n] = true
			out = append(out, g.nodes[n])
			queue = append(queue, hop{id: n, depth: cur.depth + 1})
		}
	}
	return out, nil
}

// CausalPath returns the shortest sequence of nodes connecting from to to,
// following edges in either direction (parent or child), via BFS. Returns
// an error if no path exists.
func (g *Graph) CausalPath(from, to string) ([]*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[from]; !ok {
		return nil, fmt.Errorf("proofgraph: node %s not found", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return nil, fmt.Errorf("proofgraph: node %s not found", to)
	}
	if from == to {
		return []*Node{g.nodes[from]}, nil
	}

	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			break
		}
		neighbors := append(append([]string{}, g.nodes[cur].Parents...), g.children[cur]...)
		for _, n := range neighbors {
			if _, seen := prev[n]; seen {
				continue
			}
			prev[n] = cur
			queue = append(queue, n)
		}
	}

	if _, reached := prev[to]; !reached {
		return nil, fmt.Errorf("proofgraph: no causal path from %s to %s", from, to)
	}

	var path []string
	for cur := to; cur != ""; cur = prev[cur] {
		path = append([]string{cur}, path...)
		if cur == from {
			break
		}
	}
	out := make([]*Node, len(path))
	for i, id := range path {
		out[i] = g.nodes[id]
	}
	return out, nil
}

// AuditTrail returns every node tagged with the given commitment id, in
// Lamport order, the complete record of a commitment's passage through the
// gate.
func (g *Graph) AuditTrail(commitmentID string) []*Node {
	return g.filterSorted(func(n *Node) bool { return n.CommitmentID == commitmentID })
}

// WorldlineHistory returns every node tagged with the given worldline, in
// Lamport order.
func (g *Graph) WorldlineHistory(worldline string) []*Node {
	return g.filterSorted(func(n *Node) bool { return n.WorldLine == worldline })
}

// RegulatorySlice returns every node decided under the given policy
// reference, in Lamport order — the evidence set an auditor needs to review
// every commitment a specific policy version governed.
func (g *Graph) RegulatorySlice(policyRef string) []*Node {
	return g.filterSorted(func(n *Node) bool { return n.PolicyRef == policyRef })
}

func (g *Graph) filterSorted(pred func(*Node) bool) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Node
	for _, n := range g.nodes {
		if pred(n) {
			out = append(out, n)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Lamport > out[j].Lamport; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// ImpactReport summarizes how far a single event's consequences reached.
type ImpactReport struct {
	TotalDescendants  int            `json:"total_descendants"`
	AffectedWorldLines []string      `json:"affected_worldlines"`
	StageBreakdown    map[string]int `json:"stage_breakdown"`
	MaxDepth          int            `json:"max_depth"`
}

// Impact computes the downstream blast radius of a single node: every
// descendant, grouped by stage class, with the worldlines touched and the
// longest causal depth reached.
func (g *Graph) Impact(eventID string) (*ImpactReport, error) {
	node, err := g.findByEvent(eventID)
	if err != nil {
		return nil, err
	}
	descendants, err := g.Descendants(node.NodeHash)
	if err != nil {
		return nil, err
	}

	worldlines := make(map[string]bool)
	stages := make(map[string]int)
	depth, err := g.maxDepth(node.NodeHash)
	if err != nil {
		return nil, err
	}
	for _, d := range descendants {
		if d.WorldLine != "" {
			worldlines[d.WorldLine] = true
		}
		if d.StageClass != "" {
			stages[d.StageClass]++
		}
	}
	var wls []string
	for w := range worldlines {
		wls = append(wls, w)
	}
	return &ImpactReport{
		TotalDescendants:   len(descendants),
		AffectedWorldLines: wls,
		StageBreakdown:     stages,
		MaxDepth:           depth,
	}, nil
}

// ContagionReport summarizes how a worldline's state has spread to, and
// been influenced by, other worldlines through shared causal structure.
type ContagionReport struct {
	DownstreamWorldLines []string `json:"downstream_worldlines"`
	UpstreamWorldLines   []string `json:"upstream_worldlines"`
	TotalConnections     int      `json:"total_connections"`
	HighestStage         string   `json:"highest_stage"`
}

// Contagion reports which other worldlines are causally upstream or
// downstream of the given worldline's nodes.
func (g *Graph) Contagion(worldline string) (*ContagionReport, error) {
	roots := g.WorldlineHistory(worldline)
	if len(roots) == 0 {
		return nil, fmt.Errorf("proofgraph: no nodes for worldline %s", worldline)
	}

	downstream := make(map[string]bool)
	upstream := make(map[string]bool)
	var highest string
	var highestLamport uint64
	for _, r := range roots {
		desc, err := g.Descendants(r.NodeHash)
		if err != nil {
			return nil, err
		}
		for _, d := range desc {
			if d.WorldLine != "" && d.WorldLine != worldline {
				downstream[d.WorldLine] = true
			}
			if d.Lamport > highestLamport {
				highestLamport = d.Lamport
				highest = d.StageClass
			}
		}
		anc, err := g.Ancestors(r.NodeHash)
		if err != nil {
			return nil, err
		}
		for _, a := range anc {
			if a.WorldLine != "" && a.WorldLine != worldline {
				upstream[a.WorldLine] = true
			}
		}
	}

	var down, up []string
	for w := range downstream {
		down = append(down, w)
	}
	for w := range upstream {
		up = append(up, w)
	}
	return &ContagionReport{
		DownstreamWorldLines: down,
		UpstreamWorldLines:   up,
		TotalConnections:     len(down) + len(up),
		HighestStage:         highest,
	}, nil
}

func (g *Graph) findByEvent(eventID string) (*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.byEvent[eventID]
	if !ok {
		return nil, fmt.Errorf("proofgraph: event %s not found", eventID)
	}
	return n, nil
}

func (g *Graph) maxDepth(id string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[id]; !ok {
		return 0, fmt.Errorf("proofgraph: node %s not found", id)
	}
	var walk func(string, int) int
	walk = func(cur string, depth int) int {
		max := depth
		for _, c := range g.children[cur] {
			if d := walk(c, depth+1); d > max {
				max = d
			}
		}
		return max
	}
	return walk(id, 0), nil
}
