package proofgraph

import (
	"fmt"
	"time"

	"github.com/mapleaiorg/substrate/pkg/merkle"
)

// Checkpoint is a compaction boundary: a Merkle-rooted summary of every node
// present at the time it was taken, preserved so Compact can discard
// interior nodes without losing the ability to prove what they summed to.
type Checkpoint struct {
	CheckpointID    string    `json:"checkpoint_id"`
	TakenAt         time.Time `json:"taken_at"`
	Anchor          uint64    `json:"anchor_lamport"`
	RootHash        string    `json:"root_hash"`
	BoundaryIDs     []string  `json:"boundary_node_ids"`
	CompressedCount int       `json:"compressed_count,omitempty"`
}

// Checkpoint builds a Merkle-rooted summary of the graph at the current
// Lamport clock. BoundaryIDs are the current heads: the nodes a future
// Compact call must never delete, since they're the only attachment points
// left for anything appended after the checkpoint.
func (g *Graph) Checkpoint(id string, at time.Time) (*Checkpoint, error) {
	g.mu.RLock()
	heads := append([]string{}, g.heads...)
	anchor := g.lamport
	g.mu.RUnlock()

	b := merkle.NewMerkleBuilder()
	for i, h := range heads {
		b.AddLeafBytes(fmt.Sprintf("head[%d]", i), []byte(h), true)
	}
	tree, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("proofgraph: checkpoint build failed: %w", err)
	}

	return &Checkpoint{
		CheckpointID: id,
		TakenAt:      at,
		Anchor:       anchor,
		RootHash:     tree.RootHex(),
		BoundaryIDs:  heads,
	}, nil
}

// Compact discards every node with Lamport strictly before the checkpoint's
// anchor that is not itself a boundary node and not an ancestor of a
// boundary node — i.e. anything whose causal information is already fully
// summarized by the checkpoint's root hash. Nodes referenced by
// CheckpointRef from a later node are always preserved regardless of
// Lamport, since deleting them would break that later node's provenance
// trail.
func (g *Graph) Compact(cp *Checkpoint) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	keep := make(map[string]bool)
	for _, id := range cp.BoundaryIDs {
		g.markAncestorsLocked(id, keep)
		keep[id] = true
	}
	for _, n := range g.nodes {
		if n.CheckpointRef == cp.CheckpointID {
			g.markAncestorsLocked(n.NodeHash, keep)
			keep[n.NodeHash] = true
		}
		if n.Lamport >= cp.Anchor {
			keep[n.NodeHash] = true
		}
	}

	removed := 0
	for id, n := range g.nodes {
		if keep[id] {
			continue
		}
		delete(g.nodes, id)
		delete(g.children, id)
		if n.EventID != "" {
			delete(g.byEvent, n.EventID)
		}
		removed++
	}
	return removed, nil
}

// CompactBefore discards interior nodes whose wall-clock timestamp falls
// strictly before beforeUnixMs, except boundary nodes: nodes with at least
// one child at or after the cutoff, or named by the checkpoint. The
// compacted region is replaced by a single checkpoint node that inherits
// the region's severed edges, so any causal path that previously crossed
// the region still exists — routed through the checkpoint.
func (g *Graph) CompactBefore(cp *Checkpoint, beforeUnixMs int64) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	keep := make(map[string]bool)
	for _, id := range cp.BoundaryIDs {
		keep[id] = true
	}
	for _, n := range g.nodes {
		if n.Timestamp >= beforeUnixMs {
			keep[n.NodeHash] = true
			continue
		}
		// A node with a surviving child is a boundary node.
		for _, c := range g.children[n.NodeHash] {
			if child, ok := g.nodes[c]; ok && child.Timestamp >= beforeUnixMs {
				keep[n.NodeHash] = true
				break
			}
		}
	}

	// Severed edges: kept nodes that lose a parent descend from the
	// checkpoint; kept nodes that lose a child become its parents.
	lostParent := make(map[string]bool)
	lostChild := make(map[string]bool)
	removed := 0
	for id, n := range g.nodes {
		if keep[id] {
			continue
		}
		for _, p := range n.Parents {
			if keep[p] {
				lostChild[p] = true
			}
		}
		for _, c := range g.children[id] {
			if keep[c] {
				lostParent[c] = true
			}
		}
		delete(g.nodes, id)
		delete(g.children, id)
		if n.EventID != "" {
			delete(g.byEvent, n.EventID)
		}
		removed++
	}

	if removed > 0 {
		g.lamport++
		ckptNode := &Node{
			Kind:          NodeTypeCheckpoint,
			Payload:       []byte(fmt.Sprintf(`{"compressed_count":%d,"root_hash":%q}`, removed, cp.RootHash)),
			Lamport:       g.lamport,
			Principal:     "compactor",
			Timestamp:     beforeUnixMs,
			EventID:       "ckpt:" + cp.CheckpointID,
			CheckpointRef: cp.CheckpointID,
		}
		for id := range lostChild {
			if !lostParent[id] {
				ckptNode.Parents = append(ckptNode.Parents, id)
			}
		}
		ckptNode.NodeHash = ckptNode.ComputeNodeHash()
		g.nodes[ckptNode.NodeHash] = ckptNode
		g.byEvent[ckptNode.EventID] = ckptNode

		for id := range lostParent {
			n := g.nodes[id]
			n.Parents = prunedParents(n.Parents, g.nodes)
			n.Parents = append(n.Parents, ckptNode.NodeHash)
			n.CheckpointRef = cp.CheckpointID
		}
	}
	// Drop any remaining dangling parent references.
	for _, n := range g.nodes {
		n.Parents = prunedParents(n.Parents, g.nodes)
	}

	g.children = make(map[string][]string)
	for _, n := range g.nodes {
		for _, p := range n.Parents {
			g.children[p] = append(g.children[p], n.NodeHash)
		}
	}
	g.heads = recomputeHeads(g.nodes, g.children)
	cp.CompressedCount = removed
	return removed, nil
}

func prunedParents(parents []string, nodes map[string]*Node) []string {
	kept := parents[:0]
	for _, p := range parents {
		if _, ok := nodes[p]; ok {
			kept = append(kept, p)
		}
	}
	return kept
}

func (g *Graph) markAncestorsLocked(id string, keep map[string]bool) {
	node, ok := g.nodes[id]
	if !ok {
		return
	}
	for _, p := range node.Parents {
		if keep[p] {
			continue
		}
		keep[p] = true
		g.markAncestorsLocked(p, keep)
	}
}
