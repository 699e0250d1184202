// Package proofgraph implements the causal provenance DAG: every kernel
// event (a commitment's declaration, the gate's decision, the executor's
// effect, the observed consequence) is a content-addressed node linked to
// its causal parents, with CHECKPOINT nodes marking compaction boundaries.
package proofgraph

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// NodeType enumerates the types of nodes in the ProofGraph.
type NodeType string

const (
	NodeTypeDeclaration NodeType = "DECLARATION"
	NodeTypeDecision    NodeType = "DECISION"
	NodeTypeEffect      NodeType = "EFFECT"
	NodeTypeConsequence NodeType = "CONSEQUENCE"
	NodeTypeTrustEvent  NodeType = "TRUST_EVENT"
	NodeTypeCheckpoint  NodeType = "CHECKPOINT"
)

// Node is a single vertex in the provenance DAG.
//
// The WorldLine/CommitmentID/PolicyRef/CheckpointRef/StageClass fields
// support the provenance queries (worldline history, regulatory slice,
// audit trail, impact/contagion) layered on top of the base DAG: they let a
// query filter or group nodes without deserializing Payload.
type Node struct {
	NodeHash      string          `json:"node_hash"`
	Kind          NodeType        `json:"kind"`
	Parents       []string        `json:"parents"`
	Lamport       uint64          `json:"lamport"`
	Principal     string          `json:"principal"`
	PrincipalSeq  uint64          `json:"principal_seq"`
	Payload       json.RawMessage `json:"payload"`
	Sig           string          `json:"sig"`
	Timestamp     int64           `json:"ts_unix_ms,omitempty"`
	EventID       string          `json:"event_id,omitempty"`
	WorldLine     string          `json:"worldline,omitempty"`
	CommitmentID  string          `json:"commitment_id,omitempty"`
	PolicyRef     string          `json:"policy_ref,omitempty"`
	CheckpointRef string          `json:"checkpoint_ref,omitempty"`
	StageClass    string          `json:"stage_class,omitempty"`
}

// ComputeNodeHash computes the deterministic hash of the node (excluding NodeHash itself):
// compact JSON without node_hash, then SHA-256. Keys appear in struct field
// order rather than the sorted order of RFC 8785.
func (n *Node) ComputeNodeHash() string {
	// Create a temporary structure for hashing that excludes NodeHash
	type NodeJCS struct {
		Kind          NodeType        `json:"kind"`
		Parents       []string        `json:"parents"`
		Lamport       uint64          `json:"lamport"`
		Principal     string          `json:"principal"`
		PrincipalSeq  uint64          `json:"principal_seq"`
		Payload       json.RawMessage `json:"payload"`
		Sig           string          `json:"sig"`
		Timestamp     int64           `json:"ts_unix_ms,omitempty"`
		EventID       string          `json:"event_id,omitempty"`
		WorldLine     string          `json:"worldline,omitempty"`
		CommitmentID  string          `json:"commitment_id,omitempty"`
		PolicyRef     string          `json:"policy_ref,omitempty"`
		CheckpointRef string          `json:"checkpoint_ref,omitempty"`
		StageClass    string          `json:"stage_class,omitempty"`
	}

	temp := NodeJCS{
		Kind:          n.Kind,
		Parents:       n.Parents,
		Lamport:       n.Lamport,
		Principal:     n.Principal,
		PrincipalSeq:  n.PrincipalSeq,
		Payload:       n.Payload,
		Sig:           n.Sig,
		Timestamp:     n.Timestamp,
		EventID:       n.EventID,
		WorldLine:     n.WorldLine,
		CommitmentID:  n.CommitmentID,
		PolicyRef:     n.PolicyRef,
		CheckpointRef: n.CheckpointRef,
		StageClass:    n.StageClass,
	}

	// Marshaling must be stable: encoding/json emits struct fields in
	// declaration order with no whitespace, so the key order is fixed by
	// NodeJCS. HTML escaping is disabled so <, > and & hash as themselves.

	// Create a new encoder
	var buf []byte
	buffer := bytes.NewBuffer(buf)
	enc := json.NewEncoder(buffer)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(temp); err != nil {
		// Should not happen for struct
		return ""
	}

	// Encoder adds a newline at the end, JCS implies minimal?
	// RFC 8785 doesn't explicitly mention trailing newline, but usually "canonical bytes" means EXACT bytes.
	// We'll trim the trailing newline if Encode adds it.
	data := bytes.TrimSpace(buffer.Bytes())

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Validate checks the node hash integrity.
func (n *Node) Validate() error {
	expected := n.ComputeNodeHash()
	if n.NodeHash != expected {
		return fmt.Errorf("node hash mismatch: got %s, want %s", n.NodeHash, expected)
	}
	return nil
}

// NewNode creates a properly initialized node.
func NewNode(kind NodeType, parents []string, payload []byte, lamport uint64, principal string, principalSeq uint64) *Node {
	n := &Node{
		Kind:         kind,
		Parents:      parents,
		Payload:      json.RawMessage(payload),
		Lamport:      lamport,
		Principal:    principal,
		PrincipalSeq: principalSeq,
		Timestamp:    time.Now().UnixMilli(),
	}
	n.NodeHash = n.ComputeNodeHash()
	return n
}

// EncodePayload is a helper to JSON-marshal a payload for node creation.
func EncodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}
