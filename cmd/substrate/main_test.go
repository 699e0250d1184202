package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/proofgraph"
	"github.com/mapleaiorg/substrate/pkg/store"
	storeledger "github.com/mapleaiorg/substrate/pkg/store/ledger"
)

func run(t *testing.T, stateDir string, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("STATE_DIR", stateDir)
	t.Setenv("DATABASE_URL", "")
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"substrate"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, _, stderr := run(t, t.TempDir())
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage")

	code, _, stderr = run(t, t.TempDir(), "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestInspectCommitment(t *testing.T) {
	stateDir := t.TempDir()
	fs, err := storeledger.NewFileStore(filepath.Join(stateDir, "commitments", "ledger.json"))
	require.NoError(t, err)
	at := time.Unix(1_700_000_000, 0).UTC()
	require.NoError(t, fs.Create(context.Background(), storeledger.Record{
		CommitmentID: "cmt-1",
		Declaration:  json.RawMessage(`{"declaring_identity":"wl:alpha"}`),
		DecisionCard: json.RawMessage(`{"decision":"APPROVE"}`),
		Status:       commitment.StatusApproved,
		CreatedAt:    at,
		UpdatedAt:    at,
	}))

	code, stdout, _ := run(t, stateDir, "inspect", "commitment", "cmt-1")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, `"wl:alpha"`)
	assert.Contains(t, stdout, `"APPROVE"`)

	code, _, stderr := run(t, stateDir, "inspect", "commitment", "cmt-none")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "cmt-none")
}

func TestAuditVerify(t *testing.T) {
	stateDir := t.TempDir()

	// Empty chain verifies trivially.
	code, stdout, _ := run(t, stateDir, "audit", "verify")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "intact")

	// A real chain verifies; a tampered one fails with its sequence.
	s := store.NewAuditStore()
	for _, action := range []string{"declared", "decision_attached", "transition"} {
		_, err := s.Append(store.EntryTypeAudit, "cmt-1", action, nil, nil)
		require.NoError(t, err)
	}
	chainPath := filepath.Join(stateDir, "audit", "chain.json")
	require.NoError(t, s.SaveTo(chainPath))

	code, stdout, _ = run(t, stateDir, "audit", "verify")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "3 entries")

	tampered := s.Query(store.QueryFilter{StartSeq: 2, EndSeq: 2})
	require.Len(t, tampered, 1)
	tampered[0].Action = "transition_forged"
	require.NoError(t, s.SaveTo(chainPath))

	code, _, stderr := run(t, stateDir, "audit", "verify")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "sequence 2")
}

func TestProvenancePathAndCompact(t *testing.T) {
	stateDir := t.TempDir()

	g := proofgraph.NewGraph()
	decl, err := g.Insert(&proofgraph.Node{
		Kind: proofgraph.NodeTypeDeclaration, Payload: []byte(`{}`),
		Principal: "wl:alpha", EventID: "decl:cmt-1", Timestamp: 1_000,
	})
	require.NoError(t, err)
	_, err = g.Insert(&proofgraph.Node{
		Kind: proofgraph.NodeTypeDecision, Parents: []string{decl.NodeHash},
		Payload: []byte(`{}`), Principal: "gate", EventID: "decide:cmt-1", Timestamp: 2_000,
	})
	require.NoError(t, err)
	require.NoError(t, saveGraphForTest(t, g, stateDir))

	code, stdout, _ := run(t, stateDir, "provenance", "path", "decl:cmt-1", "decide:cmt-1")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "decl:cmt-1")
	assert.Contains(t, stdout, "decide:cmt-1")

	code, stdout, _ = run(t, stateDir, "provenance", "path", "decl:cmt-1", "decl:missing")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "no path")

	// Compaction before a future anchor runs and reports a checkpoint.
	code, stdout, _ = run(t, stateDir, "provenance", "compact", "--before", "1500:0:node-0")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "checkpoint")
}

func saveGraphForTest(t *testing.T, g *proofgraph.Graph, stateDir string) error {
	t.Helper()
	return saveGraph(g, filepath.Join(stateDir, "provenance", "nodes.json"))
}
