package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mapleaiorg/substrate/pkg/commitment"
)

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewSQLStore(db)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func sampleRecord(id string, seq uint64) Record {
	at := time.Unix(1_700_000_000, 0).UTC()
	return Record{
		CommitmentID: id,
		Sequence:     seq,
		Declaration:  json.RawMessage(`{"declaring_identity":"wl:alpha","scope":{"effect_domain":"communication","targets":null}}`),
		Status:       commitment.StatusDeclared,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// exerciseStore runs the shared Store contract against any implementation.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	at := time.Unix(1_700_000_100, 0).UTC()

	require.NoError(t, s.Create(ctx, sampleRecord("cmt-1", 1)))
	assert.ErrorIs(t, s.Create(ctx, sampleRecord("cmt-1", 2)), ErrDuplicate)

	got, err := s.Get(ctx, "cmt-1")
	require.NoError(t, err)
	assert.Equal(t, commitment.StatusDeclared, got.Status)

	_, err = s.Get(ctx, "cmt-unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	// CAS: transition succeeds from the expected status and conflicts from
	// a stale one.
	require.NoError(t, s.UpdateStatus(ctx, "cmt-1", commitment.StatusDeclared, commitment.StatusApproved, "", at))
	err = s.UpdateStatus(ctx, "cmt-1", commitment.StatusDeclared, commitment.StatusDenied, "", at)
	assert.ErrorIs(t, err, ErrConflict)

	// Decision card attaches exactly once.
	card := json.RawMessage(`{"decision":"APPROVE","version":"1.0.0"}`)
	require.NoError(t, s.AttachDecision(ctx, "cmt-1", card, at))
	assert.ErrorIs(t, s.AttachDecision(ctx, "cmt-1", card, at), ErrConflict)

	got, err = s.Get(ctx, "cmt-1")
	require.NoError(t, err)
	assert.JSONEq(t, string(card), string(got.DecisionCard))

	require.NoError(t, s.Create(ctx, sampleRecord("cmt-2", 2)))
	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "cmt-1", all[0].CommitmentID)

	declared, err := s.List(ctx, commitment.StatusDeclared, 0)
	require.NoError(t, err)
	require.Len(t, declared, 1)
	assert.Equal(t, "cmt-2", declared[0].CommitmentID)
}

func TestSQLStoreContract(t *testing.T) {
	exerciseStore(t, openSQLite(t))
}

func TestFileStoreContract(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "commitments", "ledger.json"))
	require.NoError(t, err)
	exerciseStore(t, fs)
}

func TestFileStoreReloadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	fs, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, fs.Create(context.Background(), sampleRecord("cmt-1", 1)))

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	got, err := reloaded.Get(context.Background(), "cmt-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Sequence)
}
