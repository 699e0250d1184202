package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mapleaiorg/substrate/pkg/crypto"
)

// Snapshot is the durable form of a WorldLine: its genesis hash and full
// continuity chain, addressable by genesis hash under the identities/
// layout.
type Snapshot struct {
	Genesis string            `json:"genesis"`
	ID      string            `json:"id"`
	Chain   []ContinuityEntry `json:"chain"`
}

// SnapshotStore persists WorldLine snapshots as JSON files keyed by
// genesis hash.
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore creates the identities directory if needed.
func NewSnapshotStore(dir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("identity: snapshot dir: %w", err)
	}
	return &SnapshotStore{dir: dir}, nil
}

func (s *SnapshotStore) path(genesis string) string {
	return filepath.Join(s.dir, genesis+".json")
}

// Save writes a WorldLine's current chain. Unlike most of the substrate's
// stores this overwrites: the chain only ever grows, and Load verifies it,
// so a shorter forged snapshot cannot silently replace real history
// without breaking verification against the expected head elsewhere.
func (s *SnapshotStore) Save(w *WorldLine) error {
	snap := Snapshot{Genesis: w.Genesis(), ID: w.ID(), Chain: w.Chain()}
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path(snap.Genesis) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(snap.Genesis))
}

// Load restores a WorldLine by genesis hash, verifying the chain before
// returning it.
func (s *SnapshotStore) Load(genesis string, signer crypto.Signer) (*WorldLine, error) {
	raw, err := os.ReadFile(s.path(genesis))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("identity: no snapshot for genesis %s", genesis)
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("identity: parse snapshot %s: %w", genesis, err)
	}
	return FromChain(snap.Genesis, snap.Chain, signer)
}

// FromChain reconstructs a WorldLine from a stored continuity chain,
// verifying integrity first.
func FromChain(genesis string, chain []ContinuityEntry, signer crypto.Signer) (*WorldLine, error) {
	if err := VerifyChain(chain); err != nil {
		return nil, err
	}
	if chain[0].StateHash != genesis {
		return nil, fmt.Errorf("identity: chain does not begin at genesis %s", genesis)
	}
	return &WorldLine{
		id:      "wl:" + genesis,
		genesis: genesis,
		signer:  signer,
		chain:   append([]ContinuityEntry{}, chain...),
	}, nil
}
