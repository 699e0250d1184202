package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mapleaiorg/substrate/pkg/commitment"
)

// FileStore implements Store over a single JSON file under the
// commitments/ directory, for tests and single-node deployments that want
// durability without a database.
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[string]Record
	seq  uint64
}

// NewFileStore loads (or creates) a file-backed store at path.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, data: make(map[string]Record)}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger: load %s: %w", f.path, err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &f.data); err != nil {
		return fmt.Errorf("ledger: parse %s: %w", f.path, err)
	}
	for _, rec := range f.data {
		if rec.Sequence > f.seq {
			f.seq = rec.Sequence
		}
	}
	return nil
}

// flush writes the full map atomically via a temp file rename.
func (f *FileStore) flush() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Create(ctx context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.data[rec.CommitmentID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, rec.CommitmentID)
	}
	if rec.Sequence == 0 {
		f.seq++
		rec.Sequence = f.seq
	} else if rec.Sequence > f.seq {
		f.seq = rec.Sequence
	}
	f.data[rec.CommitmentID] = rec
	return f.flush()
}

func (f *FileStore) Get(ctx context.Context, commitmentID string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.data[commitmentID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *FileStore) UpdateStatus(ctx context.Context, commitmentID string, from, to commitment.Status, outcome string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.data[commitmentID]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != from {
		return fmt.Errorf("%w: commitment %s is not %s", ErrConflict, commitmentID, from)
	}
	rec.Status = to
	if outcome != "" {
		rec.Outcome = outcome
	}
	rec.UpdatedAt = at
	f.data[commitmentID] = rec
	return f.flush()
}

func (f *FileStore) AttachDecision(ctx context.Context, commitmentID string, card json.RawMessage, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.data[commitmentID]
	if !ok {
		return ErrNotFound
	}
	if len(rec.DecisionCard) > 0 {
		return fmt.Errorf("%w: commitment %s already has a decision card", ErrConflict, commitmentID)
	}
	rec.DecisionCard = card
	rec.UpdatedAt = at
	f.data[commitmentID] = rec
	return f.flush()
}

func (f *FileStore) List(ctx context.Context, status commitment.Status, limit int) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for _, rec := range f.data {
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
