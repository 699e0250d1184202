package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// JournalType names one of the substrate's side journals: hash-chained
// streams for events that matter to reviewers but are not commitment
// lifecycle records (those live in the CommitmentLedger's audit store).
type JournalType string

const (
	// JournalEscalation records human-judgment escalation outcomes.
	JournalEscalation JournalType = "ESCALATION"
	// JournalAdmission records router quarantine and backpressure events.
	JournalAdmission JournalType = "ADMISSION"
	// JournalObservation records evidence ingestion.
	JournalObservation JournalType = "OBSERVATION"
	// JournalOperations records operator-plane actions.
	JournalOperations JournalType = "OPERATIONS"
)

// JournalEntry is an immutable, hash-chained entry.
type JournalEntry struct {
	Sequence    uint64                 `json:"sequence"`
	EntryType   string                 `json:"entry_type"`
	ContentHash string                 `json:"content_hash"`
	PrevHash    string                 `json:"prev_hash"`
	Timestamp   time.Time              `json:"timestamp"`
	Author      string                 `json:"author,omitempty"`
	Data        map[string]interface{} `json:"data"`
}

// Journal is an append-only, hash-chained side stream.
type Journal struct {
	mu          sync.RWMutex
	journalType JournalType
	entries     []JournalEntry
	headHash    string
	clock       func() time.Time
}

// NewJournal creates an empty journal of the given type.
func NewJournal(jt JournalType) *Journal {
	return &Journal{
		journalType: jt,
		entries:     make([]JournalEntry, 0),
		headHash:    "genesis",
		clock:       time.Now,
	}
}

// WithClock overrides clock for testing.
func (j *Journal) WithClock(clock func() time.Time) *Journal {
	j.clock = clock
	return j
}

// Append adds an entry to the journal. Returns the sequence number.
func (j *Journal) Append(entryType, author string, data map[string]interface{}) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	seq := uint64(len(j.entries)) + 1

	contentHash, err := entryHash(seq, entryType, data, j.headHash)
	if err != nil {
		return 0, err
	}

	entry := JournalEntry{
		Sequence:    seq,
		EntryType:   entryType,
		ContentHash: contentHash,
		PrevHash:    j.headHash,
		Timestamp:   j.clock(),
		Author:      author,
		Data:        data,
	}

	j.entries = append(j.entries, entry)
	j.headHash = contentHash

	return seq, nil
}

func entryHash(seq uint64, entryType string, data map[string]interface{}, prevHash string) (string, error) {
	hashInput := struct {
		Seq      uint64                 `json:"seq"`
		Type     string                 `json:"type"`
		Data     map[string]interface{} `json:"data"`
		PrevHash string                 `json:"prev"`
	}{seq, entryType, data, prevHash}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}
	h := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// Get retrieves an entry by sequence number.
func (j *Journal) Get(seq uint64) (*JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if seq == 0 || seq > uint64(len(j.entries)) {
		return nil, fmt.Errorf("entry %d not found", seq)
	}
	entry := j.entries[seq-1]
	return &entry, nil
}

// Head returns the current head hash.
func (j *Journal) Head() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.headHash
}

// Length returns the number of entries.
func (j *Journal) Length() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Entries returns a copy of the full stream.
func (j *Journal) Entries() []JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Verify checks the integrity of the entire journal chain.
func (j *Journal) Verify() (bool, string) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	prevHash := "genesis"
	for i, entry := range j.entries {
		if entry.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prevHash, entry.PrevHash)
		}
		computed, err := entryHash(entry.Sequence, entry.EntryType, entry.Data, entry.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("failed to marshal entry %d", i+1)
		}
		if computed != entry.ContentHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prevHash = entry.ContentHash
	}

	return true, "chain verified"
}

// Type returns the journal type.
func (j *Journal) Type() JournalType {
	return j.journalType
}
