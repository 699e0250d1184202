// Package store implements the append-only integrity stores backing the
// commitment ledger: the hash-chained audit log and the receipt store.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/mapleaiorg/substrate/pkg/crypto"
)

var (
	ErrEntryNotFound    = errors.New("entry not found")
	ErrChainBroken      = errors.New("hash chain is broken")
	ErrMutationAttempt  = errors.New("mutation of existing entry attempted")
	ErrInvalidEntryType = errors.New("invalid entry type")
)

// genesisHash seeds the chain before any entry exists.
const genesisHash = "genesis"

// EntryType categorizes audit entries by the kernel action they record.
type EntryType string

const (
	EntryTypeDeclaration EntryType = "declaration"
	EntryTypeDecision    EntryType = "decision"
	EntryTypeTransition  EntryType = "transition"
	EntryTypeReceipt     EntryType = "receipt"
	EntryTypeViolation   EntryType = "violation"
	EntryTypeEvidence    EntryType = "evidence"
	EntryTypeAdmission   EntryType = "admission"
	EntryTypeAudit       EntryType = "audit"
)

// AuditEntry is a single immutable entry in the audit chain. EntryHash is
// BLAKE2b over the JCS-canonical serialization of the entry with the hash
// blanked (the payload represented by its PayloadHash), concatenated with
// the previous entry's hash — so any mutation of a hashed field of any
// earlier entry is detectable from the chain head.
type AuditEntry struct {
	EntryID      string            `json:"entry_id"`
	Sequence     uint64            `json:"sequence"`
	Timestamp    time.Time         `json:"timestamp"`
	EntryType    EntryType         `json:"entry_type"`
	Subject      string            `json:"subject"`
	Action       string            `json:"action"`
	Payload      json.RawMessage   `json:"payload"`
	PayloadHash  string            `json:"payload_hash"`
	PreviousHash string            `json:"previous_hash"`
	EntryHash    string            `json:"entry_hash"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// AuditStore is an append-only audit log with hash chaining. Appends are
// linearized under a single writer lock, so every entry's sequence is
// monotonic and unique.
type AuditStore struct {
	mu          sync.RWMutex
	entries     []*AuditEntry
	entryByID   map[string]*AuditEntry
	entryByHash map[string]*AuditEntry
	sequence    uint64
	chainHead   string
	handlers    []EntryHandler
	clock       func() time.Time
}

// EntryHandler is called when new entries are appended.
type EntryHandler func(entry *AuditEntry)

// NewAuditStore creates a new append-only audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{
		entries:     make([]*AuditEntry, 0),
		entryByID:   make(map[string]*AuditEntry),
		entryByHash: make(map[string]*AuditEntry),
		chainHead:   genesisHash,
		clock:       time.Now,
	}
}

// WithClock overrides the store's clock for deterministic tests.
func (s *AuditStore) WithClock(clock func() time.Time) *AuditStore {
	s.clock = clock
	return s
}

// Append adds a new entry to the audit store.
func (s *AuditStore) Append(entryType EntryType, subject, action string, payload interface{}, metadata map[string]string) (*AuditEntry, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequence++
	entry := &AuditEntry{
		EntryID:      uuid.New().String(),
		Sequence:     s.sequence,
		Timestamp:    s.clock().UTC().Truncate(time.Microsecond),
		EntryType:    entryType,
		Subject:      subject,
		Action:       action,
		Payload:      payloadBytes,
		PayloadHash:  hashBytes(payloadBytes),
		PreviousHash: s.chainHead,
		Metadata:     metadata,
	}

	entryHash, err := computeEntryHash(entry)
	if err != nil {
		s.sequence--
		return nil, fmt.Errorf("failed to compute entry hash: %w", err)
	}
	entry.EntryHash = entryHash
	s.chainHead = entry.EntryHash

	s.entries = append(s.entries, entry)
	s.entryByID[entry.EntryID] = entry
	s.entryByHash[entry.EntryHash] = entry

	handlers := s.handlers
	for _, h := range handlers {
		h(entry)
	}

	return entry, nil
}

// hashBytes computes the BLAKE2b-256 hash of data.
func hashBytes(data []byte) string {
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("blake2b:%x", sum)
}

// computeEntryHash chains an entry: BLAKE2b over the JCS-canonical bytes of
// the hash-relevant fields concatenated with the previous hash.
func computeEntryHash(entry *AuditEntry) (string, error) {
	hashable := struct {
		Sequence     uint64    `json:"sequence"`
		Timestamp    time.Time `json:"timestamp"`
		EntryType    EntryType `json:"entry_type"`
		Subject      string    `json:"subject"`
		Action       string    `json:"action"`
		PayloadHash  string    `json:"payload_hash"`
		PreviousHash string    `json:"previous_hash"`

		EntryID  string            `json:"entry_id"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}{
		EntryID:      entry.EntryID,
		Metadata:     entry.Metadata,
		Sequence:     entry.Sequence,
		Timestamp:    entry.Timestamp,
		EntryType:    entry.EntryType,
		Subject:      entry.Subject,
		Action:       entry.Action,
		PayloadHash:  entry.PayloadHash,
		PreviousHash: entry.PreviousHash,
	}

	canonical, err := crypto.TransformJCS(hashable)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize entry for hashing: %w", err)
	}
	return hashBytes(append(canonical, []byte(entry.PreviousHash)...)), nil
}

// Get retrieves an entry by ID.
func (s *AuditStore) Get(entryID string) (*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entryByID[entryID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return entry, nil
}

// GetByHash retrieves an entry by its hash.
func (s *AuditStore) GetByHash(hash string) (*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entryByHash[hash]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return entry, nil
}

// GetChainHead returns the current chain head hash.
func (s *AuditStore) GetChainHead() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainHead
}

// GetSequence returns the current sequence number.
func (s *AuditStore) GetSequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequence
}

// Query returns entries matching the filter.
func (s *AuditStore) Query(filter QueryFilter) []*AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*AuditEntry, 0)
	for _, e := range s.entries {
		if filter.matches(e) {
			results = append(results, e)
			if filter.MaxResults > 0 && len(results) >= filter.MaxResults {
				break
			}
		}
	}
	return results
}

// QueryFilter defines filtering criteria for queries.
type QueryFilter struct {
	EntryType  EntryType
	Subject    string
	StartTime  *time.Time
	EndTime    *time.Time
	StartSeq   uint64
	EndSeq     uint64
	MaxResults int
}

func (f QueryFilter) matches(e *AuditEntry) bool {
	if f.EntryType != "" && e.EntryType != f.EntryType {
		return false
	}
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.StartSeq > 0 && e.Sequence < f.StartSeq {
		return false
	}
	if f.EndSeq > 0 && e.Sequence > f.EndSeq {
		return false
	}
	return true
}

// VerifyChain verifies the integrity of the whole hash chain.
func (s *AuditStore) VerifyChain() error {
	_, err := s.VerifyChainDetail()
	return err
}

// VerifyChainDetail re-verifies every link and, on failure, returns the
// sequence number of the first inconsistent entry.
func (s *AuditStore) VerifyChainDetail() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expectedPrev := genesisHash
	for _, entry := range s.entries {
		if entry.PreviousHash != expectedPrev {
			return entry.Sequence, fmt.Errorf("%w: entry %d has previous_hash %s but expected %s",
				ErrChainBroken, entry.Sequence, entry.PreviousHash, expectedPrev)
		}
		computed, err := computeEntryHash(entry)
		if err != nil {
			return entry.Sequence, fmt.Errorf("%w: entry %d hash computation failed: %w",
				ErrChainBroken, entry.Sequence, err)
		}
		if computed != entry.EntryHash {
			return entry.Sequence, fmt.Errorf("%w: entry %d hash mismatch (computed %s, stored %s)",
				ErrChainBroken, entry.Sequence, computed, entry.EntryHash)
		}
		expectedPrev = entry.EntryHash
	}
	return 0, nil
}

// AddHandler registers a handler for new entries.
func (s *AuditStore) AddHandler(h EntryHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// ExportBundle exports entries as an audit evidence bundle.
func (s *AuditStore) ExportBundle(filter QueryFilter) (*AuditEvidenceBundle, error) {
	entries := s.Query(filter)
	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries match filter")
	}

	bundle := &AuditEvidenceBundle{
		BundleID:   uuid.New().String(),
		Version:    "1.0.0",
		CreatedAt:  s.clock().UTC(),
		StartSeq:   entries[0].Sequence,
		EndSeq:     entries[len(entries)-1].Sequence,
		EntryCount: len(entries),
		Entries:    entries,
		ChainHead:  entries[len(entries)-1].EntryHash,
	}

	bundleData, err := json.Marshal(bundle.Entries)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bundle entries: %w", err)
	}
	bundle.BundleHash = hashBytes(bundleData)

	return bundle, nil
}

// AuditEvidenceBundle is an exportable bundle of audit entries.
type AuditEvidenceBundle struct {
	BundleID   string        `json:"bundle_id"`
	Version    string        `json:"version"`
	CreatedAt  time.Time     `json:"created_at"`
	StartSeq   uint64        `json:"start_sequence"`
	EndSeq     uint64        `json:"end_sequence"`
	EntryCount int           `json:"entry_count"`
	Entries    []*AuditEntry `json:"entries"`
	ChainHead  string        `json:"chain_head"`
	BundleHash string        `json:"bundle_hash"`
}

// VerifyBundle verifies a bundle's integrity.
func VerifyBundle(bundle *AuditEvidenceBundle) error {
	if len(bundle.Entries) == 0 {
		return fmt.Errorf("bundle is empty")
	}

	entriesData, _ := json.Marshal(bundle.Entries)
	if hashBytes(entriesData) != bundle.BundleHash {
		return fmt.Errorf("bundle hash mismatch")
	}

	for i := 1; i < len(bundle.Entries); i++ {
		if bundle.Entries[i].PreviousHash != bundle.Entries[i-1].EntryHash {
			return fmt.Errorf("chain broken at entry %d", i)
		}
	}

	return nil
}

// Size returns the number of entries in the store.
func (s *AuditStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
