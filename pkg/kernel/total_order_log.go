// Package kernel provides the substrate's low-level runtime services: the
// totally ordered dispatch log that linearizes the router's routing
// decisions, and the admission-control rate limiters backing the router's
// backpressure.
package kernel

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mapleaiorg/substrate/pkg/crypto"
)

// ErrEventNotFound is returned for positions beyond the log's head.
var ErrEventNotFound = errors.New("event not found")

// DispatchRecord is what the log orders: one routing decision for one
// envelope. Anchor is the envelope's temporal anchor in displayable form;
// Decision is the router's verdict (route, reject, quarantine, expire).
type DispatchRecord struct {
	Origin        string `json:"origin"`
	ResonanceType string `json:"resonance_type"`
	Anchor        string `json:"anchor"`
	Target        string `json:"target"`
	Decision      string `json:"decision"`
	CommitmentID  string `json:"commitment_id,omitempty"`
}

// DispatchEvent is a committed dispatch record with its unique position in
// the total order and its place in the hash chain.
type DispatchEvent struct {
	OrderPosition uint64         `json:"order_position"`
	Record        DispatchRecord `json:"record"`
	CommitHash    string         `json:"commit_hash"`
	PreviousHash  string         `json:"previous_hash"`
	CommittedAt   time.Time      `json:"committed_at"`
	// Stream identifies which dispatcher committed the event, so merged
	// multi-router logs stay attributable.
	Stream string `json:"stream,omitempty"`
}

// TotalOrderLog assigns every committed dispatch record a globally unique
// position, chained by commit hash so reordering or rewriting history is
// detectable.
type TotalOrderLog interface {
	// Commit appends a dispatch record, assigning its position.
	Commit(ctx context.Context, rec DispatchRecord, stream string) (*DispatchEvent, error)

	// Get retrieves an event by its order position.
	Get(ctx context.Context, position uint64) (*DispatchEvent, error)

	// Range returns events in order within [start, end).
	Range(ctx context.Context, start, end uint64) ([]*DispatchEvent, error)

	// Head returns the latest committed event.
	Head(ctx context.Context) (*DispatchEvent, error)

	// Verify checks the hash chain over [start, end).
	Verify(ctx context.Context, start, end uint64) (bool, error)

	// Len returns the total number of committed events.
	Len() uint64
}

// InMemoryTotalOrderLog provides an in-memory implementation.
type InMemoryTotalOrderLog struct {
	mu     sync.RWMutex
	events []*DispatchEvent
	clock  func() time.Time
}

// NewInMemoryTotalOrderLog creates an empty dispatch log.
func NewInMemoryTotalOrderLog() *InMemoryTotalOrderLog {
	return &InMemoryTotalOrderLog{
		events: make([]*DispatchEvent, 0),
		clock:  time.Now,
	}
}

// WithClock overrides the commit timestamp source, making commit hashes
// fully deterministic for replay tests.
func (l *InMemoryTotalOrderLog) WithClock(clock func() time.Time) *InMemoryTotalOrderLog {
	l.clock = clock
	return l
}

// Commit implements TotalOrderLog.
func (l *InMemoryTotalOrderLog) Commit(ctx context.Context, rec DispatchRecord, stream string) (*DispatchEvent, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()

	position := uint64(len(l.events))
	now := l.clock().UTC()

	previousHash := "genesis"
	if position > 0 {
		previousHash = l.events[position-1].CommitHash
	}

	commitHash, err := computeCommitHash(position, rec, previousHash, now, stream)
	if err != nil {
		return nil, err
	}

	event := &DispatchEvent{
		OrderPosition: position,
		Record:        rec,
		CommitHash:    commitHash,
		PreviousHash:  previousHash,
		CommittedAt:   now,
		Stream:        stream,
	}

	l.events = append(l.events, event)
	return event, nil
}

// Get implements TotalOrderLog.
func (l *InMemoryTotalOrderLog) Get(ctx context.Context, position uint64) (*DispatchEvent, error) {
	_ = ctx
	l.mu.RLock()
	defer l.mu.RUnlock()

	if position >= uint64(len(l.events)) {
		return nil, ErrEventNotFound
	}
	return l.events[position], nil
}

// Range implements TotalOrderLog.
func (l *InMemoryTotalOrderLog) Range(ctx context.Context, start, end uint64) ([]*DispatchEvent, error) {
	_ = ctx
	l.mu.RLock()
	defer l.mu.RUnlock()

	if start >= uint64(len(l.events)) {
		return nil, nil
	}
	if end > uint64(len(l.events)) {
		end = uint64(len(l.events))
	}
	if start >= end {
		return nil, nil
	}

	result := make([]*DispatchEvent, end-start)
	copy(result, l.events[start:end])
	return result, nil
}

// Head implements TotalOrderLog.
func (l *InMemoryTotalOrderLog) Head(ctx context.Context) (*DispatchEvent, error) {
	_ = ctx
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.events) == 0 {
		return nil, ErrEventNotFound
	}
	return l.events[len(l.events)-1], nil
}

// Verify implements TotalOrderLog.
func (l *InMemoryTotalOrderLog) Verify(ctx context.Context, start, end uint64) (bool, error) {
	_ = ctx
	l.mu.RLock()
	defer l.mu.RUnlock()

	if start >= uint64(len(l.events)) {
		return true, nil // empty range is valid
	}
	if end > uint64(len(l.events)) {
		end = uint64(len(l.events))
	}

	for i := start; i < end; i++ {
		event := l.events[i]

		expectedPrev := "genesis"
		if i > 0 {
			expectedPrev = l.events[i-1].CommitHash
		}
		if event.PreviousHash != expectedPrev {
			return false, fmt.Errorf("dispatch log broken at %d: previous hash mismatch", i)
		}

		expectedHash, err := computeCommitHash(
			event.OrderPosition,
			event.Record,
			event.PreviousHash,
			event.CommittedAt,
			event.Stream,
		)
		if err != nil {
			return false, err
		}
		if event.CommitHash != expectedHash {
			return false, fmt.Errorf("dispatch log broken at %d: commit hash mismatch", i)
		}
	}

	return true, nil
}

// Len implements TotalOrderLog.
func (l *InMemoryTotalOrderLog) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events))
}

// computeCommitHash hashes the position, chain link, JCS-canonical record
// bytes, commit time, and stream into the event's commit hash.
func computeCommitHash(position uint64, rec DispatchRecord, prevHash string, commitTime time.Time, stream string) (string, error) {
	canonical, err := crypto.TransformJCS(rec)
	if err != nil {
		return "", fmt.Errorf("kernel: dispatch record not canonicalizable: %w", err)
	}

	h := sha256.New()
	posBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(posBytes, position)
	h.Write(posBytes)
	h.Write([]byte(prevHash))
	h.Write(canonical)
	h.Write([]byte(commitTime.Format(time.RFC3339Nano)))
	h.Write([]byte(stream))

	return hex.EncodeToString(h.Sum(nil)), nil
}
