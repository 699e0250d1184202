package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mapleaiorg/substrate/pkg/executor"
)

// ErrReceiptExists is returned when storing a receipt whose id is already
// present: receipts are append-only and never overwritten.
var ErrReceiptExists = errors.New("receipt already exists")

// ErrReceiptNotFound is returned when a receipt lookup finds nothing.
var ErrReceiptNotFound = errors.New("receipt not found")

// MemoryReceiptStore is an executor.ReceiptStore backed by maps, for tests
// and single-process deployments.
type MemoryReceiptStore struct {
	mu           sync.RWMutex
	byID         map[string]*executor.Receipt
	byCommitment map[string]*executor.Receipt
}

// NewMemoryReceiptStore creates an empty receipt store.
func NewMemoryReceiptStore() *MemoryReceiptStore {
	return &MemoryReceiptStore{
		byID:         make(map[string]*executor.Receipt),
		byCommitment: make(map[string]*executor.Receipt),
	}
}

func (s *MemoryReceiptStore) Store(ctx context.Context, r *executor.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[r.ReceiptID]; exists {
		return fmt.Errorf("%w: %s", ErrReceiptExists, r.ReceiptID)
	}
	cp := *r
	s.byID[r.ReceiptID] = &cp
	s.byCommitment[r.CommitmentID] = &cp
	return nil
}

func (s *MemoryReceiptStore) Get(ctx context.Context, receiptID string) (*executor.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[receiptID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, receiptID)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryReceiptStore) GetForCommitment(ctx context.Context, commitmentID string) (*executor.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byCommitment[commitmentID]
	if !ok {
		return nil, fmt.Errorf("%w: commitment %s", ErrReceiptNotFound, commitmentID)
	}
	cp := *r
	return &cp, nil
}

// All returns every stored receipt, unordered.
func (s *MemoryReceiptStore) All() []*executor.Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*executor.Receipt, 0, len(s.byID))
	for _, r := range s.byID {
		cp := *r
		out = append(out, &cp)
	}
	return out
}
