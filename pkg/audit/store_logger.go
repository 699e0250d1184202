package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mapleaiorg/substrate/pkg/auth"
	"github.com/mapleaiorg/substrate/pkg/store"
)

// StoreLogger records operator events into the hash-chained audit store,
// so operator actions are tamper-evident alongside the kernel's own.
type StoreLogger struct {
	store *store.AuditStore
}

func NewStoreLogger(s *store.AuditStore) *StoreLogger {
	return &StoreLogger{store: s}
}

func (l *StoreLogger) Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]interface{}) error {
	if l.store == nil {
		return fmt.Errorf("fail-closed: audit store not configured")
	}

	actorID := auth.ActorID(ctx)
	evt := Event{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Type:      eventType,
		Action:    action,
		Resource:  resource,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}

	_, err := l.store.Append(store.EntryTypeAudit, resource, action, evt, map[string]string{
		"actor_id":   actorID,
		"event_id":   evt.ID,
		"event_type": string(eventType),
	})
	return err
}
