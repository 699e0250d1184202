package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapleaiorg/substrate/pkg/audit"
	"github.com/mapleaiorg/substrate/pkg/auth"
	"github.com/mapleaiorg/substrate/pkg/store"
)

func TestLogger_Record_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	err := logger.Record(context.Background(), audit.EventAccess, "inspect", "commitment/cmt-1", nil)
	require.NoError(t, err)

	output := buf.String()
	assert.True(t, strings.HasPrefix(output, "AUDIT: "))

	jsonPart := strings.TrimSpace(strings.TrimPrefix(output, "AUDIT: "))

	var event audit.Event
	err = json.Unmarshal([]byte(jsonPart), &event)
	require.NoError(t, err)

	assert.Equal(t, audit.EventAccess, event.Type)
	assert.Equal(t, "inspect", event.Action)
	assert.Equal(t, "commitment/cmt-1", event.Resource)
	// No principal in context: the record is still attributed.
	assert.Equal(t, "system", event.ActorID)
	assert.NotEmpty(t, event.ID)
	assert.Len(t, event.ID, 36)
}

func TestLogger_Record_AttributesPrincipal(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	ctx := auth.WithPrincipal(context.Background(), &auth.BasePrincipal{ID: "op-7", Roles: []string{"reviewer"}})
	meta := map[string]interface{}{"ip": "10.0.0.1"}
	require.NoError(t, logger.Record(ctx, audit.EventMutation, "resume", "commitment/cmt-2", meta))

	jsonPart := strings.TrimPrefix(buf.String(), "AUDIT: ")
	var event audit.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(jsonPart)), &event))

	assert.Equal(t, "op-7", event.ActorID)
	assert.Equal(t, "10.0.0.1", event.Metadata["ip"])
}

func TestStoreLogger_ChainsOperatorActions(t *testing.T) {
	audStore := store.NewAuditStore()
	logger := audit.NewStoreLogger(audStore)

	ctx := auth.WithPrincipal(context.Background(), &auth.BasePrincipal{ID: "op-1"})
	require.NoError(t, logger.Record(ctx, audit.EventAccess, "inspect", "commitment/cmt-1", nil))
	require.NoError(t, logger.Record(ctx, audit.EventMutation, "compact", "provenance", nil))

	assert.Equal(t, 2, audStore.Size())
	require.NoError(t, audStore.VerifyChain())

	entries := audStore.Query(store.QueryFilter{Subject: "commitment/cmt-1"})
	require.Len(t, entries, 1)
	assert.Equal(t, "op-1", entries[0].Metadata["actor_id"])
}

func TestStoreLogger_FailClosedWithoutStore(t *testing.T) {
	logger := audit.NewStoreLogger(nil)
	assert.Error(t, logger.Record(context.Background(), audit.EventAccess, "inspect", "x", nil))
}

func TestExporter_GeneratePack_Success(t *testing.T) {
	audStore := store.NewAuditStore()
	_, err := audStore.Append(store.EntryTypeTransition, "cmt-1", "transition", map[string]string{"to": "APPROVED"}, nil)
	require.NoError(t, err)

	exporter := audit.NewExporter(audStore)
	req := audit.ExportRequest{
		Subject:   "cmt-1",
		StartTime: time.Now().Add(-24 * time.Hour),
		EndTime:   time.Now().Add(time.Hour),
	}

	zipBytes, checksum, err := exporter.GeneratePack(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, zipBytes)
	assert.Len(t, checksum, 64) // sha256 hex
}

func TestExporter_GeneratePack_EmptySubject(t *testing.T) {
	exporter := audit.NewExporter(store.NewAuditStore())
	_, _, err := exporter.GeneratePack(context.Background(), audit.ExportRequest{})
	assert.ErrorIs(t, err, audit.ErrEmptySubject)
}

func TestExporter_GeneratePack_InvalidTimeRange(t *testing.T) {
	exporter := audit.NewExporter(store.NewAuditStore())
	req := audit.ExportRequest{
		Subject:   "cmt-1",
		StartTime: time.Now(),
		EndTime:   time.Now().Add(-1 * time.Hour),
	}

	_, _, err := exporter.GeneratePack(context.Background(), req)
	assert.ErrorIs(t, err, audit.ErrInvalidTimeRange)
}

func TestExporter_GeneratePack_FailClosedWithoutStore(t *testing.T) {
	exporter := audit.NewExporter(nil)
	_, _, err := exporter.GeneratePack(context.Background(), audit.ExportRequest{Subject: "cmt-1"})
	assert.ErrorIs(t, err, audit.ErrStoreNotConfigured)
}
