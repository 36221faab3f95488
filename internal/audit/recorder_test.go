package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lastmile/pkg/requestcontext"
)

type stubEntity struct {
	id     string
	status string
	fields map[string]string
}

func (e stubEntity) AuditKind() string                 { return "parcel" }
func (e stubEntity) AuditID() string                   { return e.id }
func (e stubEntity) AuditStatus() string               { return e.status }
func (e stubEntity) DiffableFields() map[string]string { return e.fields }

func TestDiff(t *testing.T) {
	before := stubEntity{status: "pending", fields: map[string]string{
		"status": "pending", "courier": "c-1", "note": "",
	}}
	after := stubEntity{status: "shipped", fields: map[string]string{
		"status": "shipped", "courier": "c-1", "note": "left at door",
	}}

	changes := Diff(before, after)
	require.Len(t, changes, 2)
	assert.Equal(t, FieldChange{Before: "pending", After: "shipped"}, changes["status"])
	assert.Equal(t, FieldChange{Before: "", After: "left at door"}, changes["note"])
	assert.NotContains(t, changes, "courier")
}

func TestDiffCreationReportsAllFields(t *testing.T) {
	created := stubEntity{fields: map[string]string{"status": "pending", "courier": "c-1"}}

	changes := Diff(nil, created)
	require.Len(t, changes, 2)
	assert.Equal(t, FieldChange{After: "pending"}, changes["status"])
}

func TestDiffNoChangesIsNil(t *testing.T) {
	e := stubEntity{fields: map[string]string{"status": "pending"}}
	assert.Nil(t, Diff(e, e))
}

func TestRecordMutationFillsAttributionFromContext(t *testing.T) {
	store := NewInMemoryStore()
	rec := NewRecorder(store)

	pinned := time.Date(2026, 7, 2, 8, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithActor(context.Background(), requestcontext.ActorInfo{
		ID: "drv-7", Name: "Ana", Type: "driver",
	})
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.9", "lastmile-app/2.1")
	ctx = requestcontext.WithRequestID(ctx, "req-42")
	ctx = requestcontext.WithTime(ctx, pinned)

	before := stubEntity{id: "p-1", status: "pending", fields: map[string]string{"status": "pending"}}
	after := stubEntity{id: "p-1", status: "shipped", fields: map[string]string{"status": "shipped"}}
	require.NoError(t, rec.RecordMutation(ctx, EventDeliveryStatusChanged, before, after, "carrier pickup"))

	entries, err := store.ListByEntity(ctx, "parcel", "p-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, EventDeliveryStatusChanged, entry.EventType)
	assert.Equal(t, CategoryCompliance, entry.Category)
	assert.Equal(t, "pending", entry.PreviousStatus)
	assert.Equal(t, "shipped", entry.NewStatus)
	assert.Equal(t, "drv-7", entry.ActorID)
	assert.Equal(t, "driver", entry.ActorType)
	assert.Equal(t, "203.0.113.9", entry.ClientIP)
	assert.Equal(t, "lastmile-app/2.1", entry.UserAgent)
	assert.Equal(t, "req-42", entry.RequestID)
	assert.True(t, entry.Timestamp.Equal(pinned))
	assert.NotZero(t, entry.ID)
}

func TestEventCategoryDefaultsToOperations(t *testing.T) {
	assert.Equal(t, CategoryOperations, EventType("made_up_event").Category())
	assert.Equal(t, CategoryCompliance, EventDataRequestExpired.Category())
	assert.Equal(t, CategoryOperations, EventRouteCreated.Category())
}
