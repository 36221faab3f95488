package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"lastmile/pkg/requestcontext"
)

// Store is the persistence interface for audit entries. Append must join a
// context-carried transaction when one is present so the audit write commits
// or rolls back with the mutation it describes.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByEntity(ctx context.Context, kind, entityID string) ([]Entry, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}

// Recorder captures structured audit entries. It is append-only and pulls
// actor and request attribution from the context so domain services only
// supply the what, not the who.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func NewRecorder(store Store, opts ...Option) *Recorder {
	rec := &Recorder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(rec)
	}
	return rec
}

// RecordMutation appends one entry describing a tracked mutation. The before
// snapshot may be nil for creations. Attribution (actor, IP, user agent,
// request ID, timestamp) comes from the context.
func (r *Recorder) RecordMutation(ctx context.Context, eventType EventType, before, after Auditable, description string) error {
	entry := Entry{
		EventType:     eventType,
		EntityKind:    after.AuditKind(),
		EntityID:      after.AuditID(),
		Description:   description,
		NewStatus:     after.AuditStatus(),
		ChangedFields: Diff(before, after),
	}
	if before != nil {
		entry.PreviousStatus = before.AuditStatus()
	}
	return r.Record(ctx, entry)
}

// Record appends a pre-built entry, filling ID, category, timestamp, and
// request attribution when absent.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Category == "" {
		entry.Category = entry.EventType.Category()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.ActorID == "" {
		actor := requestcontext.Actor(ctx)
		entry.ActorID = actor.ID
		entry.ActorName = actor.Name
		entry.ActorType = actor.Type
	}
	if entry.ClientIP == "" {
		entry.ClientIP = requestcontext.ClientIP(ctx)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = requestcontext.UserAgent(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}
	return r.store.Append(ctx, entry)
}

// ListByEntity returns the audit trail for one entity, newest first.
func (r *Recorder) ListByEntity(ctx context.Context, kind, entityID string) ([]Entry, error) {
	return r.store.ListByEntity(ctx, kind, entityID)
}
