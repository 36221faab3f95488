package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	txcontext "lastmile/pkg/platform/tx"
)

// PostgresStore persists audit entries using the transactional outbox
// pattern: each Append writes the materialized audit row and an outbox row
// in the caller's transaction; the outbox publisher relays committed rows to
// Kafka.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// Entry for proper deserialization by consumers.
type outboxPayload struct {
	ID             string                 `json:"ID"`
	Category       string                 `json:"Category"`
	EventType      string                 `json:"EventType"`
	Timestamp      string                 `json:"Timestamp"`
	EntityKind     string                 `json:"EntityKind"`
	EntityID       string                 `json:"EntityID"`
	Description    string                 `json:"Description,omitempty"`
	PreviousStatus string                 `json:"PreviousStatus,omitempty"`
	NewStatus      string                 `json:"NewStatus,omitempty"`
	ChangedFields  map[string]FieldChange `json:"ChangedFields,omitempty"`
	ActorID        string                 `json:"ActorID,omitempty"`
	ActorName      string                 `json:"ActorName,omitempty"`
	ActorType      string                 `json:"ActorType,omitempty"`
	ClientIP       string                 `json:"ClientIP,omitempty"`
	UserAgent      string                 `json:"UserAgent,omitempty"`
	RequestID      string                 `json:"RequestID,omitempty"`
}

// Append writes the audit entry and its outbox row. Joins the context
// transaction when present so the audit trail commits atomically with the
// mutation.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	changed, err := json.Marshal(entry.ChangedFields)
	if err != nil {
		return fmt.Errorf("marshal changed fields: %w", err)
	}

	exec := s.execer(ctx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, category, event_type, timestamp, entity_kind, entity_id,
			description, previous_status, new_status, changed_fields,
			actor_id, actor_name, actor_type, client_ip, user_agent, request_id
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		entry.ID, string(entry.Category), string(entry.EventType), entry.Timestamp,
		entry.EntityKind, entry.EntityID, entry.Description,
		entry.PreviousStatus, entry.NewStatus, changed,
		entry.ActorID, entry.ActorName, entry.ActorType,
		entry.ClientIP, entry.UserAgent, entry.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload := outboxPayload{
		ID:             entry.ID.String(),
		Category:       string(entry.Category),
		EventType:      string(entry.EventType),
		Timestamp:      entry.Timestamp.Format(time.RFC3339Nano),
		EntityKind:     entry.EntityKind,
		EntityID:       entry.EntityID,
		Description:    entry.Description,
		PreviousStatus: entry.PreviousStatus,
		NewStatus:      entry.NewStatus,
		ChangedFields:  entry.ChangedFields,
		ActorID:        entry.ActorID,
		ActorName:      entry.ActorName,
		ActorType:      entry.ActorType,
		ClientIP:       entry.ClientIP,
		UserAgent:      entry.UserAgent,
		RequestID:      entry.RequestID,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_outbox (id, event_id, category, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		uuid.New(), entry.ID, string(entry.Category), payloadBytes, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail for one entity, newest first.
func (s *PostgresStore) ListByEntity(ctx context.Context, kind, entityID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, event_type, timestamp, entity_kind, entity_id,
		       description, previous_status, new_status, changed_fields,
		       actor_id, actor_name, actor_type, client_ip, user_agent, request_id
		FROM audit_entries
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY timestamp DESC
	`, kind, entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListRecent returns the N most recent entries.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, event_type, timestamp, entity_kind, entity_id,
		       description, previous_status, new_status, changed_fields,
		       actor_id, actor_name, actor_type, client_ip, user_agent, request_id
		FROM audit_entries
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			category string
			event    string
			changed  []byte
		)
		err := rows.Scan(
			&e.ID, &category, &event, &e.Timestamp, &e.EntityKind, &e.EntityID,
			&e.Description, &e.PreviousStatus, &e.NewStatus, &changed,
			&e.ActorID, &e.ActorName, &e.ActorType,
			&e.ClientIP, &e.UserAgent, &e.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Category = EventCategory(category)
		e.EventType = EventType(event)
		if len(changed) > 0 {
			if err := json.Unmarshal(changed, &e.ChangedFields); err != nil {
				return nil, fmt.Errorf("unmarshal changed fields: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
