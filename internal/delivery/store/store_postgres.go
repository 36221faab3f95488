package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lastmile/internal/delivery/models"
	id "lastmile/pkg/domain"
	"lastmile/pkg/platform/sentinel"
	txcontext "lastmile/pkg/platform/tx"
	"lastmile/pkg/requestcontext"
)

// PostgresStore persists deliveries in PostgreSQL. The deliveries table
// carries the denormalized attempt count and the optimistic version column;
// delivery_attempts rows reference their delivery with a unique
// (delivery_id, attempt_number) constraint as a second line of defense.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const deliveryColumns = `
	id, version, tracking_number, status, priority, type, route_id,
	recipient_name, street, city, state, attempts, max_attempts,
	failure_reason, proof, created_at, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, delivery *models.Delivery) error {
	proof, err := json.Marshal(delivery.Proof)
	if err != nil {
		return fmt.Errorf("marshal proof: %w", err)
	}
	var routeID any
	if !delivery.RouteID.IsNil() {
		routeID = delivery.RouteID.String()
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO deliveries (`+deliveryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		delivery.ID.String(), delivery.Version, delivery.TrackingNumber,
		string(delivery.Status), string(delivery.Priority), string(delivery.Type),
		routeID, delivery.RecipientName, delivery.Street, delivery.City,
		delivery.State, delivery.Attempts, delivery.MaxAttempts,
		delivery.FailureReason, proof, delivery.CreatedAt, delivery.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, deliveryID id.DeliveryID) (*models.Delivery, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE id = $1
	`, deliveryID.String())
	return s.scanOne(row)
}

func (s *PostgresStore) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Delivery, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE tracking_number = $1
	`, trackingNumber)
	return s.scanOne(row)
}

func (s *PostgresStore) scanOne(row *sql.Row) (*models.Delivery, error) {
	delivery, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return delivery, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*models.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !filter.RouteID.IsNil() {
		args = append(args, filter.RouteID.String())
		query += fmt.Sprintf(" AND route_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return deliveries, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, deliveryID id.DeliveryID, from, to models.DeliveryStatus, version int, reason string) (*models.Delivery, error) {
	now := requestcontext.Now(ctx)
	result, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE deliveries
		SET status = $1,
		    version = version + 1,
		    failure_reason = CASE WHEN $2 = 'failed' AND $3 <> '' THEN $3 ELSE failure_reason END,
		    updated_at = $4
		WHERE id = $5 AND status = $6 AND version = $7
	`, string(to), string(to), reason, now, deliveryID.String(), string(from), version)
	if err != nil {
		return nil, fmt.Errorf("update delivery status: %w", err)
	}
	if err := s.checkAffected(ctx, result, deliveryID); err != nil {
		return nil, err
	}
	return s.Get(ctx, deliveryID)
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, attempt *models.DeliveryAttempt, commit AttemptCommit) (*models.Delivery, error) {
	now := requestcontext.Now(ctx)
	proof, err := json.Marshal(commit.Proof)
	if err != nil {
		return nil, fmt.Errorf("marshal proof: %w", err)
	}

	exec := s.execer(ctx)
	result, err := exec.ExecContext(ctx, `
		UPDATE deliveries
		SET attempts = $1,
		    status = $2,
		    version = version + 1,
		    failure_reason = CASE WHEN $3 <> '' THEN $3 ELSE failure_reason END,
		    proof = CASE WHEN $4::jsonb <> 'null'::jsonb THEN $4::jsonb ELSE proof END,
		    updated_at = $5
		WHERE id = $6 AND status = $7 AND version = $8
	`,
		commit.Attempts, string(commit.NewStatus), commit.FailureReason,
		proof, now, commit.DeliveryID.String(), string(commit.FromStatus), commit.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("apply attempt commit: %w", err)
	}
	if err := s.checkAffected(ctx, result, commit.DeliveryID); err != nil {
		return nil, err
	}

	evidence, err := json.Marshal(attempt.Evidence)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence: %w", err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO delivery_attempts (
			id, delivery_id, attempt_number, result, failure_reason,
			lat, lng, accuracy_m, evidence, next_attempt_at, recorded_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		attempt.ID, attempt.DeliveryID.String(), attempt.AttemptNumber,
		string(attempt.Result), attempt.FailureReason,
		attempt.Lat, attempt.Lng, attempt.AccuracyM, evidence,
		attempt.NextAttemptAt, attempt.RecordedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert delivery attempt: %w", err)
	}
	return s.Get(ctx, commit.DeliveryID)
}

func (s *PostgresStore) checkAffected(ctx context.Context, result sql.Result, deliveryID id.DeliveryID) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, deliveryID); errors.Is(err, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionConflict
	}
	return nil
}

func (s *PostgresStore) ListAttempts(ctx context.Context, deliveryID id.DeliveryID) ([]*models.DeliveryAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, delivery_id, attempt_number, result, failure_reason,
		       lat, lng, accuracy_m, evidence, next_attempt_at, recorded_at
		FROM delivery_attempts
		WHERE delivery_id = $1
		ORDER BY attempt_number
	`, deliveryID.String())
	if err != nil {
		return nil, fmt.Errorf("list delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.DeliveryAttempt
	for rows.Next() {
		var (
			a          models.DeliveryAttempt
			rawID      string
			result     string
			evidence   []byte
			next       sql.NullTime
			recordedAt time.Time
		)
		err := rows.Scan(
			&a.ID, &rawID, &a.AttemptNumber, &result, &a.FailureReason,
			&a.Lat, &a.Lng, &a.AccuracyM, &evidence, &next, &recordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		parsed, err := id.ParseDeliveryID(rawID)
		if err != nil {
			return nil, fmt.Errorf("parse stored delivery id: %w", err)
		}
		a.DeliveryID = parsed
		a.Result = models.AttemptResult(result)
		a.RecordedAt = recordedAt
		if next.Valid {
			t := next.Time
			a.NextAttemptAt = &t
		}
		if len(evidence) > 0 {
			if err := json.Unmarshal(evidence, &a.Evidence); err != nil {
				return nil, fmt.Errorf("unmarshal evidence: %w", err)
			}
		}
		attempts = append(attempts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery attempts: %w", err)
	}
	return attempts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*models.Delivery, error) {
	var (
		d         models.Delivery
		rawID     string
		status    string
		priority  string
		dtype     string
		routeID   sql.NullString
		proof     []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(
		&rawID, &d.Version, &d.TrackingNumber, &status, &priority, &dtype,
		&routeID, &d.RecipientName, &d.Street, &d.City, &d.State,
		&d.Attempts, &d.MaxAttempts, &d.FailureReason, &proof,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := id.ParseDeliveryID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse stored delivery id: %w", err)
	}
	d.ID = parsed
	d.Status = models.DeliveryStatus(status)
	d.Priority = models.Priority(priority)
	d.Type = models.DeliveryType(dtype)
	d.CreatedAt = createdAt
	d.UpdatedAt = updatedAt

	if routeID.Valid {
		parsedRoute, err := id.ParseRouteID(routeID.String)
		if err != nil {
			return nil, fmt.Errorf("parse stored route id: %w", err)
		}
		d.RouteID = parsedRoute
	}
	if len(proof) > 0 && string(proof) != "null" {
		if err := json.Unmarshal(proof, &d.Proof); err != nil {
			return nil, fmt.Errorf("unmarshal proof: %w", err)
		}
	}
	return &d, nil
}
