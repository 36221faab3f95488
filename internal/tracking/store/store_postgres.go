package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lastmile/internal/tracking/models"
	id "lastmile/pkg/domain"
	txcontext "lastmile/pkg/platform/tx"
)

// PostgresStore persists tracking events. The table is append-only; derived
// bands are stored so queries never re-run the classifier.
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

func (s *PostgresStore) Append(ctx context.Context, event *models.Event) error {
	var routeID, deliveryID any
	if !event.RouteID.IsNil() {
		routeID = event.RouteID.String()
	}
	if !event.DeliveryID.IsNil() {
		deliveryID = event.DeliveryID.String()
	}

	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO tracking_events (
			id, driver_id, route_id, delivery_id, type, device_type,
			signal_strength, accuracy_m, lat, lng,
			signal_quality, accuracy_level, timestamp
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		event.ID, event.DriverID.String(), routeID, deliveryID,
		string(event.Type), string(event.DeviceType),
		event.SignalStrength, event.AccuracyM, event.Lat, event.Lng,
		string(event.SignalQuality), string(event.AccuracyLevel), event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert tracking event: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*models.Event, error) {
	query := `
		SELECT id, driver_id, route_id, delivery_id, type, device_type,
		       signal_strength, accuracy_m, lat, lng,
		       signal_quality, accuracy_level, timestamp
		FROM tracking_events
		WHERE 1=1`
	var args []any
	if !filter.DriverID.IsNil() {
		args = append(args, filter.DriverID.String())
		query += fmt.Sprintf(" AND driver_id = $%d", len(args))
	}
	if !filter.RouteID.IsNil() {
		args = append(args, filter.RouteID.String())
		query += fmt.Sprintf(" AND route_id = $%d", len(args))
	}
	if !filter.DeliveryID.IsNil() {
		args = append(args, filter.DeliveryID.String())
		query += fmt.Sprintf(" AND delivery_id = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tracking events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var (
			e          models.Event
			driverID   string
			routeID    sql.NullString
			deliveryID sql.NullString
			eventType  string
			deviceType string
			signal     string
			accuracy   string
			timestamp  time.Time
		)
		err := rows.Scan(
			&e.ID, &driverID, &routeID, &deliveryID, &eventType, &deviceType,
			&e.SignalStrength, &e.AccuracyM, &e.Lat, &e.Lng,
			&signal, &accuracy, &timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tracking event: %w", err)
		}
		parsedDriver, err := id.ParseDriverID(driverID)
		if err != nil {
			return nil, fmt.Errorf("parse stored driver id: %w", err)
		}
		e.DriverID = parsedDriver
		if routeID.Valid {
			parsed, err := id.ParseRouteID(routeID.String)
			if err != nil {
				return nil, fmt.Errorf("parse stored route id: %w", err)
			}
			e.RouteID = parsed
		}
		if deliveryID.Valid {
			parsed, err := id.ParseDeliveryID(deliveryID.String)
			if err != nil {
				return nil, fmt.Errorf("parse stored delivery id: %w", err)
			}
			e.DeliveryID = parsed
		}
		e.Type = models.EventType(eventType)
		e.DeviceType = models.DeviceType(deviceType)
		e.SignalQuality = models.SignalQuality(signal)
		e.AccuracyLevel = models.AccuracyLevel(accuracy)
		e.Timestamp = timestamp
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracking events: %w", err)
	}
	return events, nil
}
