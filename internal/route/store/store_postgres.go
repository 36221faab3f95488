package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lastmile/internal/route/models"
	id "lastmile/pkg/domain"
	"lastmile/pkg/platform/sentinel"
	txcontext "lastmile/pkg/platform/tx"
	"lastmile/pkg/requestcontext"
)

// PostgresStore persists routes in PostgreSQL. Structured columns (origin,
// destination, restrictions, optimization) are stored as JSONB.
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

const routeColumns = `
	id, version, status, type, origin, destination,
	distance_km, estimated_min, num_stops, restrictions,
	driver_id, optimization, created_at, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, route *models.Route) error {
	origin, err := json.Marshal(route.Origin)
	if err != nil {
		return fmt.Errorf("marshal origin: %w", err)
	}
	destination, err := json.Marshal(route.Destination)
	if err != nil {
		return fmt.Errorf("marshal destination: %w", err)
	}
	restrictions, err := json.Marshal(route.Restrictions)
	if err != nil {
		return fmt.Errorf("marshal restrictions: %w", err)
	}
	optimization, err := json.Marshal(route.Optimization)
	if err != nil {
		return fmt.Errorf("marshal optimization: %w", err)
	}

	var driverID any
	if !route.DriverID.IsNil() {
		driverID = route.DriverID.String()
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO routes (`+routeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		route.ID.String(), route.Version, string(route.Status), string(route.Type),
		origin, destination, route.DistanceKm, route.EstimatedMin, route.NumStops,
		restrictions, driverID, optimization, route.CreatedAt, route.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert route: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, routeID id.RouteID) (*models.Route, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+routeColumns+`
		FROM routes
		WHERE id = $1
	`, routeID.String())
	route, err := scanRoute(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get route: %w", err)
	}
	return route, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*models.Route, error) {
	query := `SELECT ` + routeColumns + ` FROM routes WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !filter.DriverID.IsNil() {
		args = append(args, filter.DriverID.String())
		query += fmt.Sprintf(" AND driver_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	var routes []*models.Route
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routes: %w", err)
	}
	return routes, nil
}

// UpdateStatus is the commit point of the transition pipeline. The WHERE
// clause re-checks status and version; zero rows affected means either the
// route vanished or someone got there first.
func (s *PostgresStore) UpdateStatus(ctx context.Context, routeID id.RouteID, from, to models.RouteStatus, version int) (*models.Route, error) {
	now := requestcontext.Now(ctx)
	result, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE routes
		SET status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND status = $4 AND version = $5
	`, string(to), now, routeID.String(), string(from), version)
	if err != nil {
		return nil, fmt.Errorf("update route status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update route status: rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, routeID); errors.Is(err, sentinel.ErrNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, sentinel.ErrVersionConflict
	}
	return s.Get(ctx, routeID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoute(row rowScanner) (*models.Route, error) {
	var (
		route        models.Route
		routeID      string
		status       string
		routeType    string
		origin       []byte
		destination  []byte
		restrictions []byte
		optimization []byte
		driverID     sql.NullString
		createdAt    time.Time
		updatedAt    time.Time
	)
	err := row.Scan(
		&routeID, &route.Version, &status, &routeType,
		&origin, &destination, &route.DistanceKm, &route.EstimatedMin,
		&route.NumStops, &restrictions, &driverID, &optimization,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseRouteID(routeID)
	if err != nil {
		return nil, fmt.Errorf("parse stored route id: %w", err)
	}
	route.ID = parsedID
	route.Status = models.RouteStatus(status)
	route.Type = models.RouteType(routeType)
	route.CreatedAt = createdAt
	route.UpdatedAt = updatedAt

	if err := json.Unmarshal(origin, &route.Origin); err != nil {
		return nil, fmt.Errorf("unmarshal origin: %w", err)
	}
	if err := json.Unmarshal(destination, &route.Destination); err != nil {
		return nil, fmt.Errorf("unmarshal destination: %w", err)
	}
	if err := json.Unmarshal(restrictions, &route.Restrictions); err != nil {
		return nil, fmt.Errorf("unmarshal restrictions: %w", err)
	}
	if len(optimization) > 0 {
		if err := json.Unmarshal(optimization, &route.Optimization); err != nil {
			return nil, fmt.Errorf("unmarshal optimization: %w", err)
		}
	}
	if driverID.Valid {
		parsed, err := id.ParseDriverID(driverID.String)
		if err != nil {
			return nil, fmt.Errorf("parse stored driver id: %w", err)
		}
		route.DriverID = parsed
	}
	return &route, nil
}
