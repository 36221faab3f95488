package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lastmile/internal/privacy/models"
	id "lastmile/pkg/domain"
	"lastmile/pkg/platform/sentinel"
	txcontext "lastmile/pkg/platform/tx"
)

// PostgresDataRequestStore persists data requests. Requests survive
// account-level deletions: there is no cascade from users, compliance
// retention keeps the rows.
type PostgresDataRequestStore struct {
	db *sql.DB
}

func NewPostgresDataRequestStore(db *sql.DB) *PostgresDataRequestStore {
	return &PostgresDataRequestStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execer(ctx context.Context, db *sql.DB) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

const requestColumns = `
	id, version, user_id, type, status, due_date,
	processing_started_at, completed_at, file_path, file_hash, file_size,
	error_message, processed_by, admin_notes, created_at, updated_at
`

func (s *PostgresDataRequestStore) Create(ctx context.Context, request *models.DataRequest) error {
	_, err := execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO data_requests (`+requestColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		request.ID.String(), request.Version, request.UserID.String(),
		string(request.Type), string(request.Status), request.DueDate,
		request.ProcessingStartedAt, request.CompletedAt,
		request.File.Path, request.File.Hash, request.File.Size,
		request.ErrorMessage, request.ProcessedBy, request.AdminNotes,
		request.CreatedAt, request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert data request: %w", err)
	}
	return nil
}

func (s *PostgresDataRequestStore) Get(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error) {
	row := execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM data_requests
		WHERE id = $1
	`, requestID.String())
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get data request: %w", err)
	}
	return request, nil
}

func (s *PostgresDataRequestStore) List(ctx context.Context, filter RequestFilter) ([]*models.DataRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM data_requests WHERE 1=1`
	var args []any
	if !filter.UserID.IsNil() {
		args = append(args, filter.UserID.String())
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.queryRequests(ctx, query, args...)
}

func (s *PostgresDataRequestStore) Update(ctx context.Context, request *models.DataRequest, expectedVersion int) (*models.DataRequest, error) {
	result, err := execer(ctx, s.db).ExecContext(ctx, `
		UPDATE data_requests
		SET version = version + 1,
		    status = $1,
		    processing_started_at = $2,
		    completed_at = $3,
		    file_path = $4, file_hash = $5, file_size = $6,
		    error_message = $7,
		    processed_by = $8,
		    admin_notes = $9,
		    updated_at = $10
		WHERE id = $11 AND version = $12
	`,
		string(request.Status), request.ProcessingStartedAt, request.CompletedAt,
		request.File.Path, request.File.Hash, request.File.Size,
		request.ErrorMessage, request.ProcessedBy, request.AdminNotes,
		request.UpdatedAt, request.ID.String(), expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update data request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update data request: rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, request.ID); errors.Is(err, sentinel.ErrNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, sentinel.ErrVersionConflict
	}
	return s.Get(ctx, request.ID)
}

func (s *PostgresDataRequestStore) ListPendingPastDue(ctx context.Context, now time.Time, limit int) ([]*models.DataRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM data_requests
		WHERE status = 'pending' AND due_date < $1
		ORDER BY due_date
	`
	args := []any{now}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.queryRequests(ctx, query, args...)
}

func (s *PostgresDataRequestStore) queryRequests(ctx context.Context, query string, args ...any) ([]*models.DataRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query data requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.DataRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan data request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate data requests: %w", err)
	}
	return requests, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.DataRequest, error) {
	var (
		r         models.DataRequest
		rawID     string
		rawUser   string
		rtype     string
		status    string
		started   sql.NullTime
		completed sql.NullTime
	)
	err := row.Scan(
		&rawID, &r.Version, &rawUser, &rtype, &status, &r.DueDate,
		&started, &completed, &r.File.Path, &r.File.Hash, &r.File.Size,
		&r.ErrorMessage, &r.ProcessedBy, &r.AdminNotes,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	parsedID, err := id.ParseDataRequestID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse stored data request id: %w", err)
	}
	parsedUser, err := id.ParseUserID(rawUser)
	if err != nil {
		return nil, fmt.Errorf("parse stored user id: %w", err)
	}
	r.ID = parsedID
	r.UserID = parsedUser
	r.Type = models.RequestType(rtype)
	r.Status = models.RequestStatus(status)
	if started.Valid {
		t := started.Time
		r.ProcessingStartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

// PostgresConsentStore persists consent records.
type PostgresConsentStore struct {
	db *sql.DB
}

func NewPostgresConsentStore(db *sql.DB) *PostgresConsentStore {
	return &PostgresConsentStore{db: db}
}

const consentColumns = `
	id, user_id, type, active, terms_version, purpose_description,
	expires_at, revoked_at, revocation_reason, created_at
`

func (s *PostgresConsentStore) Create(ctx context.Context, consent *models.Consent) error {
	_, err := execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO consents (`+consentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		consent.ID.String(), consent.UserID.String(), string(consent.Type),
		consent.Active, consent.TermsVersion, consent.PurposeDescription,
		consent.ExpiresAt, consent.RevokedAt, consent.RevocationReason,
		consent.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

func (s *PostgresConsentStore) Get(ctx context.Context, consentID id.ConsentID) (*models.Consent, error) {
	row := execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+consentColumns+`
		FROM consents
		WHERE id = $1
	`, consentID.String())
	consent, err := scanConsent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get consent: %w", err)
	}
	return consent, nil
}

func (s *PostgresConsentStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Consent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+consentColumns+`
		FROM consents
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	var consents []*models.Consent
	for rows.Next() {
		consent, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		consents = append(consents, consent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return consents, nil
}

func (s *PostgresConsentStore) Update(ctx context.Context, consent *models.Consent) error {
	result, err := execer(ctx, s.db).ExecContext(ctx, `
		UPDATE consents
		SET active = $1, revoked_at = $2, revocation_reason = $3
		WHERE id = $4
	`, consent.Active, consent.RevokedAt, consent.RevocationReason, consent.ID.String())
	if err != nil {
		return fmt.Errorf("update consent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consent: rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanConsent(row rowScanner) (*models.Consent, error) {
	var (
		c       models.Consent
		rawID   string
		rawUser string
		ctype   string
		expires sql.NullTime
		revoked sql.NullTime
	)
	err := row.Scan(
		&rawID, &rawUser, &ctype, &c.Active, &c.TermsVersion,
		&c.PurposeDescription, &expires, &revoked, &c.RevocationReason,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	parsedID, err := id.ParseConsentID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse stored consent id: %w", err)
	}
	parsedUser, err := id.ParseUserID(rawUser)
	if err != nil {
		return nil, fmt.Errorf("parse stored user id: %w", err)
	}
	c.ID = parsedID
	c.UserID = parsedUser
	c.Type = models.ConsentType(ctype)
	if expires.Valid {
		t := expires.Time
		c.ExpiresAt = &t
	}
	if revoked.Valid {
		t := revoked.Time
		c.RevokedAt = &t
	}
	return &c, nil
}
