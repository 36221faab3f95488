// Package handler exposes LGPD data-request and consent endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lastmile/internal/audit"
	"lastmile/internal/privacy/models"
	"lastmile/internal/privacy/service"
	"lastmile/internal/privacy/store"
	"lastmile/internal/transport/http/shared"
	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
	"lastmile/pkg/requestcontext"
)

// Service defines the privacy operations the handler depends on.
type Service interface {
	CreateRequest(ctx context.Context, userID id.UserID, requestType models.RequestType) (*models.DataRequest, error)
	GetRequest(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error)
	ListRequests(ctx context.Context, filter store.RequestFilter) ([]*models.DataRequest, error)
	StartProcessing(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error)
	Complete(ctx context.Context, requestID id.DataRequestID, file models.FileMetadata) (*models.DataRequest, error)
	Fail(ctx context.Context, requestID id.DataRequestID, errorMessage string) (*models.DataRequest, error)
	Cancel(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error)
	GrantConsent(ctx context.Context, in service.GrantInput) (*models.Consent, error)
	RevokeConsent(ctx context.Context, consentID id.ConsentID, reason string) (*models.Consent, error)
	ListConsents(ctx context.Context, userID id.UserID) ([]*models.Consent, error)
}

// AuditReader exposes the audit trail for data-request history.
type AuditReader interface {
	ListByEntity(ctx context.Context, kind, entityID string) ([]audit.Entry, error)
}

type Handler struct {
	privacy Service
	history AuditReader
	logger  *slog.Logger
}

func New(privacy Service, history AuditReader, logger *slog.Logger) *Handler {
	return &Handler{privacy: privacy, history: history, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/privacy/requests", h.handleCreateRequest)
	r.Get("/privacy/requests", h.handleListRequests)
	r.Get("/privacy/requests/{requestID}", h.handleGetRequest)
	r.Post("/privacy/requests/{requestID}/start", h.handleStart)
	r.Post("/privacy/requests/{requestID}/complete", h.handleComplete)
	r.Post("/privacy/requests/{requestID}/fail", h.handleFail)
	r.Post("/privacy/requests/{requestID}/cancel", h.handleCancel)
	r.Get("/privacy/requests/{requestID}/history", h.handleHistory)

	r.Post("/privacy/consents", h.handleGrantConsent)
	r.Post("/privacy/consents/{consentID}/revoke", h.handleRevokeConsent)
	r.Get("/privacy/users/{userID}/consents", h.handleListConsents)
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type requestResponse struct {
	ID                  string  `json:"id"`
	Version             int     `json:"version"`
	UserID              string  `json:"userId"`
	Type                string  `json:"type"`
	Status              string  `json:"status"`
	DueDate             string  `json:"dueDate"`
	WithinLegalDeadline bool    `json:"withinLegalDeadline"`
	ProcessingStartedAt *string `json:"processingStartedAt,omitempty"`
	CompletedAt         *string `json:"completedAt,omitempty"`
	FilePath            string  `json:"filePath,omitempty"`
	FileHash            string  `json:"fileHash,omitempty"`
	FileSize            int64   `json:"fileSize,omitempty"`
	ErrorMessage        string  `json:"errorMessage,omitempty"`
	ProcessedBy         string  `json:"processedBy,omitempty"`
	CreatedAt           string  `json:"createdAt"`
	UpdatedAt           string  `json:"updatedAt"`
}

func toRequestResponse(r *models.DataRequest, now time.Time) requestResponse {
	resp := requestResponse{
		ID:                  r.ID.String(),
		Version:             r.Version,
		UserID:              r.UserID.String(),
		Type:                string(r.Type),
		Status:              string(r.Status),
		DueDate:             r.DueDate.Format(timeLayout),
		WithinLegalDeadline: r.IsWithinLegalDeadline(now),
		FilePath:            r.File.Path,
		FileHash:            r.File.Hash,
		FileSize:            r.File.Size,
		ErrorMessage:        r.ErrorMessage,
		ProcessedBy:         r.ProcessedBy,
		CreatedAt:           r.CreatedAt.Format(timeLayout),
		UpdatedAt:           r.UpdatedAt.Format(timeLayout),
	}
	if r.ProcessingStartedAt != nil {
		formatted := r.ProcessingStartedAt.Format(timeLayout)
		resp.ProcessingStartedAt = &formatted
	}
	if r.CompletedAt != nil {
		formatted := r.CompletedAt.Format(timeLayout)
		resp.CompletedAt = &formatted
	}
	return resp
}

type createRequestBody struct {
	UserID string `json:"userId"`
	Type   string `json:"type"`
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	request, err := h.privacy.CreateRequest(ctx, userID, models.RequestType(req.Type))
	if err != nil {
		h.logger.WarnContext(ctx, "data request creation rejected", "error", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toRequestResponse(request, requestcontext.Now(ctx)))
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseDataRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	request, err := h.privacy.GetRequest(r.Context(), requestID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRequestResponse(request, requestcontext.Now(r.Context())))
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := store.RequestFilter{Limit: 100}

	if raw := r.URL.Query().Get("userId"); raw != "" {
		userID, err := id.ParseUserID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.UserID = userID
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		filter.Status = models.RequestStatus(raw)
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		requestType, err := models.ParseRequestType(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.Type = requestType
	}

	requests, err := h.privacy.ListRequests(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "data request list failed", "error", err)
		shared.WriteError(w, err)
		return
	}
	now := requestcontext.Now(ctx)
	out := make([]requestResponse, 0, len(requests))
	for _, request := range requests {
		out = append(out, toRequestResponse(request, now))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "start", func(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error) {
		return h.privacy.StartProcessing(ctx, requestID)
	})
}

type completeBody struct {
	FilePath string `json:"filePath,omitempty"`
	FileHash string `json:"fileHash,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeBody
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	file := models.FileMetadata{Path: req.FilePath, Hash: req.FileHash, Size: req.FileSize}
	h.transition(w, r, "complete", func(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error) {
		return h.privacy.Complete(ctx, requestID, file)
	})
}

type failBody struct {
	ErrorMessage string `json:"errorMessage"`
}

func (h *Handler) handleFail(w http.ResponseWriter, r *http.Request) {
	var req failBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	h.transition(w, r, "fail", func(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error) {
		return h.privacy.Fail(ctx, requestID, req.ErrorMessage)
	})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel", func(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error) {
		return h.privacy.Cancel(ctx, requestID)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, apply func(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error)) {
	ctx := r.Context()

	requestID, err := id.ParseDataRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	request, err := apply(ctx, requestID)
	if err != nil {
		h.logger.WarnContext(ctx, "data request transition rejected",
			"request_id", requestID,
			"op", op,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRequestResponse(request, requestcontext.Now(ctx)))
}

type historyItem struct {
	Timestamp      string `json:"timestamp"`
	EventType      string `json:"eventType"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	NewStatus      string `json:"newStatus"`
	ActorID        string `json:"actorId,omitempty"`
	Description    string `json:"description,omitempty"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseDataRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	entries, err := h.history.ListByEntity(r.Context(), "data_request", requestID.String())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{
			Timestamp:      e.Timestamp.Format(timeLayout),
			EventType:      string(e.EventType),
			PreviousStatus: e.PreviousStatus,
			NewStatus:      e.NewStatus,
			ActorID:        e.ActorID,
			Description:    e.Description,
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"history": items})
}

type consentResponse struct {
	ID                 string  `json:"id"`
	UserID             string  `json:"userId"`
	Type               string  `json:"type"`
	Active             bool    `json:"active"`
	TermsVersion       string  `json:"termsVersion"`
	PurposeDescription string  `json:"purposeDescription,omitempty"`
	ExpiresAt          *string `json:"expiresAt,omitempty"`
	RevokedAt          *string `json:"revokedAt,omitempty"`
	RevocationReason   string  `json:"revocationReason,omitempty"`
	CreatedAt          string  `json:"createdAt"`
}

func toConsentResponse(c *models.Consent) consentResponse {
	resp := consentResponse{
		ID:                 c.ID.String(),
		UserID:             c.UserID.String(),
		Type:               string(c.Type),
		Active:             c.Active,
		TermsVersion:       c.TermsVersion,
		PurposeDescription: c.PurposeDescription,
		RevocationReason:   c.RevocationReason,
		CreatedAt:          c.CreatedAt.Format(timeLayout),
	}
	if c.ExpiresAt != nil {
		formatted := c.ExpiresAt.Format(timeLayout)
		resp.ExpiresAt = &formatted
	}
	if c.RevokedAt != nil {
		formatted := c.RevokedAt.Format(timeLayout)
		resp.RevokedAt = &formatted
	}
	return resp
}

type grantConsentBody struct {
	UserID             string     `json:"userId"`
	Type               string     `json:"type"`
	TermsVersion       string     `json:"termsVersion"`
	PurposeDescription string     `json:"purposeDescription,omitempty"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty"`
}

func (h *Handler) handleGrantConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req grantConsentBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	consent, err := h.privacy.GrantConsent(ctx, service.GrantInput{
		UserID:             userID,
		Type:               models.ConsentType(req.Type),
		TermsVersion:       req.TermsVersion,
		PurposeDescription: req.PurposeDescription,
		ExpiresAt:          req.ExpiresAt,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "consent grant rejected", "error", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toConsentResponse(consent))
}

type revokeConsentBody struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) handleRevokeConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	consentID, err := id.ParseConsentID(chi.URLParam(r, "consentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req revokeConsentBody
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}

	consent, err := h.privacy.RevokeConsent(ctx, consentID, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "consent revocation rejected",
			"consent_id", consentID,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toConsentResponse(consent))
}

func (h *Handler) handleListConsents(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	consents, err := h.privacy.ListConsents(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]consentResponse, 0, len(consents))
	for _, consent := range consents {
		out = append(out, toConsentResponse(consent))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"consents": out})
}
