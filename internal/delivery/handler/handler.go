// Package handler exposes delivery lifecycle and attempt endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lastmile/internal/audit"
	"lastmile/internal/delivery/models"
	"lastmile/internal/delivery/service"
	"lastmile/internal/delivery/store"
	"lastmile/internal/transport/http/shared"
	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
)

// Service defines the delivery operations the handler depends on.
type Service interface {
	Create(ctx context.Context, in service.CreateInput) (*models.Delivery, error)
	Get(ctx context.Context, deliveryID id.DeliveryID) (*models.Delivery, error)
	GetByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Delivery, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Delivery, error)
	ChangeStatus(ctx context.Context, deliveryID id.DeliveryID, target models.DeliveryStatus, reason string) (*models.Delivery, error)
	RecordAttempt(ctx context.Context, deliveryID id.DeliveryID, in service.AttemptInput) (*models.Delivery, error)
	ListAttempts(ctx context.Context, deliveryID id.DeliveryID) ([]*models.DeliveryAttempt, error)
}

// AuditReader exposes the audit trail for delivery history.
type AuditReader interface {
	ListByEntity(ctx context.Context, kind, entityID string) ([]audit.Entry, error)
}

type Handler struct {
	deliveries Service
	history    AuditReader
	logger     *slog.Logger
}

func New(deliveries Service, history AuditReader, logger *slog.Logger) *Handler {
	return &Handler{deliveries: deliveries, history: history, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/deliveries", h.handleCreate)
	r.Get("/deliveries", h.handleList)
	r.Get("/deliveries/{deliveryID}", h.handleGet)
	r.Get("/deliveries/tracking/{trackingNumber}", h.handleGetByTracking)
	r.Patch("/deliveries/{deliveryID}/status", h.handleChangeStatus)
	r.Post("/deliveries/{deliveryID}/attempts", h.handleRecordAttempt)
	r.Get("/deliveries/{deliveryID}/attempts", h.handleListAttempts)
	r.Get("/deliveries/{deliveryID}/history", h.handleHistory)
}

type createRequest struct {
	TrackingNumber string `json:"trackingNumber,omitempty"`
	Priority       string `json:"priority"`
	Type           string `json:"type"`
	RouteID        string `json:"routeId,omitempty"`
	RecipientName  string `json:"recipientName"`
	Street         string `json:"street"`
	City           string `json:"city"`
	State          string `json:"state"`
	MaxAttempts    int    `json:"maxAttempts,omitempty"`
}

type deliveryResponse struct {
	ID             string            `json:"id"`
	Version        int               `json:"version"`
	TrackingNumber string            `json:"trackingNumber"`
	Status         string            `json:"status"`
	Priority       string            `json:"priority"`
	Type           string            `json:"type"`
	RouteID        string            `json:"routeId,omitempty"`
	RecipientName  string            `json:"recipientName"`
	Street         string            `json:"street,omitempty"`
	City           string            `json:"city,omitempty"`
	State          string            `json:"state,omitempty"`
	Attempts       int               `json:"attempts"`
	MaxAttempts    int               `json:"maxAttempts"`
	FailureReason  string            `json:"failureReason,omitempty"`
	Proof          map[string]string `json:"proof,omitempty"`
	CreatedAt      string            `json:"createdAt"`
	UpdatedAt      string            `json:"updatedAt"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func toDeliveryResponse(d *models.Delivery) deliveryResponse {
	resp := deliveryResponse{
		ID:             d.ID.String(),
		Version:        d.Version,
		TrackingNumber: d.TrackingNumber,
		Status:         string(d.Status),
		Priority:       string(d.Priority),
		Type:           string(d.Type),
		RecipientName:  d.RecipientName,
		Street:         d.Street,
		City:           d.City,
		State:          d.State,
		Attempts:       d.Attempts,
		MaxAttempts:    d.MaxAttempts,
		FailureReason:  d.FailureReason,
		Proof:          d.Proof,
		CreatedAt:      d.CreatedAt.Format(timeLayout),
		UpdatedAt:      d.UpdatedAt.Format(timeLayout),
	}
	if !d.RouteID.IsNil() {
		resp.RouteID = d.RouteID.String()
	}
	return resp
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	in := service.CreateInput{
		TrackingNumber: req.TrackingNumber,
		Priority:       models.Priority(req.Priority),
		Type:           models.DeliveryType(req.Type),
		RecipientName:  req.RecipientName,
		Street:         req.Street,
		City:           req.City,
		State:          req.State,
		MaxAttempts:    req.MaxAttempts,
	}
	if req.RouteID != "" {
		routeID, err := id.ParseRouteID(req.RouteID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		in.RouteID = routeID
	}

	delivery, err := h.deliveries.Create(ctx, in)
	if err != nil {
		h.logger.WarnContext(ctx, "delivery creation rejected", "error", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toDeliveryResponse(delivery))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	deliveryID, err := id.ParseDeliveryID(chi.URLParam(r, "deliveryID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	delivery, err := h.deliveries.Get(r.Context(), deliveryID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDeliveryResponse(delivery))
}

func (h *Handler) handleGetByTracking(w http.ResponseWriter, r *http.Request) {
	delivery, err := h.deliveries.GetByTrackingNumber(r.Context(), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDeliveryResponse(delivery))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := store.Filter{Limit: 100}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := models.ParseDeliveryStatus(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("routeId"); raw != "" {
		routeID, err := id.ParseRouteID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.RouteID = routeID
	}

	deliveries, err := h.deliveries.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "delivery list failed", "error", err)
		shared.WriteError(w, err)
		return
	}
	out := make([]deliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, toDeliveryResponse(d))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"deliveries": out})
}

type changeStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deliveryID, err := id.ParseDeliveryID(chi.URLParam(r, "deliveryID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req changeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	target, err := models.ParseDeliveryStatus(req.Status)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	delivery, err := h.deliveries.ChangeStatus(ctx, deliveryID, target, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "delivery transition rejected",
			"delivery_id", deliveryID,
			"target", target,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDeliveryResponse(delivery))
}

type attemptRequest struct {
	Result        string            `json:"result"`
	FailureReason string            `json:"failureReason,omitempty"`
	Lat           float64           `json:"lat,omitempty"`
	Lng           float64           `json:"lng,omitempty"`
	AccuracyM     float64           `json:"accuracyM,omitempty"`
	Evidence      map[string]string `json:"evidence,omitempty"`
	NextAttemptAt *time.Time        `json:"nextAttemptAt,omitempty"`
}

func (h *Handler) handleRecordAttempt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deliveryID, err := id.ParseDeliveryID(chi.URLParam(r, "deliveryID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req attemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	delivery, err := h.deliveries.RecordAttempt(ctx, deliveryID, service.AttemptInput{
		Result:        models.AttemptResult(req.Result),
		FailureReason: req.FailureReason,
		Lat:           req.Lat,
		Lng:           req.Lng,
		AccuracyM:     req.AccuracyM,
		Evidence:      req.Evidence,
		NextAttemptAt: req.NextAttemptAt,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "attempt rejected",
			"delivery_id", deliveryID,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toDeliveryResponse(delivery))
}

type attemptResponse struct {
	ID            string            `json:"id"`
	AttemptNumber int               `json:"attemptNumber"`
	Result        string            `json:"result"`
	FailureReason string            `json:"failureReason,omitempty"`
	Lat           float64           `json:"lat,omitempty"`
	Lng           float64           `json:"lng,omitempty"`
	AccuracyM     float64           `json:"accuracyM,omitempty"`
	Evidence      map[string]string `json:"evidence,omitempty"`
	NextAttemptAt *string           `json:"nextAttemptAt,omitempty"`
	RecordedAt    string            `json:"recordedAt"`
}

func (h *Handler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	deliveryID, err := id.ParseDeliveryID(chi.URLParam(r, "deliveryID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	attempts, err := h.deliveries.ListAttempts(r.Context(), deliveryID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		resp := attemptResponse{
			ID:            a.ID.String(),
			AttemptNumber: a.AttemptNumber,
			Result:        string(a.Result),
			FailureReason: a.FailureReason,
			Lat:           a.Lat,
			Lng:           a.Lng,
			AccuracyM:     a.AccuracyM,
			Evidence:      a.Evidence,
			RecordedAt:    a.RecordedAt.Format(timeLayout),
		}
		if a.NextAttemptAt != nil {
			formatted := a.NextAttemptAt.Format(timeLayout)
			resp.NextAttemptAt = &formatted
		}
		out = append(out, resp)
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"attempts": out})
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
	deliveryID, err := id.ParseDeliveryID(chi.URLParam(r, "deliveryID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	entries, err := h.history.ListByEntity(r.Context(), "delivery", deliveryID.String())
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
