// Package handler exposes tracking ingestion and query endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lastmile/internal/tracking/models"
	"lastmile/internal/tracking/service"
	"lastmile/internal/tracking/store"
	"lastmile/internal/transport/http/shared"
	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
)

// Service defines the tracking operations the handler depends on.
type Service interface {
	Ingest(ctx context.Context, in service.IngestInput) (*models.Event, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Event, error)
	LatestPosition(ctx context.Context, driverID id.DriverID) (models.Position, error)
}

type Handler struct {
	tracking Service
	logger   *slog.Logger
}

func New(tracking Service, logger *slog.Logger) *Handler {
	return &Handler{tracking: tracking, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/tracking/events", h.handleIngest)
	r.Get("/tracking/events", h.handleList)
	r.Get("/tracking/drivers/{driverID}/position", h.handlePosition)
}

type ingestRequest struct {
	DriverID       string  `json:"driverId"`
	RouteID        string  `json:"routeId,omitempty"`
	DeliveryID     string  `json:"deliveryId,omitempty"`
	Type           string  `json:"type"`
	DeviceType     string  `json:"deviceType"`
	SignalStrength float64 `json:"signalStrength"`
	AccuracyM      float64 `json:"accuracyM"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
}

type eventResponse struct {
	ID             string  `json:"id"`
	DriverID       string  `json:"driverId"`
	RouteID        string  `json:"routeId,omitempty"`
	DeliveryID     string  `json:"deliveryId,omitempty"`
	Type           string  `json:"type"`
	DeviceType     string  `json:"deviceType"`
	SignalStrength float64 `json:"signalStrength"`
	AccuracyM      float64 `json:"accuracyM"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	SignalQuality  string  `json:"signalQuality"`
	AccuracyLevel  string  `json:"accuracyLevel"`
	Timestamp      string  `json:"timestamp"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func toEventResponse(e *models.Event) eventResponse {
	resp := eventResponse{
		ID:             e.ID.String(),
		DriverID:       e.DriverID.String(),
		Type:           string(e.Type),
		DeviceType:     string(e.DeviceType),
		SignalStrength: e.SignalStrength,
		AccuracyM:      e.AccuracyM,
		Lat:            e.Lat,
		Lng:            e.Lng,
		SignalQuality:  string(e.SignalQuality),
		AccuracyLevel:  string(e.AccuracyLevel),
		Timestamp:      e.Timestamp.Format(timeLayout),
	}
	if !e.RouteID.IsNil() {
		resp.RouteID = e.RouteID.String()
	}
	if !e.DeliveryID.IsNil() {
		resp.DeliveryID = e.DeliveryID.String()
	}
	return resp
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	driverID, err := id.ParseDriverID(req.DriverID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	in := service.IngestInput{
		DriverID:       driverID,
		Type:           models.EventType(req.Type),
		DeviceType:     models.DeviceType(req.DeviceType),
		SignalStrength: req.SignalStrength,
		AccuracyM:      req.AccuracyM,
		Lat:            req.Lat,
		Lng:            req.Lng,
	}
	if req.RouteID != "" {
		routeID, err := id.ParseRouteID(req.RouteID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		in.RouteID = routeID
	}
	if req.DeliveryID != "" {
		deliveryID, err := id.ParseDeliveryID(req.DeliveryID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		in.DeliveryID = deliveryID
	}

	event, err := h.tracking.Ingest(ctx, in)
	if err != nil {
		h.logger.WarnContext(ctx, "tracking ingest rejected", "error", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toEventResponse(event))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := store.Filter{Limit: 200}
	query := r.URL.Query()

	if raw := query.Get("driverId"); raw != "" {
		driverID, err := id.ParseDriverID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.DriverID = driverID
	}
	if raw := query.Get("routeId"); raw != "" {
		routeID, err := id.ParseRouteID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.RouteID = routeID
	}
	if raw := query.Get("deliveryId"); raw != "" {
		deliveryID, err := id.ParseDeliveryID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.DeliveryID = deliveryID
	}
	if raw := query.Get("type"); raw != "" {
		eventType, err := models.ParseEventType(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.Type = eventType
	}

	events, err := h.tracking.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "tracking list failed", "error", err)
		shared.WriteError(w, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (h *Handler) handlePosition(w http.ResponseWriter, r *http.Request) {
	driverID, err := id.ParseDriverID(chi.URLParam(r, "driverID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	pos, err := h.tracking.LatestPosition(r.Context(), driverID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, pos)
}
