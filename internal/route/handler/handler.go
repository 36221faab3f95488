// Package handler exposes route lifecycle endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lastmile/internal/audit"
	"lastmile/internal/route/models"
	"lastmile/internal/route/service"
	"lastmile/internal/route/store"
	"lastmile/internal/transport/http/shared"
	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
)

// Service defines the route operations the handler depends on.
type Service interface {
	Create(ctx context.Context, in service.CreateInput) (*models.Route, error)
	Get(ctx context.Context, routeID id.RouteID) (*models.Route, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Route, error)
	ChangeStatus(ctx context.Context, routeID id.RouteID, target models.RouteStatus) (*models.Route, error)
	Estimate(ctx context.Context, routeType models.RouteType, distanceKm float64, numStops int) (models.Metrics, error)
}

// AuditReader exposes the audit trail; route history is derived from it.
type AuditReader interface {
	ListByEntity(ctx context.Context, kind, entityID string) ([]audit.Entry, error)
}

// historyItem is one status change in a route's history, derived from the
// audit trail.
type historyItem struct {
	Timestamp      string `json:"timestamp"`
	EventType      string `json:"eventType"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	NewStatus      string `json:"newStatus"`
	ActorID        string `json:"actorId,omitempty"`
	Description    string `json:"description,omitempty"`
}

type Handler struct {
	routes  Service
	history AuditReader
	logger  *slog.Logger
}

func New(routes Service, history AuditReader, logger *slog.Logger) *Handler {
	return &Handler{routes: routes, history: history, logger: logger}
}

// Register mounts the route endpoints on the given router. Auth and request
// middleware are applied by the parent router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/routes", h.handleCreate)
	r.Get("/routes", h.handleList)
	r.Get("/routes/{routeID}", h.handleGet)
	r.Patch("/routes/{routeID}/status", h.handleChangeStatus)
	r.Get("/routes/{routeID}/history", h.handleHistory)
	r.Post("/routes/estimate", h.handleEstimate)
}

type createRequest struct {
	Type         string              `json:"type"`
	Origin       models.Address      `json:"origin"`
	Destination  models.Address      `json:"destination"`
	DistanceKm   float64             `json:"distanceKm"`
	NumStops     int                 `json:"numStops"`
	Restrictions models.Restrictions `json:"restrictions"`
	DriverID     string              `json:"driverId,omitempty"`
}

type routeResponse struct {
	ID           string              `json:"id"`
	Version      int                 `json:"version"`
	Status       string              `json:"status"`
	Type         string              `json:"type"`
	Origin       models.Address      `json:"origin"`
	Destination  models.Address      `json:"destination"`
	DistanceKm   float64             `json:"distanceKm"`
	EstimatedMin float64             `json:"estimatedMin"`
	NumStops     int                 `json:"numStops"`
	Restrictions models.Restrictions `json:"restrictions"`
	DriverID     string              `json:"driverId,omitempty"`
	CreatedAt    string              `json:"createdAt"`
	UpdatedAt    string              `json:"updatedAt"`
}

func toRouteResponse(route *models.Route) routeResponse {
	resp := routeResponse{
		ID:           route.ID.String(),
		Version:      route.Version,
		Status:       string(route.Status),
		Type:         string(route.Type),
		Origin:       route.Origin,
		Destination:  route.Destination,
		DistanceKm:   route.DistanceKm,
		EstimatedMin: route.EstimatedMin,
		NumStops:     route.NumStops,
		Restrictions: route.Restrictions,
		CreatedAt:    route.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		UpdatedAt:    route.UpdatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if !route.DriverID.IsNil() {
		resp.DriverID = route.DriverID.String()
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
		Type:         models.RouteType(req.Type),
		Origin:       req.Origin,
		Destination:  req.Destination,
		DistanceKm:   req.DistanceKm,
		NumStops:     req.NumStops,
		Restrictions: req.Restrictions,
	}
	if req.DriverID != "" {
		driverID, err := id.ParseDriverID(req.DriverID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		in.DriverID = driverID
	}

	route, err := h.routes.Create(ctx, in)
	if err != nil {
		h.logger.WarnContext(ctx, "route creation rejected", "error", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toRouteResponse(route))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	routeID, err := id.ParseRouteID(chi.URLParam(r, "routeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	route, err := h.routes.Get(r.Context(), routeID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRouteResponse(route))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := store.Filter{Limit: 100}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := models.ParseRouteStatus(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("driverId"); raw != "" {
		driverID, err := id.ParseDriverID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.DriverID = driverID
	}

	routes, err := h.routes.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "route list failed", "error", err)
		shared.WriteError(w, err)
		return
	}
	out := make([]routeResponse, 0, len(routes))
	for _, route := range routes {
		out = append(out, toRouteResponse(route))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"routes": out})
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	routeID, err := id.ParseRouteID(chi.URLParam(r, "routeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req changeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	target, err := models.ParseRouteStatus(req.Status)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	route, err := h.routes.ChangeStatus(ctx, routeID, target)
	if err != nil {
		h.logger.WarnContext(ctx, "route transition rejected",
			"route_id", routeID,
			"target", target,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRouteResponse(route))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	routeID, err := id.ParseRouteID(chi.URLParam(r, "routeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	entries, err := h.history.ListByEntity(r.Context(), "route", routeID.String())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{
			Timestamp:      e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
			EventType:      string(e.EventType),
			PreviousStatus: e.PreviousStatus,
			NewStatus:      e.NewStatus,
			ActorID:        e.ActorID,
			Description:    e.Description,
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"history": items})
}

type estimateRequest struct {
	Type       string  `json:"type"`
	DistanceKm float64 `json:"distanceKm"`
	NumStops   int     `json:"numStops"`
}

func (h *Handler) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	m, err := h.routes.Estimate(r.Context(), models.RouteType(req.Type), req.DistanceKm, req.NumStops)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, m)
}
