// Package handler exposes the application workflow over HTTP.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/transitdesk/be-concessions/internal/domain"
	"github.com/transitdesk/be-concessions/internal/errors"
	"github.com/transitdesk/be-concessions/internal/logger"
	"github.com/transitdesk/be-concessions/internal/service"
)

// Actor identity headers. Authentication itself is an upstream concern (the
// gateway validates the session); these headers carry the verified identity
// into explicit executor parameters.
const (
	headerActorRole = "X-Actor-Role"
	headerActorID   = "X-Actor-Id"
)

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	service *service.ApplicationService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(svc *service.ApplicationService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{service: svc, log: log}
}

// CreateApplication handles POST /api/v1/applications.
func (h *HTTPHandler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req service.CreateApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	app, err := h.service.CreateApplication(r.Context(), actor, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, app)
}

// GetApplication handles GET /api/v1/applications/{id}.
func (h *HTTPHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	app, err := h.service.GetApplication(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, app)
}

// ListApplications handles GET /api/v1/applications.
func (h *HTTPHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var status *domain.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := domain.ParseStatus(raw)
		if err != nil {
			h.writeError(w, errors.InvalidInput("status", err.Error()))
			return
		}
		status = &parsed
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	apps, total, err := h.service.ListApplications(r.Context(), actor, status, page, pageSize)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"applications": apps,
		"total":        total,
		"page":         page,
		"page_size":    pageSize,
	})
}

// UpdateStatus handles PATCH /api/v1/applications/{id}/status.
func (h *HTTPHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var body struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	status, err := domain.ParseStatus(body.Status)
	if err != nil {
		h.writeError(w, errors.InvalidInput("status", err.Error()))
		return
	}

	app, err := h.service.RequestTransition(r.Context(), actor, &service.TransitionRequest{
		ApplicationID: r.PathValue("id"),
		Status:        status,
		Reason:        body.Reason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, app)
}

// SubmitPayment handles POST /api/v1/applications/{id}/payment. A valid
// payload transitions the application to payment_pending.
func (h *HTTPHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var payment domain.PaymentDetails
	if err := json.NewDecoder(r.Body).Decode(&payment); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	app, err := h.service.RequestTransition(r.Context(), actor, &service.TransitionRequest{
		ApplicationID: r.PathValue("id"),
		Status:        domain.StatusPaymentPending,
		Payment:       &payment,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, app)
}

// GetHistory handles GET /api/v1/applications/{id}/history.
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	entries, err := h.service.GetHistory(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// ── helpers ──────────────────────────────────────────────────────────────────

func actorFromRequest(r *http.Request) (service.Actor, error) {
	role, err := domain.ParseRole(r.Header.Get(headerActorRole))
	if err != nil {
		return service.Actor{}, errors.Forbidden("missing or unknown actor role")
	}
	id := r.Header.Get(headerActorID)
	if id == "" {
		return service.Actor{}, errors.Forbidden("missing actor id")
	}
	return service.Actor{Role: role, ScopeID: id}, nil
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response body")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]string{"message": errors.Message(err)})
}
