package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"linkage/internal/identity/models"
	"linkage/internal/platform/middleware"
	"linkage/internal/transport/http/shared"
	dErrors "linkage/pkg/domain-errors"
)

// Service defines the reconciliation operation the handler delegates to.
type Service interface {
	Reconcile(ctx context.Context, email, phone string) (*models.ClusterView, error)
}

// Handler exposes the identify endpoint. It owns validation and error
// translation; everything else happens in the service.
type Handler struct {
	service Service
	logger  *slog.Logger
	limit   func(http.Handler) http.Handler
}

// New creates the identity handler. limit wraps the POST route in rate
// limiting; pass nil to skip it.
func New(service Service, logger *slog.Logger, limit func(http.Handler) http.Handler) *Handler {
	return &Handler{service: service, logger: logger, limit: limit}
}

// Register mounts the identify routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/identify", h.handleUsage)
	if h.limit != nil {
		r.With(h.limit).Post("/identify", h.handleIdentify)
	} else {
		r.Post("/identify", h.handleIdentify)
	}
}

type identifyResponse struct {
	Contact *models.ClusterView `json:"contact"`
}

func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, err := ParseIdentifyRequest(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid identify request",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	view, err := h.service.Reconcile(ctx, req.Email, req.PhoneNumber)
	if err != nil {
		h.logger.ErrorContext(ctx, "reconcile failed",
			"request_id", requestID,
			"code", string(dErrors.CodeOf(err)),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, identifyResponse{Contact: view})
}

// handleUsage mirrors the original demo API: GET answers with a usage hint.
func (h *Handler) handleUsage(w http.ResponseWriter, _ *http.Request) {
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Use POST /identify with JSON body",
		"example": map[string]string{
			"email":       "doc@example.com",
			"phoneNumber": "123456",
		},
	})
}
