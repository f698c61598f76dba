// Package handler serves the unread notification feed.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"correspondence/internal/notification"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/platform/httputil"
	"correspondence/pkg/requestcontext"
)

type Service interface {
	UnreadFor(ctx context.Context, user domain.UserID) ([]notification.Notification, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/notifications", h.HandleList)
}

type ListResponse struct {
	Items []notification.Notification `json:"items"`
	Total int                         `json:"total"`
}

// HandleList handles GET /notifications for the caller.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.Principal(ctx)
	if !caller.Authenticated() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	feed, err := h.service.UnreadFor(ctx, caller.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build notification feed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", caller.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if feed == nil {
		feed = []notification.Notification{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Items: feed, Total: len(feed)})
}
