// Package handler exposes the incoming and outgoing mail registers over HTTP.
// Both kinds share one set of routes under /mail/{kind}.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"correspondence/internal/attachment"
	"correspondence/internal/mail/models"
	"correspondence/internal/mail/service"
	"correspondence/internal/query"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/platform/httputil"
	"correspondence/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the mail service as seen by the transport layer.
type Service interface {
	Create(ctx context.Context, kind models.Kind, fields models.Fields, upload *attachment.Upload, actor models.Actor) (*models.Mail, error)
	Update(ctx context.Context, kind models.Kind, id domain.MailID, patch models.Patch, upload *attachment.Upload, actor models.Actor) (*models.Mail, error)
	Delete(ctx context.Context, kind models.Kind, id domain.MailID, actor models.Actor) error
	Get(ctx context.Context, kind models.Kind, id domain.MailID, actor models.Actor) (*models.Mail, error)
	List(ctx context.Context, kind models.Kind, filter query.Filter, page query.Page) (query.Result[*models.Mail], error)
	MarkRead(ctx context.Context, kind models.Kind, id domain.MailID, actor models.Actor) error
	OpenAttachment(ctx context.Context, kind models.Kind, id domain.MailID, actor models.Actor) (*service.Download, error)
}

// Handler serves /mail/{kind}.
type Handler struct {
	service   Service
	logger    *slog.Logger
	maxUpload int64
}

// New constructs a Handler accepting uploads of at most maxUpload bytes.
func New(service Service, logger *slog.Logger, maxUpload int64) *Handler {
	return &Handler{service: service, logger: logger, maxUpload: maxUpload}
}

// Register mounts the mail routes. Every route needs an authenticated caller.
func (h *Handler) Register(r chi.Router) {
	r.Route("/mail/{kind}", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
		r.Get("/{id}/file", h.HandleDownload)
		r.Post("/{id}/read", h.HandleMarkRead)
	})
}

// HandleList handles GET /mail/{kind}?page=&per_page=&search=&start_date=&end_date=&division=.
// Callers other than the secretary are always narrowed to their own division.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	caller := requestcontext.Principal(ctx)
	q := r.URL.Query()

	page, err := query.ParsePage(q.Get("page"), q.Get("per_page"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	start, end, err := query.ParseDateRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter := query.Filter{Search: q.Get("search"), Start: start, End: end, Division: caller.ScopeDivision()}
	if filter.Division.IsNone() {
		if filter.Division, err = domain.ParseDivision(q.Get("division")); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	res, err := h.service.List(ctx, kind, filter, page)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list mail", err)
		return
	}
	items := make([]MailResponse, 0, len(res.Items))
	for _, m := range res.Items {
		items = append(items, toMailResponse(m, caller.ID))
	}
	httputil.WriteJSON(w, http.StatusOK, MailListResponse{Items: items, Pagination: res.Pagination})
}

// HandleCreate handles multipart POST /mail/{kind}.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	form, err := attachment.ReadForm(w, r, h.maxUpload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer form.Close()

	mf := models.FormFromValues(kind, form.Values)
	mf.Normalize()
	fields, err := mf.Fields()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	caller := requestcontext.Principal(ctx)
	m, err := h.service.Create(ctx, kind, fields, form.Upload, models.ActorFrom(caller))
	if err != nil {
		h.writeServiceError(ctx, w, "failed to create mail", err)
		return
	}

	h.logger.InfoContext(ctx, "mail created",
		"request_id", requestID,
		"mail_kind", kind,
		"mail_id", m.ID,
		"user_id", caller.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, toMailResponse(m, caller.ID))
}

// HandleGet handles GET /mail/{kind}/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	caller := requestcontext.Principal(ctx)

	m, err := h.service.Get(ctx, kind, id, models.ActorFrom(caller))
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load mail", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMailResponse(m, caller.ID))
}

// HandleUpdate handles multipart PATCH /mail/{kind}/{id}. Omitted fields are
// kept; a file part replaces the attachment.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}

	form, err := attachment.ReadForm(w, r, h.maxUpload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer form.Close()

	mf := models.FormFromValues(kind, form.Values)
	mf.Normalize()
	patch, err := mf.Patch()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	caller := requestcontext.Principal(ctx)
	m, err := h.service.Update(ctx, kind, id, patch, form.Upload, models.ActorFrom(caller))
	if err != nil {
		h.writeServiceError(ctx, w, "failed to update mail", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMailResponse(m, caller.ID))
}

// HandleDelete handles DELETE /mail/{kind}/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, kind, id, models.ActorFrom(requestcontext.Principal(ctx))); err != nil {
		h.writeServiceError(ctx, w, "failed to delete mail", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMarkRead handles POST /mail/{kind}/{id}/read.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkRead(ctx, kind, id, models.ActorFrom(requestcontext.Principal(ctx))); err != nil {
		h.writeServiceError(ctx, w, "failed to mark mail as read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDownload handles GET /mail/{kind}/{id}/file.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}

	dl, err := h.service.OpenAttachment(ctx, kind, id, models.ActorFrom(requestcontext.Principal(ctx)))
	if err != nil {
		h.writeServiceError(ctx, w, "failed to open attachment", err)
		return
	}
	defer dl.Content.Close()
	if err := httputil.WriteFile(w, dl.Filename, dl.Content); err != nil {
		h.logger.WarnContext(ctx, "attachment download interrupted",
			"request_id", requestcontext.RequestID(ctx),
			"mail_kind", kind,
			"mail_id", id,
			"error", err,
		)
	}
}

func (h *Handler) kind(w http.ResponseWriter, r *http.Request) (models.Kind, bool) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return kind, true
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (models.Kind, domain.MailID, bool) {
	kind, ok := h.kind(w, r)
	if !ok {
		return "", 0, false
	}
	id, err := domain.ParseMailID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", 0, false
	}
	return kind, id, true
}

// writeServiceError logs unexpected failures at error level and client
// mistakes at warn level, then writes the envelope.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"user_id", requestcontext.UserID(ctx),
		"error", err,
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeDependency, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, msg, attrs...)
	default:
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
