// Package handler exposes letter templates over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"correspondence/internal/attachment"
	"correspondence/internal/query"
	"correspondence/internal/template/models"
	"correspondence/internal/template/service"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/platform/httputil"
	"correspondence/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type Service interface {
	Create(ctx context.Context, fields models.Fields, upload *attachment.Upload, author domain.UserID) (*models.Template, error)
	Delete(ctx context.Context, id domain.TemplateID, actor domain.UserID) error
	Get(ctx context.Context, id domain.TemplateID) (*models.Template, error)
	List(ctx context.Context, search string, page query.Page) (query.Result[*models.Template], error)
	OpenAttachment(ctx context.Context, id domain.TemplateID) (*service.Download, error)
}

type Handler struct {
	service   Service
	logger    *slog.Logger
	maxUpload int64
}

func New(service Service, logger *slog.Logger, maxUpload int64) *Handler {
	return &Handler{service: service, logger: logger, maxUpload: maxUpload}
}

// Register mounts the read-only routes open to any authenticated user.
func (h *Handler) Register(r chi.Router) {
	r.Get("/templates", h.HandleList)
	r.Get("/templates/{id}", h.HandleGet)
	r.Get("/templates/{id}/file", h.HandleDownload)
}

// RegisterAdmin mounts template management. The router must gate it on the
// secretary role.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/templates", h.HandleCreate)
	r.Delete("/templates/{id}", h.HandleDelete)
}

type TemplateResponse struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	AttachmentName string    `json:"attachment_name"`
	InsertedBy     *int64    `json:"inserted_by"`
	InsertedAt     time.Time `json:"inserted_at"`
}

type TemplateListResponse struct {
	Items      []TemplateResponse `json:"items"`
	Pagination query.Pagination   `json:"pagination"`
}

func toTemplateResponse(t *models.Template) TemplateResponse {
	resp := TemplateResponse{
		ID:             int64(t.ID),
		Name:           t.Name,
		Description:    t.Description,
		AttachmentName: attachment.DisplayName(t.AttachmentPath),
		InsertedAt:     t.InsertedAt,
	}
	if t.InsertedBy != nil {
		id := int64(*t.InsertedBy)
		resp.InsertedBy = &id
	}
	return resp
}

// HandleList handles GET /templates?page=&per_page=&search=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	page, err := query.ParsePage(q.Get("page"), q.Get("per_page"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.List(ctx, q.Get("search"), page)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list templates", err)
		return
	}
	items := make([]TemplateResponse, 0, len(res.Items))
	for _, t := range res.Items {
		items = append(items, toTemplateResponse(t))
	}
	httputil.WriteJSON(w, http.StatusOK, TemplateListResponse{Items: items, Pagination: res.Pagination})
}

// HandleCreate handles multipart POST /templates.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form, err := attachment.ReadForm(w, r, h.maxUpload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer form.Close()

	t, err := h.service.Create(ctx, models.FieldsFromValues(form.Values), form.Upload, requestcontext.UserID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "failed to create template", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toTemplateResponse(t))
}

// HandleGet handles GET /templates/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseTemplateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.Get(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load template", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTemplateResponse(t))
}

// HandleDelete handles DELETE /templates/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseTemplateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, id, requestcontext.UserID(ctx)); err != nil {
		h.writeServiceError(ctx, w, "failed to delete template", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDownload handles GET /templates/{id}/file.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseTemplateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	dl, err := h.service.OpenAttachment(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to open template file", err)
		return
	}
	defer dl.Content.Close()
	if err := httputil.WriteFile(w, dl.Filename, dl.Content); err != nil {
		h.logger.WarnContext(ctx, "template download interrupted",
			"request_id", requestcontext.RequestID(ctx),
			"template_id", id,
			"error", err,
		)
	}
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeDependency, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	default:
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
