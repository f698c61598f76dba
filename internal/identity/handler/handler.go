// Package handler exposes login, self-service password changes and user
// administration over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"correspondence/internal/identity/models"
	"correspondence/internal/identity/service"
	"correspondence/internal/query"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/platform/httputil"
	authmw "correspondence/pkg/platform/middleware/auth"
	"correspondence/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the identity service as seen by the transport layer.
type Service interface {
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Logout(ctx context.Context, jti string, expiresAt time.Time) error
	ChangePassword(ctx context.Context, id domain.UserID, currentPassword, newPassword string) error
	GetUser(ctx context.Context, id domain.UserID) (*models.User, error)
	ListUsers(ctx context.Context, search string, page query.Page) (query.Result[*models.User], error)
	CreateUser(ctx context.Context, fullName string, role domain.Role, division domain.Division) (*service.CreateResult, error)
	UpdateUser(ctx context.Context, id domain.UserID, patch models.UserPatch) (*service.UpdateResult, error)
	DeleteUser(ctx context.Context, id domain.UserID) error
}

// Handler serves /auth and /users.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts routes that need no bearer token.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
}

// Register mounts routes available to any authenticated user.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/logout", h.HandleLogout)
	r.Post("/auth/change-password", h.HandleChangePassword)
	r.Get("/auth/me", h.HandleMe)
}

// RegisterAdmin mounts user administration. The router must gate it on the
// secretary role.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/users", h.HandleListUsers)
	r.Post("/users", h.HandleCreateUser)
	r.Get("/users/{id}", h.HandleGetUser)
	r.Patch("/users/{id}", h.HandleUpdateUser)
	r.Delete("/users/{id}", h.HandleDeleteUser)
}

// HandleLogin handles POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Login(ctx, req.Username, req.Password)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeUnauthorized) && !dErrors.HasCode(err, dErrors.CodeRateLimited) {
			h.logger.ErrorContext(ctx, "login failed",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: res.Token,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
		User:        toUserResponse(res.User),
	})
}

// HandleLogout handles POST /auth/logout by revoking the presented token.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	err := h.service.Logout(ctx, requestcontext.TokenID(ctx), authmw.TokenExpiresAt(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "logout failed",
			"request_id", requestID,
			"user_id", requestcontext.UserID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleChangePassword handles POST /auth/change-password for the caller.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caller := requestcontext.Principal(ctx)
	if !caller.Authenticated() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.ChangePasswordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.ChangePassword(ctx, caller.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.logger.WarnContext(ctx, "password change failed",
			"request_id", requestID,
			"user_id", caller.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.Principal(ctx)
	if !caller.Authenticated() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	user, err := h.service.GetUser(ctx, caller.ID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load current user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleListUsers handles GET /users?page=&per_page=&search=.
func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page, err := query.ParsePage(q.Get("page"), q.Get("per_page"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.ListUsers(ctx, q.Get("search"), page)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list users", err)
		return
	}

	items := make([]UserResponse, 0, len(res.Items))
	for _, u := range res.Items {
		items = append(items, toUserResponse(u))
	}
	httputil.WriteJSON(w, http.StatusOK, UserListResponse{Items: items, Pagination: res.Pagination})
}

// HandleCreateUser handles POST /users.
func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateUserRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	role, division := req.Typed()
	res, err := h.service.CreateUser(ctx, req.FullName, role, division)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to create user", err)
		return
	}

	h.logger.InfoContext(ctx, "user created",
		"request_id", requestID,
		"user_id", res.User.ID,
		"role", res.User.Role,
	)
	httputil.WriteJSON(w, http.StatusCreated, CreateUserResponse{
		User:            toUserResponse(res.User),
		InitialPassword: res.InitialPassword,
	})
}

// HandleGetUser handles GET /users/{id}.
func (h *Handler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	user, err := h.service.GetUser(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleUpdateUser handles PATCH /users/{id}.
func (h *Handler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	id, err := domain.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.UpdateUserRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.UpdateUser(ctx, id, req.Patch())
	if err != nil {
		h.writeServiceError(ctx, w, "failed to update user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, UpdateUserResponse{
		User:             toUserResponse(res.User),
		CredentialsReset: res.CredentialsReset,
		InitialPassword:  res.InitialPassword,
	})
}

// HandleDeleteUser handles DELETE /users/{id}.
func (h *Handler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if id == requestcontext.UserID(ctx) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "cannot delete your own account").WithReason("self_delete"))
		return
	}

	if err := h.service.DeleteUser(ctx, id); err != nil {
		h.writeServiceError(ctx, w, "failed to delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError logs unexpected failures at error level and client
// mistakes at warn level, then writes the envelope.
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
