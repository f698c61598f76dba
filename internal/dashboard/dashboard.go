// Package dashboard serves the headline counts shown after login.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	mailmodels "correspondence/internal/mail/models"
	"correspondence/internal/notification"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/platform/httputil"
	"correspondence/pkg/requestcontext"
)

type MailCounter interface {
	Count(ctx context.Context, kind mailmodels.Kind) (int, error)
}

type UserCounter interface {
	CountUsers(ctx context.Context) (int, error)
}

type TemplateCounter interface {
	Count(ctx context.Context) (int, error)
}

type Feed interface {
	UnreadFor(ctx context.Context, user domain.UserID) ([]notification.Notification, error)
}

// Summary holds the totals across every division plus the caller's unread
// count.
type Summary struct {
	TotalIncoming  int `json:"total_incoming"`
	TotalOutgoing  int `json:"total_outgoing"`
	TotalUsers     int `json:"total_users"`
	TotalTemplates int `json:"total_templates"`
	Unread         int `json:"unread"`
}

type Service struct {
	mail      MailCounter
	users     UserCounter
	templates TemplateCounter
	feed      Feed
}

func New(mail MailCounter, users UserCounter, templates TemplateCounter, feed Feed) *Service {
	return &Service{mail: mail, users: users, templates: templates, feed: feed}
}

// Summary computes the four totals and the caller's feed concurrently. The
// first failure cancels the rest.
func (s *Service) Summary(ctx context.Context, user domain.UserID) (*Summary, error) {
	var sum Summary
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		sum.TotalIncoming, err = s.mail.Count(ctx, mailmodels.KindIncoming)
		return err
	})
	g.Go(func() (err error) {
		sum.TotalOutgoing, err = s.mail.Count(ctx, mailmodels.KindOutgoing)
		return err
	})
	g.Go(func() (err error) {
		sum.TotalUsers, err = s.users.CountUsers(ctx)
		return err
	})
	g.Go(func() (err error) {
		sum.TotalTemplates, err = s.templates.Count(ctx)
		return err
	})
	g.Go(func() error {
		feed, err := s.feed.UnreadFor(ctx, user)
		sum.Unread = len(feed)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &sum, nil
}

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/dashboard/summary", h.HandleSummary)
}

// HandleSummary handles GET /dashboard/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.Principal(ctx)
	if !caller.Authenticated() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	sum, err := h.service.Summary(ctx, caller.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build dashboard summary",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", caller.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}
