// Package notification builds a user's feed of mail they have not yet read.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	mailmodels "correspondence/internal/mail/models"
	"correspondence/pkg/domain"
	"correspondence/pkg/requestcontext"
)

//go:generate mockgen -source=notification.go -destination=mocks/mocks.go -package=mocks PrincipalLoader,MailSource

// PrincipalLoader resolves a user's current role and division.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, id domain.UserID) (requestcontext.Caller, error)
}

// MailSource lists records a user has not read, newest insertion first.
type MailSource interface {
	ListUnread(ctx context.Context, kind mailmodels.Kind, user domain.UserID, division domain.Division) ([]*mailmodels.Mail, error)
}

// Notification is one unread record in the feed.
type Notification struct {
	ID       string          `json:"id"`
	Kind     mailmodels.Kind `json:"kind"`
	MailID   domain.MailID   `json:"mail_id"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Date     time.Time       `json:"date"`
	Division domain.Division `json:"division"`
	IsRead   bool            `json:"is_read"`
}

type Service struct {
	principals PrincipalLoader
	mail       MailSource
	logger     *slog.Logger
}

func New(principals PrincipalLoader, mail MailSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{principals: principals, mail: mail, logger: logger}
}

// UnreadFor returns the feed for user: incoming then outgoing mail in the
// user's scope, merged and ordered by insertion time, newest first. Equal
// times keep incoming before outgoing.
func (s *Service) UnreadFor(ctx context.Context, user domain.UserID) ([]Notification, error) {
	caller, err := s.principals.LoadPrincipal(ctx, user)
	if err != nil {
		return nil, err
	}
	scope := caller.ScopeDivision()

	var feed []Notification
	for _, kind := range mailmodels.Kinds {
		unread, err := s.mail.ListUnread(ctx, kind, user, scope)
		if err != nil {
			return nil, err
		}
		for _, m := range unread {
			feed = append(feed, toNotification(m))
		}
	}
	slices.SortStableFunc(feed, func(a, b Notification) int {
		return b.Date.Compare(a.Date)
	})

	s.logger.DebugContext(ctx, "notification feed built",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", user,
		"division", scope,
		"count", len(feed),
	)
	return feed, nil
}

func toNotification(m *mailmodels.Mail) Notification {
	n := Notification{
		Kind:     m.Kind,
		MailID:   m.ID,
		Date:     m.InsertedAt,
		Division: m.Division,
	}
	if m.Kind == mailmodels.KindIncoming {
		n.ID = "in-" + m.ID.String()
		n.Title = "New Incoming Mail"
		n.Message = fmt.Sprintf("Mail from %s regarding '%s' has been received.", m.Sender, m.Subject)
	} else {
		n.ID = "out-" + m.ID.String()
		n.Title = "New Outgoing Mail"
		n.Message = fmt.Sprintf("Mail to %s regarding '%s' has been created.", m.AddressedTo, m.Subject)
	}
	return n
}
