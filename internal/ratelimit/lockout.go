// Package ratelimit locks out a username and client address pair after
// repeated failed logins.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"time"

	"correspondence/internal/audit"
	"correspondence/internal/ratelimit/models"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/requestcontext"
)

// ReasonLoginLocked marks rejections caused by an active lockout.
const ReasonLoginLocked = "login_locked"

type Store interface {
	RecordFailure(ctx context.Context, key string, now time.Time, window time.Duration) (*models.Lockout, error)
	Lock(ctx context.Context, key string, now time.Time, d time.Duration) error
	Get(ctx context.Context, key string, now time.Time) (*models.Lockout, error)
	Clear(ctx context.Context, key string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

type Service struct {
	store          Store
	policy         models.Policy
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithPolicy overrides models.DefaultPolicy. Non-positive fields keep the default.
func WithPolicy(p models.Policy) Option {
	return func(s *Service) {
		if p.Attempts > 0 {
			s.policy.Attempts = p.Attempts
		}
		if p.Window > 0 {
			s.policy.Window = p.Window
		}
		if p.LockDuration > 0 {
			s.policy.LockDuration = p.LockDuration
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, policy: models.DefaultPolicy()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Check rejects a login attempt while username is locked out from clientIP.
func (s *Service) Check(ctx context.Context, username, clientIP string) error {
	now := requestcontext.Now(ctx)
	record, err := s.store.Get(ctx, models.Key(username, clientIP), now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDependency, "failed to check login lockout")
	}
	if !record.IsLockedAt(now) {
		return nil
	}
	wait := int(math.Ceil(record.RetryAfter(now).Minutes()))
	return dErrors.Newf(dErrors.CodeRateLimited, "too many failed login attempts, try again in %d minute(s)", wait).
		WithReason(ReasonLoginLocked)
}

// RecordFailure counts a failed attempt and starts a lockout once the policy
// limit is reached within the window.
func (s *Service) RecordFailure(ctx context.Context, username, clientIP string) error {
	now := requestcontext.Now(ctx)
	key := models.Key(username, clientIP)
	record, err := s.store.RecordFailure(ctx, key, now, s.policy.Window)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDependency, "failed to record login failure")
	}
	if record.Failures < s.policy.Attempts || record.IsLockedAt(now) {
		return nil
	}
	if err := s.store.Lock(ctx, key, now, s.policy.LockDuration); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDependency, "failed to lock login")
	}

	s.logger.WarnContext(ctx, audit.EventLoginLocked.String(),
		"event", audit.EventLoginLocked.String(),
		"log_type", "audit",
		"username", username,
		"client_ip", clientIP,
		"failures", record.Failures,
		"locked_until", now.Add(s.policy.LockDuration),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.auditPublisher != nil {
		if err := s.auditPublisher.Emit(ctx, audit.Event{Subject: username, Action: audit.EventLoginLocked.String()}); err != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event", "event", audit.EventLoginLocked.String(), "error", err)
		}
	}
	return nil
}

// Clear forgets failures after a successful login.
func (s *Service) Clear(ctx context.Context, username, clientIP string) error {
	if err := s.store.Clear(ctx, models.Key(username, clientIP)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDependency, "failed to clear login failures")
	}
	return nil
}
