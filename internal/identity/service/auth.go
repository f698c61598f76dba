package service

import (
	"context"
	"errors"
	"time"

	"correspondence/internal/audit"
	"correspondence/internal/credential"
	"correspondence/internal/identity/models"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/platform/sentinel"
	"correspondence/pkg/requestcontext"
)

// LoginResult is an issued bearer token for an authenticated user.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// Login verifies username and password and issues a token. Unknown users and
// wrong passwords produce the same Unauthorized error.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	start := time.Now()
	if s.tokens == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "token issuer not configured")
	}
	clientIP := requestcontext.ClientIP(ctx)
	if s.guard != nil {
		if err := s.guard.Check(ctx, username, clientIP); err != nil {
			return nil, err
		}
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.loginFailed(ctx, start, username, "unknown_user")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, s.loginFailed(ctx, start, username, "bad_password")
	}

	token, expiresAt, err := s.tokens.Issue(credential.Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Division: user.Division,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	if s.guard != nil {
		if err := s.guard.Clear(ctx, username, clientIP); err != nil {
			s.logger.WarnContext(ctx, "failed to clear login failures", "username", username, "error", err)
		}
	}
	s.logAudit(ctx, audit.EventLoginSucceeded, user, "client", requestcontext.Client(ctx), "client_ip", clientIP)
	if s.metrics != nil {
		s.metrics.ObserveLogin(start, "")
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *Service) loginFailed(ctx context.Context, start time.Time, username, reason string) error {
	s.logger.WarnContext(ctx, audit.EventLoginFailed.String(),
		"event", audit.EventLoginFailed.String(),
		"log_type", "audit",
		"username", username,
		"reason", reason,
		"client_ip", requestcontext.ClientIP(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			Subject: username,
			Action:  audit.EventLoginFailed.String(),
			Reason:  reason,
		})
	}
	if s.guard != nil {
		if err := s.guard.RecordFailure(ctx, username, requestcontext.ClientIP(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to record login failure", "username", username, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveLogin(start, reason)
	}
	return dErrors.New(dErrors.CodeUnauthorized, "invalid username or password").
		WithReason(models.ReasonInvalidCredentials)
}

// Logout revokes the token id until the token would have expired anyway.
func (s *Service) Logout(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return dErrors.New(dErrors.CodeBadRequest, "token id required")
	}
	if s.revocations == nil {
		return nil
	}
	ttl := expiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return nil
	}
	if err := s.revocations.RevokeToken(ctx, jti, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDependency, "failed to revoke token")
	}
	s.logAudit(ctx, audit.EventLoggedOut, nil, "user_id", requestcontext.UserID(ctx), "jti", jti)
	return nil
}

// IsTokenRevoked reports whether jti was logged out.
func (s *Service) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if s.revocations == nil {
		return false, nil
	}
	if s.metrics != nil {
		defer s.metrics.ObserveRevocationCheck(time.Now())
	}
	return s.revocations.IsRevoked(ctx, jti)
}

// ChangePassword verifies the current password and stores a digest of the
// new one. Role rules are not re-validated.
func (s *Service) ChangePassword(ctx context.Context, id domain.UserID, currentPassword, newPassword string) error {
	if err := models.ValidatePassword(newPassword); err != nil {
		return err
	}

	var changed *models.User
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.users.FindByID(txCtx, id)
		if err != nil {
			return wrapUserErr(err, "failed to load user")
		}
		if !s.hasher.Verify(user.PasswordHash, currentPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "current password is incorrect").
				WithReason(models.ReasonCurrentPasswordInvalid).WithField("current_password")
		}
		digest, err := s.hasher.Hash(newPassword)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
		}
		user.PasswordHash = digest
		user.UpdatedAt = requestcontext.Now(txCtx)
		if err := s.users.Update(txCtx, user); err != nil {
			return wrapUserErr(err, "failed to update password")
		}
		changed = user
		return nil
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, audit.EventPasswordChanged, changed)
	return nil
}
