package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/requestcontext"
)

// Claims represents the claims we expect from the token validator.
type Claims struct {
	UserID    domain.UserID
	Username  string
	Role      domain.Role
	Division  domain.Division
	JTI       string // token id for revocation tracking
	ExpiresAt time.Time
}

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// TokenRevocationChecker reports whether a token id has been revoked.
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// PrincipalLoader reloads the caller from the user store so role and division
// reflect current state rather than what the token claimed at issue time.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, id domain.UserID) (requestcontext.Caller, error)
}

type contextKeyExpiresAt struct{}

// TokenExpiresAt returns the expiry of the bearer token used for the request.
func TokenExpiresAt(ctx context.Context) time.Time {
	t, _ := ctx.Value(contextKeyExpiresAt{}).(time.Time)
	return t
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the bearer token, checks revocation, reloads the user
// and injects the resulting principal. revocationChecker may be nil.
func RequireAuth(validator TokenValidator, revocationChecker TokenRevocationChecker, loader PrincipalLoader, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			if revocationChecker != nil {
				if claims.JTI == "" {
					logger.WarnContext(ctx, "unauthorized access - missing token jti",
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
					return
				}
				revoked, err := revocationChecker.IsTokenRevoked(ctx, claims.JTI)
				if err != nil {
					logger.ErrorContext(ctx, "failed to check token revocation",
						"error", err,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to validate token")
					return
				}
				if revoked {
					logger.WarnContext(ctx, "unauthorized access - token revoked",
						"jti", claims.JTI,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Token has been revoked")
					return
				}
			}

			caller, err := loader.LoadPrincipal(ctx, claims.UserID)
			if err != nil {
				if dErrors.HasCode(err, dErrors.CodeNotFound) {
					logger.WarnContext(ctx, "unauthorized access - user no longer exists",
						"user_id", claims.UserID,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "User no longer exists")
					return
				}
				logger.ErrorContext(ctx, "failed to load principal",
					"error", err,
					"user_id", claims.UserID,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to load user")
				return
			}

			ctx = requestcontext.WithPrincipal(ctx, caller)
			ctx = requestcontext.WithTokenID(ctx, claims.JTI)
			ctx = context.WithValue(ctx, contextKeyExpiresAt{}, claims.ExpiresAt)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated callers whose role is not in roles.
// Must run after RequireAuth.
func RequireRole(logger *slog.Logger, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := requestcontext.Principal(ctx)
			if !caller.Authenticated() {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			if !slices.Contains(roles, caller.Role) {
				logger.WarnContext(ctx, "forbidden - role not permitted",
					"user_id", caller.ID,
					"role", caller.Role,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
