package credential

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
)

// Claims is what an access token asserts about its holder.
type Claims struct {
	UserID   domain.UserID
	Username string
	Role     domain.Role
	Division domain.Division
}

// Decoded is a verified token's claims with its registered metadata.
type Decoded struct {
	Claims
	ID        string
	ExpiresAt time.Time
}

type accessTokenClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Division string `json:"division,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and decodes HS256 access tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

type TokenOption func(*TokenService)

// WithClock overrides the clock used for iat/exp.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewTokenService(signingKey, issuer string, ttl time.Duration, opts ...TokenOption) *TokenService {
	s := &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for c and returns it with its expiry.
func (s *TokenService) Issue(c Claims) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessTokenClaims{
		UserID:   c.UserID.String(),
		Username: c.Username,
		Role:     c.Role.String(),
		Division: c.Division.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Decode verifies signature, issuer and expiry.
func (s *TokenService) Decode(tokenString string) (*Decoded, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &accessTokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*accessTokenClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	id, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil || id <= 0 {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	out := &Decoded{
		Claims: Claims{
			UserID:   domain.UserID(id),
			Username: claims.Username,
			Role:     domain.Role(claims.Role),
			Division: domain.Division(claims.Division),
		},
		ID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
