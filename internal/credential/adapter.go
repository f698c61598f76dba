package credential

import (
	authmw "correspondence/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims converts decoded token claims for the auth middleware.
func ToMiddlewareClaims(d *Decoded) *authmw.Claims {
	return &authmw.Claims{
		UserID:    d.UserID,
		Username:  d.Username,
		Role:      d.Role,
		Division:  d.Division,
		JTI:       d.ID,
		ExpiresAt: d.ExpiresAt,
	}
}

// MiddlewareAdapter exposes a TokenService as an authmw.TokenValidator.
type MiddlewareAdapter struct {
	service *TokenService
}

func NewMiddlewareAdapter(service *TokenService) *MiddlewareAdapter {
	return &MiddlewareAdapter{service: service}
}

func (a *MiddlewareAdapter) ValidateToken(tokenString string) (*authmw.Claims, error) {
	d, err := a.service.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(d), nil
}
