package testutil

import (
	"net/http"

	"correspondence/pkg/domain"
	"correspondence/pkg/requestcontext"
)

// AsCaller attaches an authenticated principal to the request, simulating
// what the auth middleware does after reloading the user.
func AsCaller(req *http.Request, id domain.UserID, role domain.Role, division domain.Division) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), requestcontext.Caller{
		ID:       id,
		Role:     role,
		Division: division,
	})
	return req.WithContext(ctx)
}

// AsSecretary is AsCaller for the secretary role.
func AsSecretary(req *http.Request, id domain.UserID) *http.Request {
	return AsCaller(req, id, domain.RoleSecretary, domain.DivisionNone)
}
