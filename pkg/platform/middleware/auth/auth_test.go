package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/requestcontext"
)

type stubValidator struct {
	claims *Claims
	err    error
}

func (s stubValidator) ValidateToken(string) (*Claims, error) { return s.claims, s.err }

type stubRevocation struct {
	revoked bool
	err     error
}

func (s stubRevocation) IsTokenRevoked(context.Context, string) (bool, error) {
	return s.revoked, s.err
}

type stubLoader struct {
	caller requestcontext.Caller
	err    error
}

func (s stubLoader) LoadPrincipal(context.Context, domain.UserID) (requestcontext.Caller, error) {
	return s.caller, s.err
}

type RequireAuthSuite struct {
	suite.Suite
	logger *slog.Logger
	seen   requestcontext.Caller
	next   http.Handler
}

func TestRequireAuthSuite(t *testing.T) {
	suite.Run(t, new(RequireAuthSuite))
}

func (s *RequireAuthSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.seen = requestcontext.Caller{}
	s.next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.seen = requestcontext.Principal(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *RequireAuthSuite) serve(mw func(http.Handler) http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	mw(s.next).ServeHTTP(rec, req)
	return rec
}

func (s *RequireAuthSuite) TestMissingHeader() {
	mw := RequireAuth(stubValidator{}, nil, stubLoader{}, s.logger)
	rec := s.serve(mw, "")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RequireAuthSuite) TestInvalidToken() {
	mw := RequireAuth(stubValidator{err: errors.New("bad signature")}, nil, stubLoader{}, s.logger)
	rec := s.serve(mw, "Bearer junk")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RequireAuthSuite) TestRevokedToken() {
	v := stubValidator{claims: &Claims{UserID: 3, JTI: "jti-1"}}
	mw := RequireAuth(v, stubRevocation{revoked: true}, stubLoader{}, s.logger)
	rec := s.serve(mw, "Bearer token")
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "revoked")
}

func (s *RequireAuthSuite) TestRevocationStoreFailure() {
	v := stubValidator{claims: &Claims{UserID: 3, JTI: "jti-1"}}
	mw := RequireAuth(v, stubRevocation{err: errors.New("redis down")}, stubLoader{}, s.logger)
	rec := s.serve(mw, "Bearer token")
	s.Equal(http.StatusInternalServerError, rec.Code)
}

func (s *RequireAuthSuite) TestDeletedUser() {
	v := stubValidator{claims: &Claims{UserID: 3, JTI: "jti-1"}}
	loader := stubLoader{err: dErrors.New(dErrors.CodeNotFound, "user not found")}
	mw := RequireAuth(v, stubRevocation{}, loader, s.logger)
	rec := s.serve(mw, "Bearer token")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RequireAuthSuite) TestInjectsReloadedPrincipal() {
	// token still says staff; the store says the user was promoted
	v := stubValidator{claims: &Claims{UserID: 3, Role: domain.RoleStaff, Division: domain.DivisionDataAndInformation, JTI: "jti-1"}}
	loader := stubLoader{caller: requestcontext.Caller{
		ID:       3,
		Role:     domain.RoleSubDivisionHead,
		Division: domain.DivisionLogisticsAndFinance,
	}}
	mw := RequireAuth(v, stubRevocation{}, loader, s.logger)
	rec := s.serve(mw, "Bearer token")

	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal(domain.RoleSubDivisionHead, s.seen.Role)
	s.Equal(domain.DivisionLogisticsAndFinance, s.seen.Division)
}

func TestRequireRole(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mw := RequireRole(logger, domain.RoleSecretary)(ok)

	cases := []struct {
		name   string
		caller requestcontext.Caller
		want   int
	}{
		{"anonymous", requestcontext.Caller{}, http.StatusUnauthorized},
		{"staff", requestcontext.Caller{ID: 2, Role: domain.RoleStaff}, http.StatusForbidden},
		{"secretary", requestcontext.Caller{ID: 1, Role: domain.RoleSecretary}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(requestcontext.WithPrincipal(req.Context(), tc.caller))
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
