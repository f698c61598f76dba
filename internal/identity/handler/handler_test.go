package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"correspondence/internal/identity/handler/mocks"
	"correspondence/internal/identity/models"
	"correspondence/internal/identity/service"
	"correspondence/internal/query"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/requestcontext"
	"correspondence/pkg/testutil"
)

func newTestHandler(t *testing.T) (*mocks.MockService, http.Handler) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.RegisterPublic(r)
	h.Register(r)
	h.RegisterAdmin(r)
	return svc, r
}

func sampleUser() *models.User {
	return &models.User{
		ID:           4,
		Username:     "budisantoso4",
		PasswordHash: "$2a$10$secret",
		FullName:     "Budi Santoso",
		Role:         domain.RoleStaff,
		Division:     domain.DivisionDataAndInformation,
	}
}

func TestHandleLogin(t *testing.T) {
	expires := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)

	t.Run("issues token", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().Login(gomock.Any(), "budisantoso4", "budisantoso4").
			Return(&service.LoginResult{Token: "jwt", ExpiresAt: expires, User: sampleUser()}, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", map[string]string{
			"username": " budisantoso4 ",
			"password": "budisantoso4",
		})
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatusOK(t, rr)
		assert.NotContains(t, rr.Body.String(), "password_hash")
		body := testutil.UnmarshalResponse[LoginResponse](t, rr)
		assert.Equal(t, "jwt", body.AccessToken)
		assert.Equal(t, "Bearer", body.TokenType)
		assert.Equal(t, "budisantoso4", body.User.Username)
	})

	t.Run("missing password never reaches service", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", map[string]string{"username": "x"})
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	t.Run("bad credentials", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().Login(gomock.Any(), "x", "y").Return(nil,
			dErrors.New(dErrors.CodeUnauthorized, "invalid username or password").WithReason(models.ReasonInvalidCredentials))

		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", map[string]string{"username": "x", "password": "y"})
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
		testutil.AssertReason(t, rr, models.ReasonInvalidCredentials)
	})
}

func TestHandleLogout(t *testing.T) {
	svc, router := newTestHandler(t)
	svc.EXPECT().Logout(gomock.Any(), "jti-1", gomock.Any()).Return(nil)

	req := testutil.NewRequest(t, http.MethodPost, "/auth/logout")
	req = req.WithContext(requestcontext.WithTokenID(req.Context(), "jti-1"))
	rr := testutil.DoRequest(router, testutil.AsCaller(req, 4, domain.RoleStaff, domain.DivisionDataAndInformation))

	testutil.AssertStatus(t, rr, http.StatusNoContent)
}

func TestHandleChangePassword(t *testing.T) {
	t.Run("changes caller password", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().ChangePassword(gomock.Any(), domain.UserID(4), "budisantoso4", "new-secret").Return(nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/change-password", map[string]string{
			"current_password": "budisantoso4",
			"new_password":     "new-secret",
		})
		rr := testutil.DoRequest(router, testutil.AsCaller(req, 4, domain.RoleStaff, domain.DivisionDataAndInformation))

		testutil.AssertStatus(t, rr, http.StatusNoContent)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, router := newTestHandler(t)
		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/change-password", map[string]string{})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("weak new password", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().ChangePassword(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/change-password", map[string]string{
			"current_password": "budisantoso4",
			"new_password":     "abc",
		})
		rr := testutil.DoRequest(router, testutil.AsCaller(req, 4, domain.RoleStaff, domain.DivisionDataAndInformation))

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		testutil.AssertReason(t, rr, models.ReasonPasswordPolicy)
	})
}

func TestHandleMe(t *testing.T) {
	svc, router := newTestHandler(t)
	svc.EXPECT().GetUser(gomock.Any(), domain.UserID(4)).Return(sampleUser(), nil)

	req := testutil.NewRequest(t, http.MethodGet, "/auth/me")
	rr := testutil.DoRequest(router, testutil.AsCaller(req, 4, domain.RoleStaff, domain.DivisionDataAndInformation))

	testutil.AssertStatusOK(t, rr)
	body := testutil.UnmarshalResponse[UserResponse](t, rr)
	assert.Equal(t, "Budi Santoso", body.FullName)
	assert.Equal(t, "data_and_information", body.Division)
}

func TestHandleListUsers(t *testing.T) {
	t.Run("passes search and page", func(t *testing.T) {
		svc, router := newTestHandler(t)
		page := query.Page{Number: 2, PerPage: 5}
		svc.EXPECT().ListUsers(gomock.Any(), "budi", page).Return(query.Result[*models.User]{
			Items:      []*models.User{sampleUser()},
			Pagination: query.PaginationFor(page, 6),
		}, nil)

		req := testutil.NewRequest(t, http.MethodGet, "/users?search=budi&page=2&per_page=5")
		rr := testutil.DoRequest(router, testutil.AsSecretary(req, 1))

		testutil.AssertStatusOK(t, rr)
		body := testutil.UnmarshalResponse[UserListResponse](t, rr)
		require.Len(t, body.Items, 1)
		assert.Equal(t, 6, body.Pagination.Total)
		assert.Equal(t, 2, body.Pagination.TotalPages)
	})

	t.Run("rejects oversized page", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().ListUsers(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		req := testutil.NewRequest(t, http.MethodGet, "/users?per_page=101")
		rr := testutil.DoRequest(router, testutil.AsSecretary(req, 1))

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}

func TestHandleCreateUser(t *testing.T) {
	t.Run("returns initial password", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().CreateUser(gomock.Any(), "Budi Santoso", domain.RoleStaff, domain.DivisionDataAndInformation).
			Return(&service.CreateResult{User: sampleUser(), InitialPassword: "budisantoso4"}, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/users", map[string]string{
			"full_name": " Budi Santoso ",
			"role":      "STAFF",
			"division":  "data_and_information",
		})
		rr := testutil.DoRequest(router, testutil.AsSecretary(req, 1))

		testutil.AssertStatus(t, rr, http.StatusCreated)
		body := testutil.UnmarshalResponse[CreateUserResponse](t, rr)
		assert.Equal(t, "budisantoso4", body.InitialPassword)
		assert.Equal(t, int64(4), body.User.ID)
	})

	t.Run("unknown role", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/users", map[string]string{
			"full_name": "Budi Santoso",
			"role":      "kasub",
		})
		rr := testutil.DoRequest(router, testutil.AsSecretary(req, 1))

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})

	t.Run("conflict surfaces reason", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil,
			dErrors.New(dErrors.CodeConflict, "only one user may hold role secretary").WithReason(models.ReasonRoleSingleton))

		req := testutil.NewJSONRequest(t, http.MethodPost, "/users", map[string]string{
			"full_name": "Second Secretary",
			"role":      "secretary",
		})
		rr := testutil.DoRequest(router, testutil.AsSecretary(req, 1))

		testutil.AssertStatus(t, rr, http.StatusConflict)
		testutil.AssertReason(t, rr, models.ReasonRoleSingleton)
	})

	t.Run("internal failure hides detail", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil,
			dErrors.Wrap(errors.New("pq: relation users does not exist"), dErrors.CodeInternal, "failed to create user"))

		req := testutil.NewJSONRequest(t, http.MethodPost, "/users", map[string]string{
			"full_name": "Budi Santoso",
			"role":      "staff",
			"division":  "data_and_information",
		})
		rr := testutil.DoRequest(router, testutil.AsSecretary(req, 1))

		testutil.AssertStatus(t, rr, http.StatusInternalServerError)
		assert.NotContains(t, rr.Body.String(), "relation")
	})
}

func TestHandleUpdateUser(t *testing.T) {
	t.Run("clears division and reports reset", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().UpdateUser(gomock.Any(), domain.UserID(4), gomock.Any()).DoAndReturn(
			func(_ context.Context, _ domain.UserID, p models.UserPatch) (*service.UpdateResult, error) {
				require.NotNil(t, p.FullName)
				assert.Equal(t, "Budi Hartono", *p.FullName)
				require.NotNil(t, p.Division)
				assert.True(t, p.Division.IsNone())
				assert.Nil(t, p.Role)
				u := sampleUser()
				u.Username = "budihartono4"
				return &service.UpdateResult{User: u, CredentialsReset: true, InitialPassword: "budihartono4"}, nil
			})

		req := testutil.NewJSONRequest(t, http.MethodPatch, "/users/4", map[string]string{
			"full_name": "Budi Hartono",
			"division":  "",
		})
		rr := testutil.DoRequest(router, testutil.AsSecretary(req, 1))

		testutil.AssertStatusOK(t, rr)
		body := testutil.UnmarshalResponse[UpdateUserResponse](t, rr)
		assert.True(t, body.CredentialsReset)
		assert.Equal(t, "budihartono4", body.InitialPassword)
		assert.Equal(t, "budihartono4", body.User.Username)
	})

	t.Run("empty patch", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().UpdateUser(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		req := testutil.NewJSONRequest(t, http.MethodPatch, "/users/4", map[string]string{})
		rr := testutil.DoRequest(router, testutil.AsSecretary(req, 1))

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, router := newTestHandler(t)
		req := testutil.NewJSONRequest(t, http.MethodPatch, "/users/abc", map[string]string{"full_name": "X"})
		rr := testutil.DoRequest(router, testutil.AsSecretary(req, 1))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})
}

func TestHandleDeleteUser(t *testing.T) {
	t.Run("deletes", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().DeleteUser(gomock.Any(), domain.UserID(4)).Return(nil)

		rr := testutil.DoRequest(router, testutil.AsSecretary(testutil.NewRequest(t, http.MethodDelete, "/users/4"), 1))
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	})

	t.Run("not found", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().DeleteUser(gomock.Any(), domain.UserID(9)).Return(dErrors.New(dErrors.CodeNotFound, "user not found"))

		rr := testutil.DoRequest(router, testutil.AsSecretary(testutil.NewRequest(t, http.MethodDelete, "/users/9"), 1))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})

	t.Run("refuses self delete", func(t *testing.T) {
		svc, router := newTestHandler(t)
		svc.EXPECT().DeleteUser(gomock.Any(), gomock.Any()).Times(0)

		rr := testutil.DoRequest(router, testutil.AsSecretary(testutil.NewRequest(t, http.MethodDelete, "/users/1"), 1))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}
