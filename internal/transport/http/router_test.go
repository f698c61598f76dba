package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	attachmentmemory "correspondence/internal/attachment/memory"
	"correspondence/internal/credential"
	"correspondence/internal/dashboard"
	identityhandler "correspondence/internal/identity/handler"
	identityservice "correspondence/internal/identity/service"
	"correspondence/internal/identity/store/revocation"
	"correspondence/internal/identity/store/user"
	mailhandler "correspondence/internal/mail/handler"
	mailservice "correspondence/internal/mail/service"
	mailstore "correspondence/internal/mail/store"
	"correspondence/internal/notification"
	notificationhandler "correspondence/internal/notification/handler"
	"correspondence/internal/ratelimit"
	lockoutmodels "correspondence/internal/ratelimit/models"
	lockoutstore "correspondence/internal/ratelimit/store"
	templatehandler "correspondence/internal/template/handler"
	templateservice "correspondence/internal/template/service"
	templatestore "correspondence/internal/template/store"
	"correspondence/pkg/domain"
	"correspondence/pkg/requestcontext"
	"correspondence/pkg/testutil"
)

// RouterSuite drives the assembled API over in-memory stores.
type RouterSuite struct {
	suite.Suite
	router    http.Handler
	health    map[string]HealthCheck
	identity  *identityservice.Service
	secretary string
	staff     string
	usernames map[string]string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	files := attachmentmemory.New()
	mails := mailstore.NewInMemory()
	templates := templatestore.NewInMemory()
	tokens := credential.NewTokenService("test-signing-key", "correspondence", time.Hour)

	s.identity = identityservice.New(user.NewInMemory(), credential.NewBcryptHasher(4),
		identityservice.WithLogger(logger),
		identityservice.WithTokenIssuer(tokens),
		identityservice.WithRevocationList(revocation.NewInMemory()),
		identityservice.WithLoginGuard(ratelimit.New(lockoutstore.NewInMemory(),
			ratelimit.WithLogger(logger),
			ratelimit.WithPolicy(lockoutmodels.Policy{Attempts: 2}),
		)),
		identityservice.WithUserReferences(mails, templates),
	)
	mailSvc := mailservice.New(mails, files, mailservice.WithLogger(logger))
	templateSvc := templateservice.New(templates, files, templateservice.WithLogger(logger))
	feed := notification.New(s.identity, mailSvc, logger)

	s.health = map[string]HealthCheck{}
	s.router = NewRouter(Config{
		Logger:      logger,
		Tokens:      credential.NewMiddlewareAdapter(tokens),
		Revocations: s.identity,
		Principals:  s.identity,
		Health:      s.health,
		Modules: []any{
			identityhandler.New(s.identity, logger),
			mailhandler.New(mailSvc, logger, 1<<20),
			templatehandler.New(templateSvc, logger, 1<<20),
			notificationhandler.New(feed, logger),
			dashboard.NewHandler(dashboard.New(mailSvc, s.identity, templateSvc, feed), logger),
		},
	})

	s.usernames = map[string]string{}
	s.secretary = s.login("Juan Derry", domain.RoleSecretary, domain.DivisionNone)
	s.staff = s.login("Sari Data", domain.RoleStaff, domain.DivisionDataAndInformation)
}

func (s *RouterSuite) login(fullName string, role domain.Role, division domain.Division) string {
	ctx := requestcontext.WithTime(context.Background(), time.Now())
	created, err := s.identity.CreateUser(ctx, fullName, role, division)
	s.Require().NoError(err)
	s.usernames[fullName] = created.User.Username

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{
		"username": created.User.Username,
		"password": created.InitialPassword,
	}))
	testutil.AssertStatusOK(s.T(), rr)
	return testutil.UnmarshalResponse[identityhandler.LoginResponse](s.T(), rr).AccessToken
}

func (s *RouterSuite) do(req *http.Request, token string) int {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return testutil.DoRequest(s.router, req).Code
}

func (s *RouterSuite) TestHealth() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(s.T(), rr)

	s.health["database"] = func(context.Context) error { return errors.New("connection refused") }
	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)
	testutil.AssertJSONContains(s.T(), rr, "status", "degraded")
}

func (s *RouterSuite) TestAuthenticationAndRoles() {
	t := s.T()
	s.Equal(http.StatusUnauthorized, s.do(testutil.NewRequest(t, http.MethodGet, "/mail/incoming"), ""))
	s.Equal(http.StatusUnauthorized, s.do(testutil.NewRequest(t, http.MethodGet, "/mail/incoming"), "not-a-token"))

	s.Equal(http.StatusForbidden, s.do(testutil.NewRequest(t, http.MethodGet, "/users"), s.staff))
	s.Equal(http.StatusOK, s.do(testutil.NewRequest(t, http.MethodGet, "/users"), s.secretary))

	s.Equal(http.StatusOK, s.do(testutil.NewRequest(t, http.MethodGet, "/templates"), s.staff))
	s.Equal(http.StatusForbidden, s.do(testutil.NewMultipartRequest(t, http.MethodPost, "/templates",
		map[string]string{"name": "Undangan"},
		testutil.FilePart{Field: "file", Filename: "undangan.docx", Content: []byte("x")}), s.staff))
}

func (s *RouterSuite) TestLogoutRevokesToken() {
	t := s.T()
	s.Equal(http.StatusNoContent, s.do(testutil.NewRequest(t, http.MethodPost, "/auth/logout"), s.staff))
	s.Equal(http.StatusUnauthorized, s.do(testutil.NewRequest(t, http.MethodGet, "/auth/me"), s.staff))
	s.Equal(http.StatusOK, s.do(testutil.NewRequest(t, http.MethodGet, "/auth/me"), s.secretary))
}

func (s *RouterSuite) TestMailFlowReachesFeedAndDashboard() {
	t := s.T()
	s.Equal(http.StatusCreated, s.do(testutil.NewMultipartRequest(t, http.MethodPost, "/mail/incoming",
		map[string]string{
			"mail_number":   "005/DINKES/I/2025",
			"mail_date":     "2025-01-06",
			"received_date": "2025-01-07",
			"sender":        "Dinas Kesehatan",
			"addressed_to":  "Kepala Kantor",
			"subject":       "Undangan rapat",
			"division":      string(domain.DivisionDataAndInformation),
		},
		testutil.FilePart{Field: "file", Filename: "undangan.pdf", Content: []byte("%PDF")}), s.secretary))

	req := testutil.NewRequest(t, http.MethodGet, "/notifications")
	req.Header.Set("Authorization", "Bearer "+s.staff)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(t, rr)
	feed := testutil.UnmarshalResponse[notificationhandler.ListResponse](t, rr)
	s.Require().Equal(1, feed.Total)
	s.Equal("in-1", feed.Items[0].ID)

	s.Equal(http.StatusNoContent, s.do(testutil.NewRequest(t, http.MethodPost, "/mail/incoming/1/read"), s.staff))

	req = testutil.NewRequest(t, http.MethodGet, "/dashboard/summary")
	req.Header.Set("Authorization", "Bearer "+s.staff)
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(t, rr)
	sum := testutil.UnmarshalResponse[dashboard.Summary](t, rr)
	s.Equal(dashboard.Summary{TotalIncoming: 1, TotalUsers: 2}, *sum)
}

func (s *RouterSuite) TestRepeatedFailedLoginsLockOut() {
	t := s.T()
	login := func(password string) int {
		return s.do(testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", map[string]string{
			"username": s.usernames["Sari Data"],
			"password": password,
		}), "")
	}
	s.Equal(http.StatusUnauthorized, login("wrong-1"))
	s.Equal(http.StatusUnauthorized, login("wrong-2"))
	s.Equal(http.StatusTooManyRequests, login(s.usernames["Sari Data"]))
}

func (s *RouterSuite) TestUnknownRoute() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/nope"))
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	testutil.AssertJSONContains(s.T(), rr, "error", "not_found")
}
