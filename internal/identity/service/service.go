// Package service implements user administration, role and division rules,
// login and principal reloading.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"correspondence/internal/audit"
	"correspondence/internal/credential"
	identitymetrics "correspondence/internal/identity/metrics"
	"correspondence/internal/identity/models"
	"correspondence/internal/query"
	"correspondence/pkg/attrs"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/platform/sentinel"
	"correspondence/pkg/platform/tx"
	"correspondence/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UserStore,PasswordHasher,TokenIssuer,RevocationList,UserReferenceReleaser,LoginGuard

// UserStore persists users. Unique violations are reported as
// sentinel.Conflict carrying one of the models.Constraint* names.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id domain.UserID) error
	FindByID(ctx context.Context, id domain.UserID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByFullName(ctx context.Context, fullName string) (*models.User, error)
	FindByRole(ctx context.Context, role domain.Role, division domain.Division) ([]*models.User, error)
	List(ctx context.Context, search string, page query.Page) ([]*models.User, int, error)
	Count(ctx context.Context) (int, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(digest, plain string) bool
}

type TokenIssuer interface {
	Issue(claims credential.Claims) (string, time.Time, error)
}

// RevocationList records logged-out token ids until they would have expired.
type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// UserReferenceReleaser clears authorship references to a user that is about
// to be deleted, so the referencing records survive.
type UserReferenceReleaser interface {
	ReleaseUser(ctx context.Context, id domain.UserID) error
}

// LoginGuard throttles repeated failed logins per username and client address.
type LoginGuard interface {
	Check(ctx context.Context, username, clientIP string) error
	RecordFailure(ctx context.Context, username, clientIP string) error
	Clear(ctx context.Context, username, clientIP string) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service orchestrates user administration and authentication.
type Service struct {
	users          UserStore
	hasher         PasswordHasher
	tokens         TokenIssuer
	revocations    RevocationList
	releasers      []UserReferenceReleaser
	guard          LoginGuard
	tx             TxRunner
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *identitymetrics.Metrics
}

type Option func(s *Service)

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

func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTxRunner(runner TxRunner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func WithTokenIssuer(issuer TokenIssuer) Option {
	return func(s *Service) {
		s.tokens = issuer
	}
}

func WithRevocationList(list RevocationList) Option {
	return func(s *Service) {
		s.revocations = list
	}
}

func WithLoginGuard(guard LoginGuard) Option {
	return func(s *Service) {
		s.guard = guard
	}
}

// WithUserReferences registers stores whose rows point at users.
func WithUserReferences(releasers ...UserReferenceReleaser) Option {
	return func(s *Service) {
		s.releasers = append(s.releasers, releasers...)
	}
}

// New constructs a Service. Without WithTxRunner units of work are serialised
// in process, which is only correct for in-memory stores.
func New(users UserStore, hasher PasswordHasher, opts ...Option) *Service {
	s := &Service{users: users, hasher: hasher}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewMemoryRunner()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id domain.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, wrapUserErr(err, "failed to load user")
	}
	return user, nil
}

// ListUsers pages users ordered by username, optionally filtered by a
// case-insensitive substring of username or full name.
func (s *Service) ListUsers(ctx context.Context, search string, page query.Page) (query.Result[*models.User], error) {
	users, total, err := s.users.List(ctx, search, page)
	if err != nil {
		return query.Result[*models.User]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return query.Result[*models.User]{Items: users, Pagination: query.PaginationFor(page, total)}, nil
}

func (s *Service) CountUsers(ctx context.Context) (int, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count users")
	}
	return n, nil
}

// LoadPrincipal reloads a caller for the auth middleware.
func (s *Service) LoadPrincipal(ctx context.Context, id domain.UserID) (requestcontext.Caller, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return requestcontext.Caller{}, wrapUserErr(err, "failed to load user")
	}
	return requestcontext.Caller{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.Role,
		Division: user.Division,
	}, nil
}

func wrapUserErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// conflictFor translates a storage constraint violation into the matching
// business conflict.
func conflictFor(err error, role domain.Role, division domain.Division) error {
	switch sentinel.ConstraintOf(err) {
	case models.ConstraintFullName:
		return nameConflict()
	case models.ConstraintSingleSecretary:
		return roleSingletonConflict(role)
	case models.ConstraintDivisionHead:
		return divisionHeadConflict(division)
	case models.ConstraintUsername:
		return usernameConflict()
	}
	return nil
}

// usernameConflict is returned when a derived username is already held, as
// with "Ab1" (id 1) and "Ab" (id 11). Retrying derives from a fresh id.
func usernameConflict() error {
	return dErrors.New(dErrors.CodeConflict, "username already taken, retry to derive a new one").
		WithReason(models.ReasonUsernameConflict)
}

func nameConflict() error {
	return dErrors.New(dErrors.CodeConflict, "a user with this full name already exists").
		WithReason(models.ReasonNameConflict).WithField("full_name")
}

func roleSingletonConflict(role domain.Role) error {
	return dErrors.Newf(dErrors.CodeConflict, "only one user may hold role %s", role).
		WithReason(models.ReasonRoleSingleton).WithField("role")
}

func divisionHeadConflict(division domain.Division) error {
	return dErrors.Newf(dErrors.CodeConflict, "division %s already has a sub-division head", division).
		WithReason(models.ReasonDivisionHeadConflict).WithField("division")
}

// asValidation converts a model invariant violation into a client-facing
// validation error, keeping reason and field.
func asValidation(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) && de.Code == dErrors.CodeInvariantViolation {
		return dErrors.New(dErrors.CodeValidation, de.Message).WithReason(de.Reason).WithField(de.Field)
	}
	return err
}

func (s *Service) logAudit(ctx context.Context, event audit.Action, user *models.User, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	var userID domain.UserID
	if user != nil {
		userID = user.ID
		attributes = append(attributes, "user_id", user.ID, "username", user.Username)
	}
	args := append(attributes, "event", event.String(), "log_type", "audit")
	s.logger.InfoContext(ctx, event.String(), args...)
	if s.auditPublisher == nil {
		return
	}
	if userID.IsZero() {
		userID, _ = attrs.Extract[domain.UserID](attributes, "user_id")
	}
	e := audit.Event{UserID: userID, Action: event.String(), Reason: attrs.ExtractString(attributes, "reason")}
	if user != nil {
		e.Subject = user.Username
		e.Division = user.Division
	}
	if err := s.auditPublisher.Emit(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", event.String(), "error", err)
	}
}
