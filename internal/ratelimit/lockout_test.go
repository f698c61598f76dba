package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"correspondence/internal/audit"
	auditmemory "correspondence/internal/audit/store/memory"
	"correspondence/internal/ratelimit/models"
	"correspondence/internal/ratelimit/store"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/requestcontext"
)

type LockoutSuite struct {
	suite.Suite
	now      time.Time
	auditLog *auditmemory.InMemoryStore
	service  *Service
}

func TestLockoutSuite(t *testing.T) {
	suite.Run(t, new(LockoutSuite))
}

func (s *LockoutSuite) SetupTest() {
	s.now = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	s.auditLog = auditmemory.NewInMemoryStore()
	s.service = New(store.NewInMemory(),
		WithPolicy(models.Policy{Attempts: 3, Window: 10 * time.Minute, LockDuration: 15 * time.Minute}),
		WithAuditPublisher(audit.NewPublisher(s.auditLog)),
	)
}

func (s *LockoutSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

func (s *LockoutSuite) fail(n int, offset time.Duration) {
	for range n {
		s.Require().NoError(s.service.RecordFailure(s.at(offset), "juan.derry1", "10.0.0.1"))
	}
}

func (s *LockoutSuite) TestLocksAfterPolicyAttempts() {
	s.fail(2, 0)
	s.NoError(s.service.Check(s.at(time.Minute), "juan.derry1", "10.0.0.1"))

	s.fail(1, time.Minute)
	err := s.service.Check(s.at(2*time.Minute), "JUAN.DERRY1", "10.0.0.1")
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Equal(ReasonLoginLocked, dErrors.ReasonOf(err))
	s.Contains(err.Error(), "14 minute(s)")
	s.Equal([]string{audit.EventLoginLocked.String()}, s.auditLog.Actions())

	s.NoError(s.service.Check(s.at(2*time.Minute), "juan.derry1", "10.0.0.2"), "other addresses are unaffected")
	s.NoError(s.service.Check(s.at(17*time.Minute), "juan.derry1", "10.0.0.1"), "lock expires")
}

func (s *LockoutSuite) TestFailuresOutsideWindowDoNotAccumulate() {
	s.fail(2, 0)
	s.fail(2, 11*time.Minute)
	s.NoError(s.service.Check(s.at(12*time.Minute), "juan.derry1", "10.0.0.1"))
	s.Empty(s.auditLog.Actions())
}

func (s *LockoutSuite) TestClearResetsCount() {
	s.fail(2, 0)
	s.Require().NoError(s.service.Clear(s.at(0), "juan.derry1", "10.0.0.1"))
	s.fail(2, time.Minute)
	s.NoError(s.service.Check(s.at(2*time.Minute), "juan.derry1", "10.0.0.1"))
}

type brokenStore struct{ Store }

func (brokenStore) Get(context.Context, string, time.Time) (*models.Lockout, error) {
	return nil, errors.New("connection refused")
}

func (s *LockoutSuite) TestStoreFailureIsDependencyError() {
	svc := New(brokenStore{})
	err := svc.Check(s.at(0), "juan.derry1", "10.0.0.1")
	s.True(dErrors.HasCode(err, dErrors.CodeDependency))
}
