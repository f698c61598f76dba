//go:build integration

package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"correspondence/internal/ratelimit"
	"correspondence/internal/ratelimit/models"
	"correspondence/internal/ratelimit/store"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/requestcontext"
	"correspondence/pkg/testutil/containers"
)

type RedisLockoutSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	service *ratelimit.Service
}

func TestRedisLockoutSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockoutSuite))
}

func (s *RedisLockoutSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisLockoutSuite) SetupTest() {
	s.Require().NoError(s.redis.Reset(context.Background()))
	s.service = ratelimit.New(store.NewRedis(s.redis.Client),
		ratelimit.WithPolicy(models.Policy{Attempts: 2, Window: time.Minute, LockDuration: 2 * time.Second}),
	)
}

func (s *RedisLockoutSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), time.Now())
}

func (s *RedisLockoutSuite) TestLockAndExpiry() {
	for range 2 {
		s.Require().NoError(s.service.Check(s.ctx(), "sari.data", "10.0.0.7"))
		s.Require().NoError(s.service.RecordFailure(s.ctx(), "sari.data", "10.0.0.7"))
	}

	err := s.service.Check(s.ctx(), "Sari.Data", "10.0.0.7")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.NoError(s.service.Check(s.ctx(), "sari.data", "10.0.0.8"))

	s.Eventually(func() bool {
		return s.service.Check(s.ctx(), "sari.data", "10.0.0.7") == nil
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *RedisLockoutSuite) TestClearForgetsFailures() {
	s.Require().NoError(s.service.RecordFailure(s.ctx(), "juan.derry", "10.0.0.7"))
	s.Require().NoError(s.service.Clear(s.ctx(), "juan.derry", "10.0.0.7"))
	s.Require().NoError(s.service.RecordFailure(s.ctx(), "juan.derry", "10.0.0.7"))

	s.NoError(s.service.Check(s.ctx(), "juan.derry", "10.0.0.7"))
}
