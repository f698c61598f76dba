//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"correspondence/internal/audit"
	"correspondence/pkg/domain"
	"correspondence/pkg/testutil/containers"
)

type SinkSuite struct {
	suite.Suite
	broker string
	sink   *Sink
}

func TestSinkSuite(t *testing.T) {
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) SetupSuite() {
	mgr := containers.GetManager()
	rp := mgr.GetRedpanda(s.T())
	s.broker = rp.Broker

	sink, err := New([]string{s.broker}, "audit-test", "test-audit")
	s.Require().NoError(err)
	s.sink = sink

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(sink.EnsureTopics(ctx, 1, 1))
	// second call hits TopicAlreadyExists
	s.Require().NoError(sink.EnsureTopics(ctx, 1, 1))
}

func (s *SinkSuite) TearDownSuite() {
	if s.sink != nil {
		s.sink.Close()
	}
}

func (s *SinkSuite) TestAppendRoutesByCategory() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	event := audit.Event{
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		UserID:    domain.UserID(7),
		Action:    audit.EventLoginFailed.String(),
	}
	s.Require().NoError(s.sink.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(s.sink.Topic(audit.CategorySecurity)),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) == 0 && ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		records = append(records, fetches.Records()...)
	}
	s.Require().NotEmpty(records)

	var got audit.Event
	require.NoError(s.T(), json.Unmarshal(records[0].Value, &got))
	s.Equal(audit.EventLoginFailed.String(), got.Action)
	s.Equal(domain.UserID(7), got.UserID)
}
