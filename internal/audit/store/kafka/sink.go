// Package kafka forwards audit events to Kafka, one topic per event category.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"correspondence/internal/audit"
)

// Sink implements audit.Store by producing JSON records keyed by event id.
type Sink struct {
	client      *kgo.Client
	topicPrefix string
}

// New connects to brokers. Topics are named "<topicPrefix>.<category>".
func New(brokers []string, clientID, topicPrefix string) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no seed brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	return &Sink{client: client, topicPrefix: topicPrefix}, nil
}

// Topic returns the topic events of category c are produced to.
func (s *Sink) Topic(c audit.Category) string {
	return s.topicPrefix + "." + string(c)
}

// EnsureTopics creates the per-category topics, tolerating ones that already exist.
func (s *Sink) EnsureTopics(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(s.client)
	topics := []string{
		s.Topic(audit.CategoryCompliance),
		s.Topic(audit.CategorySecurity),
		s.Topic(audit.CategoryOperations),
	}
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, topics...)
	if err != nil {
		return fmt.Errorf("kafka: create topics: %w", err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("kafka: create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Append produces event synchronously.
func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: marshal audit event: %w", err)
	}
	category := event.Category
	if category == "" {
		category = audit.Action(event.Action).Category()
	}
	record := &kgo.Record{
		Topic:     s.Topic(category),
		Key:       []byte(uuid.NewString()),
		Value:     payload,
		Timestamp: event.Timestamp,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce audit event: %w", err)
	}
	return nil
}

func (s *Sink) Close() {
	s.client.Close()
}
