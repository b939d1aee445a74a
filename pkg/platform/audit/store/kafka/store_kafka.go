// Package kafka publishes audit events to a Kafka (or Redpanda) topic.
// Events are keyed by subject so a partition preserves per-subject order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	id "fusionledger/pkg/domain"
	audit "fusionledger/pkg/platform/audit"
	"fusionledger/pkg/platform/sentinel"
)

// Store implements audit.Store by producing events to a topic. It is a
// write-only sink: reads go through a consumer or a queryable store.
type Store struct {
	client *kgo.Client
	topic  string
}

// payload is the JSON structure written to the topic.
type payload struct {
	Category          string `json:"category"`
	Timestamp         string `json:"timestamp"`
	SubjectID         string `json:"subject_id"`
	RecordID          string `json:"record_id,omitempty"`
	Action            string `json:"action"`
	VerificationLevel string `json:"verification_level,omitempty"`
	RetentionState    string `json:"retention_state,omitempty"`
	Reason            string `json:"reason,omitempty"`
	RequestID         string `json:"request_id,omitempty"`
}

// New connects to the given brokers and returns a Kafka-backed audit sink.
func New(brokers []string, topic string) (*Store, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	return &Store{client: client, topic: topic}, nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(payload{
		Category:          string(event.Category),
		Timestamp:         event.Timestamp.Format(time.RFC3339Nano),
		SubjectID:         event.SubjectID.String(),
		RecordID:          event.RecordID,
		Action:            event.Action,
		VerificationLevel: event.VerificationLevel,
		RetentionState:    event.RetentionState,
		Reason:            event.Reason,
		RequestID:         event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.SubjectID),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// ListBySubject is not supported on the Kafka sink.
func (s *Store) ListBySubject(context.Context, id.SubjectID) ([]audit.Event, error) {
	return nil, fmt.Errorf("kafka audit sink is write-only: %w", sentinel.ErrUnavailable)
}

// ListAll is not supported on the Kafka sink.
func (s *Store) ListAll(context.Context) ([]audit.Event, error) {
	return nil, fmt.Errorf("kafka audit sink is write-only: %w", sentinel.ErrUnavailable)
}

// Close flushes buffered records and tears down the client.
func (s *Store) Close() {
	s.client.Close()
}
