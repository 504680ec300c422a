// Package kafka forwards audit events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "pseudonym-gateway/pkg/platform/audit"
)

const (
	defaultPartitions        = 3
	defaultReplicationFactor = 1
)

// Store produces one record per audit event, keyed by request id so events
// of one request land on one partition.
type Store struct {
	client *kgo.Client
	topic  string
}

type config struct {
	partitions        int32
	replicationFactor int16
	createTopic       bool
	extra             []kgo.Opt
}

type Option func(*config)

// WithTopicBootstrap creates the topic on startup if it does not exist.
func WithTopicBootstrap(partitions int32, replicationFactor int16) Option {
	return func(c *config) {
		c.createTopic = true
		if partitions > 0 {
			c.partitions = partitions
		}
		if replicationFactor > 0 {
			c.replicationFactor = replicationFactor
		}
	}
}

// WithClientOptions passes extra options to the franz-go client.
func WithClientOptions(opts ...kgo.Opt) Option {
	return func(c *config) {
		c.extra = append(c.extra, opts...)
	}
}

func New(ctx context.Context, brokers []string, topic string, opts ...Option) (*Store, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	cfg := &config{partitions: defaultPartitions, replicationFactor: defaultReplicationFactor}
	for _, opt := range opts {
		opt(cfg)
	}

	kopts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
		kgo.RecordDeliveryTimeout(10 * time.Second),
	}, cfg.extra...)
	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if cfg.createTopic {
		if err := EnsureTopic(ctx, client, topic, cfg.partitions, cfg.replicationFactor); err != nil {
			client.Close()
			return nil, err
		}
	}
	return &Store{client: client, topic: topic}, nil
}

// EnsureTopic creates topic, treating "already exists" as success.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, partitions, replicationFactor, nil, topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create audit topic %s: %w", topic, err)
	}
	return nil
}

// Payload is the JSON value of each record.
type Payload struct {
	Category        string    `json:"category"`
	Timestamp       time.Time `json:"timestamp"`
	Action          string    `json:"action"`
	Outcome         string    `json:"outcome,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	PseudonymHash   string    `json:"pseudonym_hash,omitempty"`
	SubjectCount    int       `json:"subject_count"`
	StudyCount      int       `json:"study_count"`
	PartialFailures int       `json:"partial_failures,omitempty"`
	ResourceID      string    `json:"resource_id,omitempty"`
	RequestID       string    `json:"request_id,omitempty"`
	Caller          string    `json:"caller,omitempty"`
}

func toPayload(e audit.Event) Payload {
	return Payload{
		Category:        string(e.Category),
		Timestamp:       e.Timestamp.UTC(),
		Action:          e.Action,
		Outcome:         e.Outcome,
		Reason:          e.Reason,
		PseudonymHash:   e.PseudonymHash,
		SubjectCount:    e.SubjectCount,
		StudyCount:      e.StudyCount,
		PartialFailures: e.PartialFailures,
		ResourceID:      e.ResourceID,
		RequestID:       e.RequestID,
		Caller:          e.Caller,
	}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(toPayload(event))
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.RequestID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Health pings the seed brokers.
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Store) Close() {
	s.client.Close()
}
