//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "pseudonym-gateway/pkg/platform/audit"
	"pseudonym-gateway/pkg/platform/audit/publishers/kafka"
	"pseudonym-gateway/pkg/testutil/containers"
)

type KafkaStoreSuite struct {
	suite.Suite
	broker *containers.RedpandaContainer
}

func TestKafkaStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaStoreSuite))
}

func (s *KafkaStoreSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaStoreSuite) TestAppendIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "audit-" + uuid.NewString()

	store, err := kafka.New(ctx, []string{s.broker.SeedBroker}, topic, kafka.WithTopicBootstrap(1, 1))
	s.Require().NoError(err)
	defer store.Close()
	s.Require().NoError(store.Health(ctx))

	err = store.Append(ctx, audit.Event{
		Category:  audit.CategoryCompliance,
		Timestamp: time.Now(),
		Action:    string(audit.EventPseudonymResolved),
		Outcome:   audit.OutcomeNoMatch,
		RequestID: "req-42",
	})
	s.Require().NoError(err)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker.SeedBroker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal("req-42", string(records[0].Key))

	var payload kafka.Payload
	s.Require().NoError(json.Unmarshal(records[0].Value, &payload))
	s.Equal(audit.OutcomeNoMatch, payload.Outcome)
}

func (s *KafkaStoreSuite) TestEnsureTopicIsIdempotent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "audit-" + uuid.NewString()

	client, err := kgo.NewClient(kgo.SeedBrokers(s.broker.SeedBroker))
	s.Require().NoError(err)
	defer client.Close()

	s.Require().NoError(kafka.EnsureTopic(ctx, client, topic, 1, 1))
	s.Require().NoError(kafka.EnsureTopic(ctx, client, topic, 1, 1))
}
