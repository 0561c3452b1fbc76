//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"sovren/internal/audit"
	"sovren/pkg/testutil/containers"
)

type KafkaStoreSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestKafkaStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaStoreSuite))
}

func (s *KafkaStoreSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaStoreSuite) newStore(topic string) *audit.KafkaStore {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := audit.NewKafkaStore(ctx, []string{s.redpanda.Broker}, topic)
	s.Require().NoError(err)
	s.T().Cleanup(store.Close)
	return store
}

func (s *KafkaStoreSuite) poll(client *kgo.Client, want int) []*kgo.Record {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var records []*kgo.Record
	for len(records) < want {
		fetches := client.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out waiting for %d records, got %d", want, len(records))
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}
	return records
}

func (s *KafkaStoreSuite) TestAppendPublishesKeyedJSON() {
	const topic = "sovren.mapping.append"
	store := s.newStore(topic)

	event := audit.Event{
		Action:    audit.ActionMappingUpserted,
		DID:       "15306885012",
		Persona:   "CFO",
		CNAM:      "COVREN CFO",
		RequestID: "req-1",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	s.Require().NoError(store.Append(context.Background(), event))

	consumer := s.redpanda.Consumer(s.T(), topic)
	defer consumer.Close()
	records := s.poll(consumer, 1)

	rec := records[0]
	s.Equal("15306885012", string(rec.Key))
	s.Require().Len(rec.Headers, 1)
	s.Equal("action", rec.Headers[0].Key)
	s.Equal(string(audit.ActionMappingUpserted), string(rec.Headers[0].Value))

	var got audit.Event
	s.Require().NoError(json.Unmarshal(rec.Value, &got))
	s.Equal(event.DID, got.DID)
	s.Equal(event.Persona, got.Persona)
	s.Equal(event.RequestID, got.RequestID)
	s.True(event.Timestamp.Equal(got.Timestamp))
}

func (s *KafkaStoreSuite) TestSameDIDStaysOrdered() {
	const topic = "sovren.mapping.ordered"
	store := s.newStore(topic)
	ctx := context.Background()

	s.Require().NoError(store.Append(ctx, audit.Event{Action: audit.ActionMappingUpserted, DID: "15306885017", Persona: "CTO"}))
	s.Require().NoError(store.Append(ctx, audit.Event{Action: audit.ActionMappingDeleted, DID: "15306885017"}))

	consumer := s.redpanda.Consumer(s.T(), topic)
	defer consumer.Close()
	records := s.poll(consumer, 2)

	s.Equal(records[0].Partition, records[1].Partition)
	s.Equal(string(audit.ActionMappingUpserted), string(records[0].Headers[0].Value))
	s.Equal(string(audit.ActionMappingDeleted), string(records[1].Headers[0].Value))
}

func (s *KafkaStoreSuite) TestEnsureTopicIsIdempotent() {
	const topic = "sovren.mapping.idempotent"
	s.newStore(topic)
	store := s.newStore(topic)
	s.NoError(store.Ping(context.Background()))
}

func (s *KafkaStoreSuite) TestPublisherDeliversThroughKafka() {
	const topic = "sovren.mapping.publisher"
	publisher := audit.NewPublisher(s.newStore(topic), audit.WithAsyncBuffer(8))

	s.Require().NoError(publisher.Emit(context.Background(), audit.Event{Action: audit.ActionMappingDeleted, DID: "15306885066"}))
	s.Require().NoError(publisher.Close(context.Background()))

	consumer := s.redpanda.Consumer(s.T(), topic)
	defer consumer.Close()
	records := s.poll(consumer, 1)
	s.Equal("15306885066", string(records[0].Key))
}
