//go:build integration

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"linkage/pkg/testutil/containers"
)

const testTopic = "contact.events.test"

type PublisherSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redpanda = mgr.GetRedpanda(s.T())
}

func (s *PublisherSuite) TestDrainPublishesAndMarks() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outbox := NewMemoryOutbox()
	for _, email := range []string{"a@example.com", "b@example.com"} {
		err := outbox.Record(ctx, Event{
			Type:             TypeContactCreated,
			ContactID:        1,
			PrimaryContactID: 1,
			Email:            email,
		})
		s.Require().NoError(err)
	}

	logger := slog.New(slog.DiscardHandler)
	publisher, err := NewPublisher(ctx, []string{s.redpanda.Broker}, testTopic, outbox, logger)
	s.Require().NoError(err)
	defer publisher.client.Close()

	s.Require().NoError(publisher.drainOnce(ctx))

	remaining, err := outbox.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(remaining, "acked entries leave the outbox")

	// A second drain with an empty backlog is a no-op.
	s.Require().NoError(publisher.drainOnce(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got []Event
	deadline := time.After(20 * time.Second)
	for len(got) < 2 {
		select {
		case <-deadline:
			s.FailNow("timed out waiting for published events")
		default:
		}
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(fetches.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			var e Event
			s.Require().NoError(json.Unmarshal(r.Value, &e))
			s.Equal(e.ID.String(), string(r.Key), "record key is the event id")
			got = append(got, e)
		})
	}

	s.Len(got, 2)
	s.Equal("a@example.com", got[0].Email)
	s.Equal("b@example.com", got[1].Email)
}

func (s *PublisherSuite) TestEnsureTopicIsIdempotent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := slog.New(slog.DiscardHandler)
	outbox := NewMemoryOutbox()

	first, err := NewPublisher(ctx, []string{s.redpanda.Broker}, "contact.events.idempotent", outbox, logger)
	s.Require().NoError(err)
	first.client.Close()

	second, err := NewPublisher(ctx, []string{s.redpanda.Broker}, "contact.events.idempotent", outbox, logger)
	s.Require().NoError(err, "recreating an existing topic must not fail")
	second.client.Close()
}
