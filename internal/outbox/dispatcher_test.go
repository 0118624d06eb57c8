package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type recordedWrite struct {
	topic    string
	messages []kafka.Message
}

type stubProducer struct {
	writes []recordedWrite
	failOn string
	err    error
}

func (p *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	if p.err != nil && (p.failOn == "" || p.failOn == topic) {
		return p.err
	}
	p.writes = append(p.writes, recordedWrite{topic: topic, messages: msgs})
	return nil
}

func TestDeliverGroupsByTopicInOutboxOrder(t *testing.T) {
	producer := &stubProducer{}
	messages := []Message{
		{EventID: 1, Topic: "gym_session_events", EventType: "session.recorded", AggregateID: "11", PartitionKey: "3", SchemaVersion: "v1", Payload: json.RawMessage(`{"session_id":11}`)},
		{EventID: 2, Topic: "gym_catalog_events", EventType: "exercises.registered", AggregateID: "catalog", PartitionKey: "catalog", SchemaVersion: "v1", Payload: json.RawMessage(`{"names":["Squat"]}`)},
		{EventID: 3, Topic: "gym_session_events", EventType: "session.deleted", AggregateID: "11", PartitionKey: "3", SchemaVersion: "v1", Payload: json.RawMessage(`{"session_id":11}`)},
	}

	require.NoError(t, deliver(context.Background(), producer, messages))

	require.Len(t, producer.writes, 2)
	require.Equal(t, "gym_session_events", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, "gym_catalog_events", producer.writes[1].topic)

	first := producer.writes[0].messages[0]
	require.Equal(t, []byte("3"), first.Key)
	require.JSONEq(t, `{"session_id":11}`, string(first.Value))
	require.Equal(t, "session.recorded", headerOf(first, HeaderEventType))
	require.Equal(t, "session.deleted", headerOf(producer.writes[0].messages[1], HeaderEventType))
}

func TestDeliverRejectsMessagesWithoutTopic(t *testing.T) {
	producer := &stubProducer{}
	err := deliver(context.Background(), producer, []Message{{EventID: 9}})
	require.ErrorContains(t, err, "outbox event 9 has no topic")
	require.Empty(t, producer.writes)
}

func TestDeliverWrapsWriterErrors(t *testing.T) {
	boom := errors.New("broker unavailable")
	producer := &stubProducer{err: boom, failOn: "gym_catalog_events"}
	messages := []Message{
		{EventID: 1, Topic: "gym_session_events"},
		{EventID: 2, Topic: "gym_catalog_events"},
	}

	err := deliver(context.Background(), producer, messages)
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "write gym_catalog_events")
	require.Len(t, producer.writes, 1)
}

func TestKafkaMessageCarriesHeaders(t *testing.T) {
	msg := Message{AggregateID: "42", EventType: "session.recorded", SchemaVersion: "v1", PartitionKey: "7", Payload: json.RawMessage(`{}`)}.kafkaMessage()

	require.Equal(t, "session.recorded", headerOf(msg, HeaderEventType))
	require.Equal(t, "42", headerOf(msg, HeaderAggregateID))
	require.Equal(t, "v1", headerOf(msg, HeaderSchemaVersion))
	require.Equal(t, []byte("7"), msg.Key)
}

func TestBackoffDelay(t *testing.T) {
	m := NewDLQManager(nil, 3, time.Second, nil)

	require.Equal(t, time.Second, m.backoffDelay(0))
	require.Equal(t, time.Second, m.backoffDelay(1))
	require.Equal(t, 4*time.Second, m.backoffDelay(3))
	require.Equal(t, maxBackoff, m.backoffDelay(20))
	require.Equal(t, maxBackoff, m.backoffDelay(64))
}

func TestNewDLQManagerDefaults(t *testing.T) {
	m := NewDLQManager(nil, 0, 0, nil)
	require.Equal(t, 5, m.maxRetries)
	require.Equal(t, time.Minute, m.baseDelay)
}

func headerOf(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
