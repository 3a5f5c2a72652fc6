package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPartitionKey(t *testing.T) {
	actor, ch := uuid.New(), uuid.New()
	assert.Equal(t, ch.String(), Event{ActorID: actor, ChannelID: ch}.PartitionKey())
	assert.Equal(t, actor.String(), Event{ActorID: actor}.PartitionKey())
}

func TestEncode(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	ev := Event{Type: MessageCreated, ActorID: uuid.New(), ChannelID: uuid.New(), Subject: "42", At: at}

	msg, err := encode(ev)
	require.NoError(t, err)
	assert.Equal(t, ev.ChannelID.String(), string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "message.created", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev.Subject, decoded.Subject)
	assert.Equal(t, ev.Type, decoded.Type)
}

func TestNewKafkaPublisher_Validates(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "huddle.events"}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}, zap.NewNop())
	assert.Error(t, err)

	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "huddle.events"}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestKafkaPublisher_DoesNotBlockMutations(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "huddle.events"}, zap.New(core))
	require.NoError(t, err)
	defer p.Close()

	assert.True(t, p.writer.Async)
	assert.Equal(t, 10*time.Millisecond, p.writer.BatchTimeout)
	require.NotNil(t, p.writer.Completion)

	msg, err := encode(Event{Type: WorkspaceMemberAdded, ActorID: uuid.New()})
	require.NoError(t, err)
	p.writer.Completion([]kafka.Message{msg}, nil)
	assert.Zero(t, logs.Len())

	p.writer.Completion([]kafka.Message{msg}, errors.New("leader not available"))
	failed := logs.FilterMessage("event delivery failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "workspace.member_added", failed[0].ContextMap()["type"])
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, Event) error { return errors.New("broker down") }
func (failingPublisher) Close() error                         { return nil }

func TestEmit(t *testing.T) {
	rec := &Recorder{}
	Emit(context.Background(), rec, zap.NewNop(), Event{Type: MessagePinned, Subject: "1"})
	got := rec.OfType(MessagePinned)
	require.Len(t, got, 1)
	assert.False(t, got[0].At.IsZero(), "Emit stamps the event")

	core, logs := observer.New(zap.WarnLevel)
	Emit(context.Background(), failingPublisher{}, zap.New(core), Event{Type: MessageDeleted})
	assert.Equal(t, 1, logs.FilterMessage("event publish failed").Len())

	assert.NotPanics(t, func() { Emit(context.Background(), nil, zap.NewNop(), Event{}) })
}
