package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig configures the producer.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	// BatchTimeout caps how long a partial batch waits before it is sent.
	BatchTimeout time.Duration
}

// KafkaPublisher writes events as JSON to one topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a producer. Connections are opened lazily on the
// first write, so a broker that is down at startup does not block boot.
//
// The writer is async: Publish only enqueues, and delivery failures are
// logged from the completion callback. Events are emitted inline by
// mutations, and a synchronous write would hold each one for a batch flush.
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: no brokers")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher: no topic")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &KafkaPublisher{logger: logger}
	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           cfg.WriteTimeout,
		BatchTimeout:           cfg.BatchTimeout,
		Async:                  true,
		Completion:             p.completed,
		AllowAutoTopicCreation: true,
	}
	return p, nil
}

// completed runs on the writer's goroutine once a batch is acknowledged or
// has exhausted its retries.
func (p *KafkaPublisher) completed(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range msgs {
		p.logger.Warn("event delivery failed",
			zap.String("type", headerValue(m, "type")),
			zap.ByteString("key", m.Key),
			zap.Error(err),
		)
	}
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Publish enqueues ev. The returned error covers encoding and a closed
// writer only; delivery failures surface in the log.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s: %w", ev.Type, err)
	}
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encode(ev Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event %s: %w", ev.Type, err)
	}
	return kafka.Message{
		Key:   []byte(ev.PartitionKey()),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}, nil
}
