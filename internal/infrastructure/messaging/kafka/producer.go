package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.ErrCodeMessageQueueError, "producer closed")

const (
	defaultProducerRetries = 3
	defaultBatchSize       = 100
	defaultBatchTimeout    = time.Second
	defaultWriteTimeout    = 10 * time.Second
	maxMessageBytes        = 1 << 20
)

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes event envelopes.  One Producer serves all topics; the
// message key routes events for the same session or publication to the same
// partition.
type Producer struct {
	writer WriterInterface
	log    logging.Logger

	closed atomic.Bool
	sent   atomic.Int64
	failed atomic.Int64
}

func NewProducer(cfg config.KafkaConfig, log logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}

	retries := cfg.ProducerRetries
	if retries <= 0 {
		retries = defaultProducerRetries
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	writeTimeout := defaultWriteTimeout
	if cfg.TimeoutMS > 0 {
		writeTimeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            retries + 1,
		BatchSize:              batchSize,
		BatchTimeout:           defaultBatchTimeout,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: cfg.AutoCreateTopics,
	}

	return &Producer{writer: writer, log: log.Named("kafka_producer")}, nil
}

func newProducerWithWriter(writer WriterInterface, log logging.Logger) *Producer {
	return &Producer{writer: writer, log: log.Named("kafka_producer")}
}

// Publish sends one envelope to a topic.  The envelope's event type and
// schema version travel as headers so consumers can route without decoding.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, env *EventEnvelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if topic == "" {
		return errors.New(errors.ErrCodeValidation, "topic required")
	}
	if env == nil {
		return errors.New(errors.ErrCodeValidation, "event envelope required")
	}

	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "marshal event envelope failed")
	}
	if len(value) > maxMessageBytes {
		return errors.Newf(errors.ErrCodeValidation, "event of %d bytes exceeds message limit", len(value))
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  env.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "schema_version", Value: []byte(env.SchemaVersion)},
		},
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.failed.Add(1)
		return errors.Wrap(err, errors.ErrCodeMessageQueueError, "publish failed")
	}
	p.sent.Add(1)

	p.log.Debug("event published",
		logging.String("topic", topic),
		logging.String("event_type", env.EventType),
		logging.Int64("latency_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// PublishAnalysisCompleted announces a finished analysis, keyed by session
// so one session's events stay ordered.
func (p *Producer) PublishAnalysisCompleted(ctx context.Context, payload AnalysisCompletedPayload) error {
	env, err := NewEventEnvelope(EventTypeAnalysisCompleted, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, TopicAnalysisCompleted, []byte(payload.SessionID), env)
}

// PublishPatentDocument queues one document for the ingestion worker, keyed
// by publication number for idempotent re-delivery.
func (p *Producer) PublishPatentDocument(ctx context.Context, payload PatentDocumentPayload) error {
	env, err := NewEventEnvelope(EventTypePatentDocument, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, TopicPatentDocuments, []byte(payload.Document.PublicationNumber), env)
}

// Close flushes and shuts the writer down.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.log.Info("kafka producer closed",
		logging.Int64("sent", p.sent.Load()),
		logging.Int64("failed", p.failed.Load()),
	)
	return err
}
