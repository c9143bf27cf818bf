package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")

const (
	defaultHandlerRetries = 3
	defaultRetryBackoff   = time.Second
	maxRetryBackoff       = 30 * time.Second
	fetchErrorPause       = time.Second
)

// Handler processes one decoded event.  Returning an error triggers retries
// and eventually the dead-letter topic.
type Handler func(ctx context.Context, env *EventEnvelope) error

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic in a consumer group and hands envelopes to a
// Handler.  Offsets commit only after the message is handled or parked on
// the dead-letter topic, so a crash never loses work.
type Consumer struct {
	reader     ReaderInterface
	handler    Handler
	deadLetter *Producer
	dlTopic    string
	log        logging.Logger

	retries      int
	retryBackoff time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	processed    atomic.Int64
	failed       atomic.Int64
	deadLettered atomic.Int64
}

// NewConsumer builds a group consumer for one topic.  deadLetter may be nil;
// exhausted messages are then dropped with an error log.
func NewConsumer(cfg config.KafkaConfig, topic string, handler Handler, deadLetter *Producer, log logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "kafka group id required")
	}
	if topic == "" {
		return nil, errors.New(errors.ErrCodeValidation, "topic required")
	}
	if handler == nil {
		return nil, errors.New(errors.ErrCodeValidation, "handler required")
	}

	startOffset := kafka.FirstOffset
	if cfg.AutoOffsetReset == "latest" {
		startOffset = kafka.LastOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       topic,
		StartOffset: startOffset,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	})

	return newConsumerWithReader(reader, handler, deadLetter, log), nil
}

func newConsumerWithReader(reader ReaderInterface, handler Handler, deadLetter *Producer, log logging.Logger) *Consumer {
	return &Consumer{
		reader:       reader,
		handler:      handler,
		deadLetter:   deadLetter,
		dlTopic:      TopicDeadLetterDocuments,
		log:          log.Named("kafka_consumer"),
		retries:      defaultHandlerRetries,
		retryBackoff: defaultRetryBackoff,
	}
}

// Start launches the consume loop in a goroutine.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)
	c.log.Info("kafka consumer started")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("fetch message failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(fetchErrorPause):
			}
			continue
		}

		env, err := envelopeFromValue(msg.Value)
		if err != nil {
			// A value that never was a valid envelope cannot succeed on
			// redelivery either.
			c.failed.Add(1)
			c.log.Warn("skipping undecodable message",
				logging.String("topic", msg.Topic),
				logging.Int64("offset", msg.Offset),
				logging.Err(err),
			)
			c.commit(ctx, msg)
			continue
		}

		if err := c.process(ctx, env); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.failed.Add(1)
			c.parkDeadLetter(ctx, msg, err)
		} else {
			c.processed.Add(1)
		}
		c.commit(ctx, msg)
	}
}

// process runs the handler with exponential backoff between attempts.
func (c *Consumer) process(ctx context.Context, env *EventEnvelope) error {
	err := c.handler(ctx, env)
	if err == nil {
		return nil
	}

	backoff := c.retryBackoff
	for attempt := 1; attempt <= c.retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if err = c.handler(ctx, env); err == nil {
			return nil
		}
		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
	return err
}

func (c *Consumer) parkDeadLetter(ctx context.Context, msg kafka.Message, cause error) {
	c.log.Error("message processing failed after retries",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Err(cause),
	)
	if c.deadLetter == nil {
		return
	}

	dlMsg := kafka.Message{
		Topic: c.dlTopic,
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: "original_topic", Value: []byte(msg.Topic)},
			{Key: "error_message", Value: []byte(cause.Error())},
		},
	}
	if err := c.deadLetter.writer.WriteMessages(ctx, dlMsg); err != nil {
		c.log.Error("dead-letter publish failed", logging.Err(err))
		return
	}
	c.deadLettered.Add(1)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.log.Error("commit offset failed",
			logging.Int64("offset", msg.Offset),
			logging.Err(err),
		)
	}
}

// Close stops the loop and closes the reader.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	err := c.reader.Close()
	c.log.Info("kafka consumer closed",
		logging.Int64("processed", c.processed.Load()),
		logging.Int64("failed", c.failed.Load()),
		logging.Int64("dead_lettered", c.deadLettered.Load()),
	)
	return err
}
