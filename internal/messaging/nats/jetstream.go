package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/convrelay/convrelay/internal/logging"
	"github.com/convrelay/convrelay/internal/messaging"
)

// JetStreamClient extends Client with durable, at-least-once queueing.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// StreamConfig defines a JetStream stream.
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
	MaxBytes int64
	MaxMsgs  int64

	// Retention policy; the conversion queue uses WorkQueuePolicy so each
	// event is consumed exactly once from the stream.
	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType
}

// ConsumerConfig defines a durable consumer.
type ConsumerConfig struct {
	Name          string
	FilterSubject string

	// AckWait is how long a worker may hold a message before redelivery.
	AckWait time.Duration

	// MaxDeliver bounds delivery attempts; afterwards the message is dropped.
	MaxDeliver int

	// MaxAckPending caps in-flight messages and is therefore the effective
	// worker-pool concurrency bound.
	MaxAckPending int

	// RetryBase and RetryMax shape the exponential redelivery backoff.
	RetryBase time.Duration
	RetryMax  time.Duration
}

// ConversionsStream is the durable work queue for conversion events.
var ConversionsStream = StreamConfig{
	Name:      messaging.StreamConversions,
	Subjects:  []string{"conversions.>"},
	MaxAge:    24 * time.Hour,
	MaxBytes:  1024 * 1024 * 1024,
	MaxMsgs:   1_000_000,
	Retention: jetstream.WorkQueuePolicy,
	Storage:   jetstream.FileStorage,
}

// DefaultConsumerConfig returns the worker-pool consumer defaults.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Name:          messaging.ConsumerConversionWorkers,
		FilterSubject: messaging.SubjectConversionsTrack,
		AckWait:       60 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: 10,
		RetryBase:     5 * time.Second,
		RetryMax:      10 * time.Minute,
	}
}

// NewJetStreamClient creates a JetStream-enabled client.
func NewJetStreamClient(cfg Config, log *logging.Logger) (*JetStreamClient, error) {
	client, err := NewClient(cfg, log)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &JetStreamClient{Client: client, js: js}, nil
}

// EnsureStream creates or updates a stream. Both ingress and worker call this
// at startup so either can come up first.
func (c *JetStreamClient) EnsureStream(ctx context.Context, cfg StreamConfig) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		MaxMsgs:   cfg.MaxMsgs,
		Retention: cfg.Retention,
		Storage:   cfg.Storage,
	})
	if err != nil {
		return fmt.Errorf("create/update stream %s: %w", cfg.Name, err)
	}
	return nil
}

// EnsureConsumer creates or updates a durable consumer on a stream.
func (c *JetStreamClient) EnsureConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) error {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", streamName, err)
	}

	_, err = stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.Name,
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("create/update consumer %s: %w", cfg.Name, err)
	}
	return nil
}

// Publish enqueues a payload and waits for the stream's acknowledgment, so a
// 202 from the ingress means the event is durably queued.
func (c *JetStreamClient) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Consume pulls messages from a durable consumer and runs handler on each.
//
// A nil handler result acks the message. An error wrapping
// messaging.ErrTerminal terminates the message (no redelivery). Any other
// error naks with exponential backoff derived from the delivery attempt, up
// to the consumer's MaxDeliver.
//
// The returned stop function halts consumption; in-flight handlers finish.
func (c *JetStreamClient) Consume(ctx context.Context, streamName string, cfg ConsumerConfig, handler messaging.MessageHandler) (func(), error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", streamName, err)
	}

	consumer, err := stream.Consumer(ctx, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("get consumer %s: %w", cfg.Name, err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)

	var inflight sync.WaitGroup
	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		inflight.Add(1)
		defer inflight.Done()

		m := &messaging.Message{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Attempt:   1,
			Timestamp: time.Now(),
		}

		if meta, err := msg.Metadata(); err == nil {
			m.Attempt = meta.NumDelivered
			m.Timestamp = meta.Timestamp
		}

		if headers := msg.Headers(); headers != nil {
			m.Metadata = make(map[string]string, len(headers))
			for k := range headers {
				m.Metadata[k] = headers.Get(k)
			}
		}

		err := handler(consumeCtx, m)
		switch {
		case err == nil:
			_ = msg.Ack()
		case errors.Is(err, messaging.ErrTerminal):
			c.log.Warn("dropping message", "subject", m.Subject, logging.FieldError, err.Error())
			_ = msg.Term()
		default:
			delay := retryDelay(cfg, m.Attempt)
			c.log.Warn("scheduling redelivery",
				"subject", m.Subject, "attempt", m.Attempt,
				"delay", delay.String(), logging.FieldError, err.Error())
			_ = msg.NakWithDelay(delay)
		}
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start consuming: %w", err)
	}

	return func() {
		// Stop delivery and wait for handlers already running before
		// cancelling their context, so in-flight attempts finish instead of
		// failing on a dead context.
		cons.Stop()
		inflight.Wait()
		cancel()
	}, nil
}

// retryDelay doubles per attempt from RetryBase, capped at RetryMax.
func retryDelay(cfg ConsumerConfig, attempt uint64) time.Duration {
	base := cfg.RetryBase
	if base <= 0 {
		base = 5 * time.Second
	}
	max := cfg.RetryMax
	if max <= 0 {
		max = 10 * time.Minute
	}

	delay := base
	for i := uint64(1); i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}
