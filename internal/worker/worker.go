// Package worker consumes queued conversion events and runs them through the
// processing pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/convrelay/convrelay/internal/logging"
	"github.com/convrelay/convrelay/internal/messaging"
	"github.com/convrelay/convrelay/internal/messaging/nats"
	"github.com/convrelay/convrelay/internal/pipeline"
)

// Processor is the per-event entry point the worker drives.
type Processor interface {
	Process(ctx context.Context, payload []byte) error
}

// Worker runs the durable consumer loop.
type Worker struct {
	client    *nats.JetStreamClient
	processor Processor
	cfg       nats.ConsumerConfig
	log       *logging.Logger

	stop func()
}

// New creates a worker bound to a consumer configuration.
func New(client *nats.JetStreamClient, processor Processor, cfg nats.ConsumerConfig, log *logging.Logger) *Worker {
	if log == nil {
		log = logging.Default()
	}
	return &Worker{client: client, processor: processor, cfg: cfg, log: log}
}

// Start ensures the stream and consumer exist and begins consuming. It
// returns once consumption is running; processing happens on the consumer's
// goroutines until Stop.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.client.EnsureStream(ctx, nats.ConversionsStream); err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}
	if err := w.client.EnsureConsumer(ctx, messaging.StreamConversions, w.cfg); err != nil {
		return fmt.Errorf("ensure consumer: %w", err)
	}

	stop, err := w.client.Consume(ctx, messaging.StreamConversions, w.cfg, w.handle)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	w.stop = stop

	w.log.Info("worker consuming",
		"stream", messaging.StreamConversions,
		"consumer", w.cfg.Name,
		"max_in_flight", w.cfg.MaxAckPending)
	return nil
}

// handle adapts the pipeline to the queue contract. Payloads the pipeline can
// never parse are terminal; everything else retries with backoff.
func (w *Worker) handle(ctx context.Context, msg *messaging.Message) error {
	err := w.processor.Process(ctx, msg.Data)
	if err == nil {
		return nil
	}
	if errors.Is(err, pipeline.ErrMalformed) {
		return fmt.Errorf("%w: %v", messaging.ErrTerminal, err)
	}
	return err
}

// Stop halts consumption. In-flight events finish their current attempt.
func (w *Worker) Stop() {
	if w.stop != nil {
		w.stop()
	}
}
