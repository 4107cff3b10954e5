// Package messaging defines the broker-agnostic contract between the ingress
// (which enqueues conversion events) and the worker (which consumes them).
package messaging

import (
	"context"
	"errors"
	"time"
)

// ErrTerminal marks a handler failure that redelivery cannot fix. Consumers
// drop the message instead of scheduling a retry.
var ErrTerminal = errors.New("terminal handler failure")

// Message is one queued conversion event.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the raw JSON payload as received at the ingress.
	Data []byte

	// Metadata carries optional headers (request id, received-at).
	Metadata map[string]string

	// Attempt is the 1-based delivery attempt for this message.
	Attempt uint64

	// Timestamp is when the message was published.
	Timestamp time.Time
}

// MessageHandler processes one queued message. A nil return acknowledges the
// message; an error schedules redelivery unless it wraps ErrTerminal.
type MessageHandler func(ctx context.Context, msg *Message) error

// Publisher enqueues payloads durably. The ingress holds this interface so
// handlers never depend on a concrete broker.
type Publisher interface {
	// Publish enqueues data on subject and does not return until the broker
	// has accepted responsibility for it.
	Publish(ctx context.Context, subject string, data []byte) error

	// Close releases broker resources.
	Close() error
}
