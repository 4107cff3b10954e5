// Package pipeline runs the per-event processing sequence: decode, resolve
// identity, enrich with geolocation, persist, forward.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/convrelay/convrelay/internal/capi"
	"github.com/convrelay/convrelay/internal/identity"
	"github.com/convrelay/convrelay/internal/logging"
	"github.com/convrelay/convrelay/internal/metrics"
	"github.com/convrelay/convrelay/internal/models"
	"github.com/convrelay/convrelay/internal/repository"
)

// ErrMalformed marks payloads that can never succeed. Consumers should drop
// these instead of redelivering.
var ErrMalformed = errors.New("malformed event payload")

// GeoEnricher resolves an IP address to location fields. Implementations
// degrade to an empty result rather than failing the event.
type GeoEnricher interface {
	Enrich(ctx context.Context, ip string) models.GeoFields
}

// EventStore persists enriched events idempotently.
type EventStore interface {
	Insert(ctx context.Context, event *models.EnrichedEvent) (*repository.StoredEvent, error)
}

// Forwarder transmits the privacy-hashed projection downstream.
type Forwarder interface {
	Forward(ctx context.Context, raw *models.RawEvent, geo models.GeoFields, eventID string, eventTime int64) (capi.Outcome, error)
}

// Pipeline processes one conversion event end to end. Safe for concurrent use.
type Pipeline struct {
	enricher  GeoEnricher
	store     EventStore
	forwarder Forwarder
	log       *logging.Logger

	now func() time.Time
}

// New assembles a pipeline from its three stages.
func New(enricher GeoEnricher, store EventStore, forwarder Forwarder, log *logging.Logger) *Pipeline {
	if log == nil {
		log = logging.Default()
	}
	return &Pipeline{
		enricher:  enricher,
		store:     store,
		forwarder: forwarder,
		log:       log,
		now:       time.Now,
	}
}

// Process handles one queued payload.
//
// Stage ordering is load-bearing: persistence must succeed (or resolve to a
// duplicate no-op) before anything leaves for the Conversions API, so a
// storage outage never produces forwarded-but-unrecorded events. Geo
// enrichment failure is absorbed; storage and forwarding errors propagate so
// the queue redelivers.
func (p *Pipeline) Process(ctx context.Context, payload []byte) error {
	start := time.Now()

	var raw models.RawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		metrics.JobsProcessed.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	eventTime := identity.ResolveEventTime(&raw, p.now())
	eventID := identity.ResolveEventID(&raw, eventTime)

	log := p.log.With(logging.EventID(eventID), logging.EventName(raw.DisplayName()))

	geo := p.enricher.Enrich(ctx, raw.ClientIPAddress())

	stored, err := p.store.Insert(ctx, &models.EnrichedEvent{
		Raw:       raw,
		EventID:   eventID,
		EventTime: eventTime,
		Geo:       geo,
	})
	if err != nil {
		metrics.JobsProcessed.WithLabelValues("store_error").Inc()
		return fmt.Errorf("persist event: %w", err)
	}
	if stored == nil {
		log.InfoContext(ctx, "duplicate event, row untouched")
	}

	outcome, err := p.forwarder.Forward(ctx, &raw, geo, eventID, eventTime)
	if err != nil {
		metrics.JobsProcessed.WithLabelValues("forward_error").Inc()
		return fmt.Errorf("forward event: %w", err)
	}

	metrics.JobsProcessed.WithLabelValues("ok").Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())
	log.InfoContext(ctx, "event processed", logging.Outcome(string(outcome)))
	return nil
}
