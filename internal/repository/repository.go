// Package repository persists enriched conversion events to PostgreSQL.
package repository

import (
	"context"
	"time"

	"github.com/convrelay/convrelay/internal/models"
)

// StoredEvent identifies a freshly inserted row.
type StoredEvent struct {
	EventID   string
	CreatedAt time.Time
}

// EventStore abstracts event persistence for the pipeline.
//
// Insert is idempotent on event_id: re-delivering an already stored event
// resolves to a no-op and returns (nil, nil) without touching the existing
// row. Any returned error is fatal to the calling job.
type EventStore interface {
	Insert(ctx context.Context, event *models.EnrichedEvent) (*StoredEvent, error)
}
