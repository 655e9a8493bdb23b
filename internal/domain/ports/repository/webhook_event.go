package repository

import (
	"context"
	"time"

	"gym-payments/internal/domain/model"
)

// WebhookEventRepository is the durable event log.
type WebhookEventRepository interface {
	// CreateIfNotExists records e unless (event_type, event_id) is already logged.
	// It always returns the stored row; created reports whether this call inserted it.
	CreateIfNotExists(ctx context.Context, tx Tx, e *model.WebhookEvent) (created bool, stored *model.WebhookEvent, err error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.WebhookEvent, error)
	// MarkProcessed sets processed=true; note is kept for events acknowledged without effect.
	MarkProcessed(ctx context.Context, tx Tx, id string, at time.Time, note string) error
	MarkFailed(ctx context.Context, tx Tx, id string, processingError string) error
	ListUnprocessedOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.WebhookEvent, error)
}
