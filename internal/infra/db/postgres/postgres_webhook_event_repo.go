package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"gym-payments/internal/domain"
	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/repository"
	"gym-payments/internal/infra/metrics"
)

var _ repository.WebhookEventRepository = (*webhookEventRepo)(nil)

type webhookEventRepo struct{ pool *pgxpool.Pool }

func NewWebhookEventRepo(pool *pgxpool.Pool) *webhookEventRepo {
	return &webhookEventRepo{pool: pool}
}

const webhookEventColumns = `id, event_type, event_id, synthetic, external_account_id, payload,
  processed, processed_at, processing_error, note, attempts, created_at`

// CreateIfNotExists inserts and, on (event_type, event_id) conflict, reads the
// existing row back in the same round trip.
func (r *webhookEventRepo) CreateIfNotExists(ctx context.Context, tx repository.Tx, e *model.WebhookEvent) (bool, *model.WebhookEvent, error) {
	const q = `
WITH ins AS (
  INSERT INTO webhook_events (id, event_type, event_id, synthetic, external_account_id, payload, created_at)
  VALUES ($1, $2, $3, $4, $5, $6, $7)
  ON CONFLICT (event_type, event_id) DO NOTHING
  RETURNING ` + webhookEventColumns + `, TRUE AS created
)
SELECT * FROM ins
UNION ALL
SELECT ` + webhookEventColumns + `, FALSE AS created
  FROM webhook_events
 WHERE event_type = $2 AND event_id = $3 AND NOT EXISTS (SELECT 1 FROM ins);`
	row, err := pickRow(ctx, r.pool, tx, q,
		e.ID, e.EventType, e.EventID, e.Synthetic, e.ExternalAccountID, e.Payload, e.CreatedAt,
	)
	if err != nil {
		return false, nil, err
	}
	stored, created, err := scanWebhookEvent(row, true)
	if errors.Is(err, domain.ErrNotFound) {
		// lost a race with a concurrent insert that committed after our snapshot
		stored, err = r.findByKey(ctx, tx, e.EventType, e.EventID)
	}
	if err != nil {
		return false, nil, err
	}
	if !created {
		metrics.IncUniqueConflict("webhook_events")
	}
	return created, stored, nil
}

func (r *webhookEventRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.WebhookEvent, error) {
	q := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE id=$1`
	row, err := pickRow(ctx, r.pool, tx, forUpdate(q, tx), id)
	if err != nil {
		return nil, err
	}
	e, _, err := scanWebhookEvent(row, false)
	return e, err
}

func (r *webhookEventRepo) findByKey(ctx context.Context, tx repository.Tx, eventType, eventID string) (*model.WebhookEvent, error) {
	const q = `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE event_type=$1 AND event_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, eventType, eventID)
	if err != nil {
		return nil, err
	}
	e, _, err := scanWebhookEvent(row, false)
	return e, err
}

func (r *webhookEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string, at time.Time, note string) error {
	const q = `
UPDATE webhook_events
   SET processed = TRUE, processed_at = $2, note = $3, processing_error = '', attempts = attempts + 1
 WHERE id = $1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, at, note)
	return writeErr(err)
}

func (r *webhookEventRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, processingError string) error {
	const q = `UPDATE webhook_events SET processing_error = $2, attempts = attempts + 1 WHERE id = $1 AND NOT processed;`
	_, err := execSQL(ctx, r.pool, tx, q, id, processingError)
	return writeErr(err)
}

func (r *webhookEventRepo) ListUnprocessedOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + webhookEventColumns + `
  FROM webhook_events
 WHERE NOT processed AND created_at < $1
 ORDER BY created_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, writeErr(err)
	}
	defer rows.Close()

	var out []*model.WebhookEvent
	for rows.Next() {
		e, _, err := scanWebhookEvent(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, writeErr(rows.Err())
}

func scanWebhookEvent(row pgx.Row, withCreated bool) (*model.WebhookEvent, bool, error) {
	e := &model.WebhookEvent{}
	dest := []interface{}{
		&e.ID, &e.EventType, &e.EventID, &e.Synthetic, &e.ExternalAccountID, &e.Payload,
		&e.Processed, &e.ProcessedAt, &e.ProcessingError, &e.Note, &e.Attempts, &e.CreatedAt,
	}
	var created bool
	if withCreated {
		dest = append(dest, &created)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, false, scanErr(err)
	}
	return e, created, nil
}
