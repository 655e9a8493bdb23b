package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"gym-payments/internal/domain/ports/repository"
	portuc "gym-payments/internal/domain/ports/usecase"
	"gym-payments/internal/infra/metrics"
	"gym-payments/internal/infra/worker"

	"github.com/rs/zerolog"
)

const (
	kindOrphanPayment = "orphan_payment"
	kindStaleWebhook  = "stale_webhook"
)

// PaymentReconciler is the compensating sweep. Each run it completes activation for
// successful payments that have no subscription and replays webhook events that were
// logged but never processed.
type PaymentReconciler struct {
	completer  portuc.ActivationCompleter
	replayer   portuc.EventReplayer
	payments   repository.PaymentRepository
	events     repository.WebhookEventRepository
	pool       *worker.Pool
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old an item must be before it is retried
	batch      int
	now        func() time.Time
	log        *zerolog.Logger
}

type ReconcilerOptions struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
	Now        func() time.Time
}

func NewPaymentReconciler(
	completer portuc.ActivationCompleter,
	replayer portuc.EventReplayer,
	payments repository.PaymentRepository,
	events repository.WebhookEventRepository,
	pool *worker.Pool,
	opts ReconcilerOptions,
	logger *zerolog.Logger,
) *PaymentReconciler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 10 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		completer:  completer,
		replayer:   replayer,
		payments:   payments,
		events:     events,
		pool:       pool,
		interval:   opts.Interval,
		staleAfter: opts.StaleAfter,
		batch:      opts.BatchSize,
		now:        opts.Now,
		log:        &l,
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep and waits for every submitted item to finish.
func (w *PaymentReconciler) RunOnce(ctx context.Context) {
	cutoff := w.now().Add(-w.staleAfter)
	var wg sync.WaitGroup
	var failed atomic.Bool

	orphans, err := w.payments.ListWithoutSubscription(ctx, repository.NoTX, cutoff, w.batch)
	if err != nil {
		failed.Store(true)
		w.log.Error().Err(err).Msg("list orphan payments failed")
	}
	for _, p := range orphans {
		id := p.ID
		w.submit(&wg, &failed, kindOrphanPayment, id, func(ctx context.Context) error {
			_, err := w.completer.CompleteActivation(ctx, id)
			return err
		})
	}

	stale, err := w.events.ListUnprocessedOlderThan(ctx, repository.NoTX, cutoff, w.batch)
	if err != nil {
		failed.Store(true)
		w.log.Error().Err(err).Msg("list unprocessed webhook events failed")
	}
	for _, e := range stale {
		id := e.ID
		w.submit(&wg, &failed, kindStaleWebhook, id, func(ctx context.Context) error {
			return w.replayer.Replay(ctx, id)
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		w.log.Warn().Msg("sweep interrupted")
		return
	}
	switch {
	case failed.Load():
		metrics.IncReconcilerRun("error")
	case len(orphans) == 0 && len(stale) == 0:
		metrics.IncReconcilerRun("skipped")
	default:
		metrics.IncReconcilerRun("ok")
	}
}

func (w *PaymentReconciler) submit(wg *sync.WaitGroup, failed *atomic.Bool, kind, id string, fn func(ctx context.Context) error) {
	wg.Add(1)
	err := w.pool.Submit(func(ctx context.Context) error {
		defer wg.Done()
		if err := fn(ctx); err != nil {
			failed.Store(true)
			metrics.IncReconcilerItem(kind, "failed")
			w.log.Error().Err(err).Str("kind", kind).Str("id", id).Bool("needs_reconciliation", true).Msg("reconcile item failed")
			return nil
		}
		metrics.IncReconcilerItem(kind, "fixed")
		w.log.Info().Str("kind", kind).Str("id", id).Msg("reconciled")
		return nil
	})
	if err != nil {
		wg.Done()
		if errors.Is(err, worker.ErrQueueFull) {
			// picked up by the next sweep
			w.log.Warn().Str("kind", kind).Str("id", id).Msg("worker queue full; deferring item")
			return
		}
		failed.Store(true)
	}
}
