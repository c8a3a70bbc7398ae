package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	ResyncBatchSize    = 20
	ResyncBatchTimeout = 2 * time.Second
	ResyncPollTimeout  = 1 * time.Second
	// ResyncRetryDelay pauses the loop after a batch in which nothing could be
	// copied, so a down document store is not hammered.
	ResyncRetryDelay = 10 * time.Second
)

// Resyncer copies one fallback result to the primary store.
type Resyncer interface {
	Resync(ctx context.Context, resultID string) error
}

// Queue is the Redis list of result ids awaiting resync.
type Queue interface {
	Enqueue(ctx context.Context, resultID string) error
	Pop(ctx context.Context, timeout time.Duration) (string, error)
}

// PendingLister lists ids still held in the fallback store.
type PendingLister interface {
	PendingIDs(ctx context.Context) ([]string, error)
}

// ResyncWorker drains the resync queue, moving results parked in the local
// fallback store back into the document store.
type ResyncWorker struct {
	results Resyncer
	queue   Queue
	pending PendingLister
	log     zerolog.Logger

	retryDelay time.Duration
}

func NewResyncWorker(results Resyncer, queue Queue, pending PendingLister, log zerolog.Logger) *ResyncWorker {
	return &ResyncWorker{
		results:    results,
		queue:      queue,
		pending:    pending,
		log:        log.With().Str("component", "resync_worker").Logger(),
		retryDelay: ResyncRetryDelay,
	}
}

// Recover re-queues every id left in the fallback store, covering results
// written while Redis itself was unreachable. Duplicates are harmless since
// a resync of an already moved result is a no-op.
func (w *ResyncWorker) Recover(ctx context.Context) (int, error) {
	if w.pending == nil {
		return 0, nil
	}
	ids, err := w.pending.PendingIDs(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := w.queue.Enqueue(ctx, id); err != nil {
			return 0, err
		}
	}
	if len(ids) > 0 {
		w.log.Info().Int("count", len(ids)).Msg("Re-queued fallback results")
	}
	return len(ids), nil
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResyncWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResyncWorker started")

	batch := make([]string, 0, ResyncBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResyncBatchSize || time.Since(lastFlush) >= ResyncBatchTimeout) {

			if moved := w.flushSafe(ctx, batch); moved == 0 {
				w.pause(ctx)
			}
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			id, err := w.queue.Pop(ctx, ResyncPollTimeout)
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
					w.pause(ctx)
				}
				continue
			}
			if id == "" {
				continue
			}
			batch = append(batch, id)
		}
	}
}

func (w *ResyncWorker) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.retryDelay):
	}
}

// flushSafe resyncs every id, requeueing failures. It returns how many moved.
func (w *ResyncWorker) flushSafe(ctx context.Context, batch []string) int {
	moved := 0
	for _, id := range batch {
		if err := w.results.Resync(ctx, id); err != nil {
			w.log.Warn().Err(err).Str("result_id", id).Msg("Resync failed, requeueing")
			if qerr := w.queue.Enqueue(ctx, id); qerr != nil {
				w.log.Error().Err(qerr).Str("result_id", id).Msg("Requeue failed, result stays in fallback")
			}
			continue
		}
		moved++
	}
	if moved > 0 {
		w.log.Info().Int("moved", moved).Int("batch", len(batch)).Msg("Fallback results resynced")
	}
	return moved
}
