package ranking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IWhitebird/trophy-leaderboard/config"
	"github.com/IWhitebird/trophy-leaderboard/internal/logging"
	"github.com/IWhitebird/trophy-leaderboard/internal/metrics"
	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

const retryBackoff = 50 * time.Millisecond

// writeThrough batches score writes for the durable store. A single flusher
// keeps only the newest write per player, then upserts the batch in one
// transaction. Writes that do not fit in the queue go out directly.
type writeThrough struct {
	store   ScoreWriter
	queue   chan models.ScoreWrite
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool
	timeout time.Duration

	batchSize     int
	flushInterval time.Duration
	maxAttempts   int
}

func newWriteThrough(store ScoreWriter, cfg config.WriteThroughConfig, timeout time.Duration) *writeThrough {
	ctx, cancel := context.WithCancel(context.Background())

	w := &writeThrough{
		store:         store,
		queue:         make(chan models.ScoreWrite, max(cfg.QueueSize, 1)),
		ctx:           ctx,
		cancel:        cancel,
		timeout:       timeout,
		batchSize:     max(cfg.BatchSize, 1),
		flushInterval: cfg.FlushInterval,
		maxAttempts:   max(cfg.MaxAttempts, 1),
	}
	if w.flushInterval <= 0 {
		w.flushInterval = 250 * time.Millisecond
	}

	w.wg.Add(1)
	go w.run()
	return w
}

// Enqueue never drops a write. A full queue turns it into a detached direct
// upsert; after Close it is written synchronously.
func (w *writeThrough) Enqueue(write models.ScoreWrite) {
	if w.closed.Load() {
		w.write([]models.ScoreWrite{write})
		return
	}

	select {
	case w.queue <- write:
		metrics.SetWriteThroughQueueDepth(len(w.queue))
		return
	default:
		logging.Warn("Write-through queue full, writing directly", "player_id", write.PlayerID)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.write([]models.ScoreWrite{write})
	}()
}

func (w *writeThrough) run() {
	defer w.wg.Done()

	pending := make(map[string]models.ScoreWrite, w.batchSize)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case write := <-w.queue:
			coalesce(pending, write)
			if len(pending) >= w.batchSize {
				w.flush(pending)
			}

		case <-ticker.C:
			w.flush(pending)

		case <-w.ctx.Done():
			for {
				select {
				case write := <-w.queue:
					coalesce(pending, write)
				default:
					w.flush(pending)
					return
				}
			}
		}
	}
}

// coalesce keeps the newest score for each player and merges attribute
// patches so no patched field is lost.
func coalesce(pending map[string]models.ScoreWrite, write models.ScoreWrite) {
	existing, ok := pending[write.PlayerID]
	if !ok {
		pending[write.PlayerID] = write
		return
	}

	older, newer := existing, write
	if write.UpdatedAt.Before(existing.UpdatedAt) {
		older, newer = write, existing
	}
	newer.Patch = mergePatches(older.Patch, newer.Patch)
	pending[write.PlayerID] = newer
}

func mergePatches(older, newer *models.AttributesPatch) *models.AttributesPatch {
	if older.IsEmpty() {
		return newer
	}
	if newer.IsEmpty() {
		return older
	}
	merged := *older
	if newer.DisplayName != nil {
		merged.DisplayName = newer.DisplayName
	}
	if newer.AvatarRef != nil {
		merged.AvatarRef = newer.AvatarRef
	}
	if newer.Level != nil {
		merged.Level = newer.Level
	}
	if newer.Title != nil {
		merged.Title = newer.Title
	}
	return &merged
}

func (w *writeThrough) flush(pending map[string]models.ScoreWrite) {
	metrics.SetWriteThroughQueueDepth(len(w.queue))
	if len(pending) == 0 {
		return
	}

	batch := make([]models.ScoreWrite, 0, len(pending))
	for _, write := range pending {
		batch = append(batch, write)
	}
	clear(pending)

	w.write(batch)
}

// write upserts batch, retrying up to maxAttempts times.
func (w *writeThrough) write(batch []models.ScoreWrite) {
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		ctx, cancel := withTimeout(context.Background(), w.timeout)
		var err error
		if len(batch) == 1 {
			err = w.store.UpsertScore(ctx, batch[0])
		} else {
			err = w.store.UpsertScores(ctx, batch)
		}
		cancel()

		if err == nil {
			metrics.RecordWriteThroughBatch(len(batch))
			return
		}

		metrics.RecordWriteThroughFailure()
		logging.Error("Write-through attempt failed", "attempt", attempt, "max", w.maxAttempts, "records", len(batch), "error", err)
		if attempt < w.maxAttempts {
			time.Sleep(time.Duration(attempt) * retryBackoff)
		}
	}

	logging.Error("Giving up on write-through batch", "records", len(batch))
}

// Close stops accepting queued writes, flushes what is pending and waits for
// in-flight direct writes.
func (w *writeThrough) Close() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	w.cancel()
	w.wg.Wait()

	// Writes that raced with shutdown.
	for {
		select {
		case write := <-w.queue:
			w.write([]models.ScoreWrite{write})
		default:
			return
		}
	}
}
