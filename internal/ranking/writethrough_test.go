package ranking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IWhitebird/trophy-leaderboard/config"
	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

type recordingWriter struct {
	mu       sync.Mutex
	batches  [][]models.ScoreWrite
	failures int

	// Writes containing blockOn wait for gate to close.
	blockOn string
	gate    chan struct{}
}

func (r *recordingWriter) UpsertScore(ctx context.Context, w models.ScoreWrite) error {
	return r.UpsertScores(ctx, []models.ScoreWrite{w})
}

func (r *recordingWriter) UpsertScores(_ context.Context, writes []models.ScoreWrite) error {
	if r.gate != nil {
		for _, w := range writes {
			if w.PlayerID == r.blockOn {
				<-r.gate
				break
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failures > 0 {
		r.failures--
		return errors.New("deadlock detected")
	}
	r.batches = append(r.batches, append([]models.ScoreWrite(nil), writes...))
	return nil
}

func (r *recordingWriter) written() map[string]models.ScoreWrite {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := map[string]models.ScoreWrite{}
	for _, batch := range r.batches {
		for _, w := range batch {
			out[w.PlayerID] = w
		}
	}
	return out
}

func (r *recordingWriter) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestWriteThrough_CoalescesPerPlayer(t *testing.T) {
	writer := &recordingWriter{}
	wt := newWriteThrough(writer, config.WriteThroughConfig{
		QueueSize:     100,
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxAttempts:   1,
	}, time.Second)

	t0 := time.Now()
	name := "Knight"
	title := "Legend"
	wt.Enqueue(models.ScoreWrite{PlayerID: "p1", Score: 10, Patch: &models.AttributesPatch{DisplayName: &name}, UpdatedAt: t0})
	wt.Enqueue(models.ScoreWrite{PlayerID: "p1", Score: 30, Patch: &models.AttributesPatch{Title: &title}, UpdatedAt: t0.Add(2 * time.Millisecond)})
	wt.Enqueue(models.ScoreWrite{PlayerID: "p1", Score: 20, UpdatedAt: t0.Add(time.Millisecond)})
	wt.Enqueue(models.ScoreWrite{PlayerID: "p2", Score: 5, UpdatedAt: t0})
	wt.Close()

	require.Equal(t, 1, writer.batchCount())
	got := writer.written()
	require.Len(t, got, 2)

	p1 := got["p1"]
	assert.Equal(t, int64(30), p1.Score)
	require.NotNil(t, p1.Patch)
	assert.Equal(t, "Knight", *p1.Patch.DisplayName)
	assert.Equal(t, "Legend", *p1.Patch.Title)
	assert.Equal(t, int64(5), got["p2"].Score)
}

func TestWriteThrough_RetriesFailedBatch(t *testing.T) {
	writer := &recordingWriter{failures: 2}
	wt := newWriteThrough(writer, config.WriteThroughConfig{
		QueueSize:     10,
		BatchSize:     1,
		FlushInterval: time.Hour,
		MaxAttempts:   3,
	}, time.Second)

	wt.Enqueue(models.ScoreWrite{PlayerID: "p1", Score: 42, UpdatedAt: time.Now()})
	wt.Close()

	assert.Equal(t, int64(42), writer.written()["p1"].Score)
}

func TestWriteThrough_GivesUpAfterMaxAttempts(t *testing.T) {
	writer := &recordingWriter{failures: 5}
	wt := newWriteThrough(writer, config.WriteThroughConfig{
		QueueSize:     10,
		BatchSize:     1,
		FlushInterval: time.Hour,
		MaxAttempts:   2,
	}, time.Second)

	wt.Enqueue(models.ScoreWrite{PlayerID: "p1", Score: 42, UpdatedAt: time.Now()})
	wt.Close()

	assert.Empty(t, writer.written())
	writer.mu.Lock()
	assert.Equal(t, 3, writer.failures)
	writer.mu.Unlock()
}

func TestWriteThrough_FullQueueWritesDirectly(t *testing.T) {
	writer := &recordingWriter{blockOn: "p1", gate: make(chan struct{})}
	wt := newWriteThrough(writer, config.WriteThroughConfig{
		QueueSize:     1,
		BatchSize:     1,
		FlushInterval: time.Hour,
		MaxAttempts:   1,
	}, time.Second)

	// p1 blocks the flusher inside the store
	wt.Enqueue(models.ScoreWrite{PlayerID: "p1", Score: 1, UpdatedAt: time.Now()})
	require.Eventually(t, func() bool { return len(wt.queue) == 0 }, time.Second, time.Millisecond)

	// p2 fills the queue, p3 overflows it
	wt.Enqueue(models.ScoreWrite{PlayerID: "p2", Score: 2, UpdatedAt: time.Now()})
	wt.Enqueue(models.ScoreWrite{PlayerID: "p3", Score: 3, UpdatedAt: time.Now()})

	require.Eventually(t, func() bool {
		_, ok := writer.written()["p3"]
		return ok
	}, time.Second, time.Millisecond)

	close(writer.gate)
	wt.Close()

	got := writer.written()
	assert.Len(t, got, 3)
}

func TestWriteThrough_WritesAfterClose(t *testing.T) {
	writer := &recordingWriter{}
	wt := newWriteThrough(writer, config.WriteThroughConfig{QueueSize: 1, BatchSize: 1, MaxAttempts: 1}, time.Second)
	wt.Close()

	wt.Enqueue(models.ScoreWrite{PlayerID: "late", Score: 7, UpdatedAt: time.Now()})
	assert.Equal(t, int64(7), writer.written()["late"].Score)
}

func TestMergePatches(t *testing.T) {
	a, b := "a", "b"
	level := 3

	assert.Nil(t, mergePatches(nil, nil))
	only := &models.AttributesPatch{DisplayName: &a}
	assert.Same(t, only, mergePatches(nil, only))
	assert.Same(t, only, mergePatches(only, &models.AttributesPatch{}))

	merged := mergePatches(&models.AttributesPatch{DisplayName: &a, Level: &level}, &models.AttributesPatch{DisplayName: &b})
	assert.Equal(t, "b", *merged.DisplayName)
	assert.Equal(t, 3, *merged.Level)
}
