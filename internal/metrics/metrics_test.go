package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(tierFallbacks.WithLabelValues("get_rank", "durable"))
	RecordFallback("get_rank", "durable")
	assert.Equal(t, before+1, testutil.ToFloat64(tierFallbacks.WithLabelValues("get_rank", "durable")))

	hits := testutil.ToFloat64(snapshotLookups.WithLabelValues("hit"))
	RecordSnapshotLookup(true)
	RecordSnapshotLookup(false)
	assert.Equal(t, hits+1, testutil.ToFloat64(snapshotLookups.WithLabelValues("hit")))

	records := testutil.ToFloat64(writeThroughRecords)
	RecordWriteThroughBatch(5)
	assert.Equal(t, records+5, testutil.ToFloat64(writeThroughRecords))

	failed := testutil.ToFloat64(eventsPublished.WithLabelValues("failure"))
	RecordEventsPublished(3, false)
	assert.Equal(t, failed+3, testutil.ToFloat64(eventsPublished.WithLabelValues("failure")))

	SetWriteThroughQueueDepth(12)
	assert.Equal(t, float64(12), testutil.ToFloat64(writeThroughQueueDepth))
}

func TestHandler(t *testing.T) {
	RecordScoreUpdate()
	ObserveOperation("apply_score_delta", time.Now())
	RecordHTTPRequest("/api/health", http.MethodGet, http.StatusOK)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "trophy_ranking_score_updates_total")
	assert.Contains(t, string(body), "trophy_ranking_operation_duration_seconds")
	assert.Contains(t, string(body), "go_goroutines")
}
