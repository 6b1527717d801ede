package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDecision(t *testing.T) {
	m := New()
	m.RecordDecision("persist", "published")
	m.RecordDecision("dedup", "skipped")
	m.RecordDecision("dedup", "skipped")

	assert.Contains(t, scrape(t, m), `feedcurator_entries_total{outcome="skipped",stage="dedup"} 2`)
	assert.Equal(t, int64(1), m.GetStats()["published"])
}

func TestHealthSnapshot(t *testing.T) {
	m := New()
	m.SetError(errors.New("feed down").Error())
	assert.Equal(t, false, m.GetStats()["is_healthy"])

	m.SetLastRun()
	m.RecordCycle(1500 * time.Millisecond)
	stats := m.GetStats()
	assert.Equal(t, true, stats["is_healthy"])
	assert.Equal(t, int64(1500), stats["last_cycle_duration_ms"])
	assert.Equal(t, int64(1), stats["cycles_run"])
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.AddEvicted(3)
	m.RecordVerdict("relevance", "yes")

	body := scrape(t, m)
	assert.Contains(t, body, "feedcurator_evicted_records_total 3")
	assert.Contains(t, body, `feedcurator_judgments_total{kind="relevance",verdict="yes"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}
