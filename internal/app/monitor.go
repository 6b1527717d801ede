package app

import (
	"encoding/json"
	"net/http"

	"github.com/deusflow/feedcurator/internal/metrics"
	"github.com/deusflow/feedcurator/internal/ratelimit"
)

// MonitoringHandler serves /health as JSON and /metrics in Prometheus format.
// budget may be nil.
func MonitoringHandler(m *metrics.Metrics, budget *ratelimit.Budget) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := m.GetStats()

		status := "ok"
		code := http.StatusOK
		if healthy, _ := stats["is_healthy"].(bool); !healthy {
			status = "error"
			code = http.StatusServiceUnavailable
		}

		response := map[string]interface{}{
			"status":     status,
			"last_run":   stats["last_run_time"],
			"last_error": stats["last_error"],
			"published":  stats["published"],
		}
		if budget != nil {
			response["llm"] = budget.GetStats()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(response)
	})
	mux.Handle("/metrics", m.Handler())
	return mux
}
