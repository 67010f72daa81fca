package observability

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter serves the health check and, when m is not nil, the Prometheus
// metrics.
func NewRouter(m *Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"screenshot-wizard"}`))
	})

	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	return r
}
