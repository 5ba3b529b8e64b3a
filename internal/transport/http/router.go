// Package httptransport assembles the public router: the identify endpoint,
// health probes, and the metrics scrape target.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	identityhandler "linkage/internal/identity/handler"
	"linkage/internal/platform/metrics"
	"linkage/internal/platform/middleware"
	"linkage/internal/transport/http/shared"
)

const requestTimeout = 30 * time.Second

// Options carries router construction inputs.
type Options struct {
	Identity *identityhandler.Handler
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// Readiness pings the backing store; nil means always ready.
	Readiness func(ctx context.Context) error
	// CORSAllowedOrigins for the browser demo client.
	CORSAllowedOrigins []string
}

// NewRouter wires all public endpoints behind the shared middleware chain.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(opts.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(middleware.CORS(opts.CORSAllowedOrigins))
	r.Use(middleware.Timeout(requestTimeout))
	if opts.Metrics != nil {
		r.Use(middleware.Latency(opts.Metrics))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if opts.Readiness != nil {
			if err := opts.Readiness(req.Context()); err != nil {
				shared.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.Handler())

	opts.Identity.Register(r)

	return r
}
