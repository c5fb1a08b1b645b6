package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartServer exposes the collector's registry on addr's "/metrics" path and
// returns the underlying *http.Server so the caller manages its lifecycle
// (mirrors the teacher pack's health-logging metrics server pattern).
func (c *Collector) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && c.log != nil {
			c.log.Error("metrics server stopped", "error", err)
		}
	}()
	return srv
}

// Shutdown gracefully stops a server started by StartServer.
func (c *Collector) Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
