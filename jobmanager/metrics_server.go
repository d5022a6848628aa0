package jobmanager

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/RezaEskandarii/recurfire/app"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsShutdownTimeout = 2 * time.Second

// serveMetrics exposes the container's registry on /metrics until ctx is done.
func serveMetrics(ctx context.Context, c *app.Container, port uint) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "metrics listen on %s", addr)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.Logger.Warnw("metrics server error", "addr", addr, "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	c.Logger.Infow("metrics enabled", "addr", ln.Addr().String())
	return nil
}
