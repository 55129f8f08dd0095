package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/foofork/tidepool"
	tpprom "github.com/foofork/tidepool/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run executes the serve command.
func (c *ServeCmd) Run(deps *Dependencies) error {
	handler, err := c.Handler(deps)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", tidepool.ErrorMessage(err))
		return err
	}

	ln, err := net.Listen("tcp", c.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %q: %w", c.Listen, err)
	}

	srv := &http.Server{Handler: handler}

	ctx, stop := signal.NotifyContext(deps.Ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	fmt.Fprintf(deps.Stdout, "serving pool metrics on http://%s\n", ln.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Handler builds the HTTP handler serving /metrics in Prometheus
// exposition format and /healthz as a JSON pool health snapshot.
func (c *ServeCmd) Handler(deps *Dependencies) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(tpprom.NewCollector(deps.Metrics)); err != nil {
		return nil, fmt.Errorf("failed to register metrics collector: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := deps.Health.Health()
		w.Header().Set("Content-Type", "application/json")
		if !health.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	})

	return mux, nil
}
