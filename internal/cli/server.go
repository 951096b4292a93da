package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// server — HTTP-сервер /healthz и /metrics.
type server struct {
	srv    *http.Server
	logger *slog.Logger
}

func newServer(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) *server {
	return &server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           chain(recoverPanics(logger), logRequests(logger))(newMux(gatherer)),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// newMux: /healthz + /metrics
func newMux(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Run обслуживает запросы до отмены ctx.
func (s *server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
