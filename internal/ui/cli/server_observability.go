package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"pyscope/internal/core/app"
	"pyscope/internal/core/ports"
	"pyscope/internal/shared/util"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus is the /health payload.
type HealthStatus struct {
	Status      string `json:"status"`
	Files       int    `json:"files"`
	History     string `json:"history"`
	HeapAllocMB uint64 `json:"heap_alloc_mb"`
}

type ObservabilityServer struct {
	addr   string
	health func(context.Context) HealthStatus
	server *http.Server
}

func NewObservabilityServer(addr string, health func(context.Context) HealthStatus) *ObservabilityServer {
	return &ObservabilityServer{
		addr:   addr,
		health: health,
	}
}

func (s *ObservabilityServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := s.health(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if status.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	slog.Info("observability server starting", "addr", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("observability server failed", "error", err)
		}
	}()

	return nil
}

func (s *ObservabilityServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func healthFunc(analyzer *app.App, store ports.HistoryStore) func(context.Context) HealthStatus {
	return func(context.Context) HealthStatus {
		historyState := "disabled"
		if store != nil {
			historyState = "enabled"
		}
		return HealthStatus{
			Status:      "up",
			Files:       len(analyzer.Registry.Files()),
			History:     historyState,
			HeapAllocMB: util.GetHeapAllocMB(),
		}
	}
}
