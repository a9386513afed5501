package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether the ingestion pipeline is healthy enough to
// serve traffic. PingSink should round-trip a no-op query against the sink;
// StreamStale should report true once the stream has sat in Backoff for
// longer than the caller considers acceptable.
type HealthChecker interface {
	PingSink(ctx context.Context) error
	StreamStale() bool
}

// Server serves /metrics and /health on a port found by scanning upward
// from the configured one, since the reconciliation worker and the
// ingestion process can end up sharing a host in local development.
type Server struct {
	metrics *Metrics
	health  HealthChecker
	logger  *slog.Logger
	server  *http.Server
	addr    string
}

// NewServer binds to the first available port starting at basePort, trying
// maxPortScan consecutive ports in all (basePort included) before giving up.
func NewServer(m *Metrics, health HealthChecker, basePort int, logger *slog.Logger) (*Server, error) {
	const maxPortScan = 10

	var listener net.Listener
	var boundAddr string
	var lastErr error
	for i := 0; i < maxPortScan; i++ {
		port := basePort + i
		addr := fmt.Sprintf(":%d", port)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		listener = l
		boundAddr = addr
		break
	}
	if listener == nil {
		return nil, fmt.Errorf("metrics server: no available port in [%d, %d]: %w", basePort, basePort+maxPortScan-1, lastErr)
	}

	s := &Server{metrics: m, health: health, logger: logger, addr: boundAddr}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", s.handleHealth)

	s.server = &http.Server{Handler: mux}
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return s, nil
}

// Addr returns the address the server actually bound to.
func (s *Server) Addr() string { return s.addr }

// Shutdown stops the server, honoring the provided context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var reasons []string
	if err := s.health.PingSink(ctx); err != nil {
		reasons = append(reasons, "sink: "+err.Error())
	}
	if s.health.StreamStale() {
		reasons = append(reasons, "stream: stale, backoff exceeded threshold")
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if len(reasons) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(strings.Join(reasons, "; ")))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
