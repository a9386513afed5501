package metrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHealth struct {
	pingErr error
	stale   bool
}

func (f *fakeHealth) PingSink(ctx context.Context) error { return f.pingErr }
func (f *fakeHealth) StreamStale() bool                  { return f.stale }

func newTestServer(t *testing.T, health HealthChecker) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv, err := NewServer(New(), health, 19090, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	time.Sleep(50 * time.Millisecond)
	return srv
}

func TestHealth_Healthy(t *testing.T) {
	srv := newTestServer(t, &fakeHealth{})

	resp, err := http.Get(fmt.Sprintf("http://localhost%s/health", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestHealth_DegradedOnSinkFailure(t *testing.T) {
	srv := newTestServer(t, &fakeHealth{pingErr: fmt.Errorf("connection refused")})

	resp, err := http.Get(fmt.Sprintf("http://localhost%s/health", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "connection refused")
}

func TestHealth_DegradedOnStaleStream(t *testing.T) {
	srv := newTestServer(t, &fakeHealth{stale: true})

	resp, err := http.Get(fmt.Sprintf("http://localhost%s/health", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "stale")
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv := newTestServer(t, &fakeHealth{})

	resp, err := http.Get(fmt.Sprintf("http://localhost%s/metrics", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "# HELP")
}
