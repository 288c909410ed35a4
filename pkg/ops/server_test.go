package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
)

func testParams(checks map[string]Check) (Params, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return Params{
		Addr:     ":0",
		Service:  "cron-worker",
		Env:      "test",
		Logger:   logger.New(logger.Options{ServiceName: "ops-test", Output: io.Discard}),
		Gatherer: reg,
		Checks:   checks,
	}, reg
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	params, _ := testParams(nil)
	rec := serve(t, NewHandler(params), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-CreatorVault-Env"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	assert.Contains(t, rec.Body.String(), `"status":"live"`)
}

func TestReadyzReportsFailingDependency(t *testing.T) {
	params, _ := testParams(map[string]Check{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	rec := serve(t, NewHandler(params), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Data readiness `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Data.Status)
	assert.Equal(t, "ok", body.Data.Checks["database"])
	assert.Equal(t, "connection refused", body.Data.Checks["redis"])
}

func TestReadyzAllHealthy(t *testing.T) {
	params, _ := testParams(map[string]Check{
		"database": func(context.Context) error { return nil },
	})
	rec := serve(t, NewHandler(params), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ready"`)
}

func TestMetricsExposesRegistry(t *testing.T) {
	params, reg := testParams(nil)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "creatorvault_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	rec := serve(t, NewHandler(params), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "creatorvault_test_total 1"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	params, _ := testParams(nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	NewHandler(params).ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}

func TestNewServerValidates(t *testing.T) {
	_, err := NewServer(Params{Addr: ":0"})
	assert.Error(t, err)
	params, _ := testParams(nil)
	params.Addr = ""
	_, err = NewServer(params)
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	params, _ := testParams(nil)
	params.Addr = "127.0.0.1:0"
	srv, err := NewServer(params)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, srv.Run(ctx))
}
