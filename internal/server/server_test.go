package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpf/internal/config"
	"tpf/internal/execution"
	"tpf/internal/model"
	"tpf/internal/pipectx"
	"tpf/internal/step"
)

func testConfig() config.PipelineConfig {
	cfg := config.Default()
	cfg.Parallelism = string(step.ParallelismSequential)
	cfg.Cache.Provider = "memory"
	return cfg
}

func doubleStep() *step.Func {
	return step.OneToOne("steps.Double", func(_ context.Context, in float64) (float64, error) {
		return in * 2, nil
	})
}

// newTestServer builds a host around a single doubling step with an
// in-memory cache and waits for the startup gate to resolve.
func newTestServer(t *testing.T, mutate func(*config.PipelineConfig)) *Server {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	reg := step.NewRegistry()
	reg.MustRegister(doubleStep())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := New(ctx, Options{
		Config:   cfg,
		Order:    model.OrderedStepList{"steps.Double"},
		Registry: reg,
		Version:  "1.2.3-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	select {
	case <-srv.gate.Resolved():
	case <-time.After(5 * time.Second):
		t.Fatal("startup gate did not resolve")
	}
	return srv
}

func doRequest(t *testing.T, srv *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func bodyMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestNew_RequiresRegistry(t *testing.T) {
	_, err := New(context.Background(), Options{
		Config: testConfig(),
		Order:  model.OrderedStepList{"steps.Double"},
	})
	require.Error(t, err)
}

func TestNew_RejectsEmptyOrder(t *testing.T) {
	_, err := New(context.Background(), Options{
		Config:   testConfig(),
		Registry: step.NewRegistry(),
	})
	require.Error(t, err)
	assert.True(t, execution.IsConfigurationError(err))
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := bodyMap(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3-test", body["version"])
}

func TestServer_ReadyzHealthy(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/readyz", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HEALTHY", bodyMap(t, rec)["state"])
}

func TestServer_ReadyzUnhealthyDependency(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.PipelineConfig) {
		cfg.Clients = map[string]config.ClientConfig{
			"user-service": {URL: "http://127.0.0.1:1", Timeout: "50ms"},
		}
		cfg.Health.StartupTimeout = "100ms"
		cfg.Health.ProbeInterval = "20ms"
	})

	rec := doRequest(t, srv, http.MethodGet, "/readyz", "", nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "UNHEALTHY", bodyMap(t, rec)["state"])

	exec := doRequest(t, srv, http.MethodPost, "/v1/pipeline/execute", "21", nil)
	require.Equal(t, http.StatusServiceUnavailable, exec.Code)
	assert.Equal(t, "health", bodyMap(t, exec)["kind"])
}

func TestServer_ExecuteStoresThenHits(t *testing.T) {
	srv := newTestServer(t, nil)

	first := doRequest(t, srv, http.MethodPost, "/v1/pipeline/execute", "21", nil)
	require.Equal(t, http.StatusOK, first.Code, "body: %s", first.Body.String())
	assert.Equal(t, float64(42), bodyMap(t, first)["result"])
	assert.Equal(t, string(pipectx.StatusStored), first.Header().Get(pipectx.HeaderCacheStatus))

	second := doRequest(t, srv, http.MethodPost, "/v1/pipeline/execute", "21", nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, float64(42), bodyMap(t, second)["result"])
	assert.Equal(t, string(pipectx.StatusHit), second.Header().Get(pipectx.HeaderCacheStatus))

	other := doRequest(t, srv, http.MethodPost, "/v1/pipeline/execute", "7", nil)
	require.Equal(t, http.StatusOK, other.Code)
	assert.Equal(t, float64(14), bodyMap(t, other)["result"])
	assert.Equal(t, string(pipectx.StatusStored), other.Header().Get(pipectx.HeaderCacheStatus))
}

func TestServer_ExecuteBypassPolicy(t *testing.T) {
	srv := newTestServer(t, nil)

	warm := doRequest(t, srv, http.MethodPost, "/v1/pipeline/execute", "21", nil)
	require.Equal(t, http.StatusOK, warm.Code)

	rec := doRequest(t, srv, http.MethodPost, "/v1/pipeline/execute", "21", map[string]string{
		pipectx.HeaderCachePolicy: string(pipectx.PolicyBypassCache),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(42), bodyMap(t, rec)["result"])
	assert.Equal(t, string(pipectx.StatusBypass), rec.Header().Get(pipectx.HeaderCacheStatus))
}

func TestServer_ExecuteRequireCache(t *testing.T) {
	srv := newTestServer(t, nil)

	miss := doRequest(t, srv, http.MethodPost, "/v1/pipeline/execute", "21", map[string]string{
		pipectx.HeaderCachePolicy: string(pipectx.PolicyRequireCache),
	})
	require.Equal(t, http.StatusPreconditionFailed, miss.Code)
	assert.Equal(t, "cache-miss", bodyMap(t, miss)["kind"])

	warm := doRequest(t, srv, http.MethodPost, "/v1/pipeline/execute", "21", nil)
	require.Equal(t, http.StatusOK, warm.Code)

	hit := doRequest(t, srv, http.MethodPost, "/v1/pipeline/execute", "21", map[string]string{
		pipectx.HeaderCachePolicy: string(pipectx.PolicyRequireCache),
	})
	require.Equal(t, http.StatusOK, hit.Code)
	assert.Equal(t, float64(42), bodyMap(t, hit)["result"])
	assert.Equal(t, string(pipectx.StatusHit), hit.Header().Get(pipectx.HeaderCacheStatus))
}

func TestServer_ExecuteCacheOnlyMiss(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/v1/pipeline/execute", "21", map[string]string{
		pipectx.HeaderCachePolicy: string(pipectx.PolicyCacheOnly),
	})

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, string(pipectx.StatusMiss), rec.Header().Get(pipectx.HeaderCacheStatus))
	assert.Empty(t, rec.Body.String())
}

func TestServer_ExecuteWithoutProvider(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.PipelineConfig) {
		cfg.Cache.Provider = "none"
	})

	rec := doRequest(t, srv, http.MethodPost, "/v1/pipeline/execute", "21", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(42), bodyMap(t, rec)["result"])
	assert.Empty(t, rec.Header().Get(pipectx.HeaderCacheStatus))
}

func TestServer_ExecuteRejectsBadJSON(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/v1/pipeline/execute", "{", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "decode", bodyMap(t, rec)["kind"])
}

func TestServer_StreamEmitsNDJSON(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/v1/pipeline/stream", "[1, 2, 3]", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	var values []float64
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		require.NotContains(t, line, "error")
		values = append(values, line["value"].(float64))
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []float64{2, 4, 6}, values)
}

func TestServer_StreamRejectsNonArray(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/v1/pipeline/stream", `{"not":"an array"}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "decode", bodyMap(t, rec)["kind"])
}

func TestServer_StepsDescribesPlan(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/v1/pipeline/steps", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var stages []stageDescriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stages))
	require.Len(t, stages, 1)
	assert.Equal(t, "steps.Double", stages[0].Name)
	assert.Equal(t, string(model.ShapeUnaryToUnary), stages[0].Shape)
	assert.False(t, stages[0].Parallel)
}

func TestServer_UnregisteredStepFailsTheCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := New(ctx, Options{
		Config:   testConfig(),
		Order:    model.OrderedStepList{"steps.Ghost"},
		Registry: step.NewRegistry(),
		Version:  "test",
	})
	require.NoError(t, err, "a missing step must fail the first call, not startup")
	t.Cleanup(func() { _ = srv.Close() })

	rec := doRequest(t, srv, http.MethodPost, "/v1/pipeline/execute", "1", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := bodyMap(t, rec)
	assert.Equal(t, "configuration", body["kind"])
	assert.Contains(t, body["error"], "steps.Ghost")
}

func TestServer_MetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doRequest(t, srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	disabled := newTestServer(t, func(cfg *config.PipelineConfig) {
		cfg.Telemetry.Enabled = false
	})
	rec = doRequest(t, disabled, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
