package pipectx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindAndFrom(t *testing.T) {
	ctx, release := Bind(context.Background(), Context{Version: "v7", Replay: true, Policy: PolicyCacheOnly})

	got, ok := From(ctx)
	require.True(t, ok)
	assert.Equal(t, "v7", got.Version)
	assert.True(t, got.Replay)
	assert.Equal(t, PolicyCacheOnly, got.Policy)

	release()

	_, ok = From(ctx)
	assert.False(t, ok, "released slot must not leak the previous call's context")
}

func TestFrom_Unbound(t *testing.T) {
	_, ok := From(context.Background())
	assert.False(t, ok)
}

func TestEffectivePolicy_Default(t *testing.T) {
	assert.Equal(t, PolicyPreferCache, Context{}.EffectivePolicy())
	assert.Equal(t, PolicyBypassCache, Context{Policy: PolicyBypassCache}.EffectivePolicy())
}

func TestRecordCacheStatus(t *testing.T) {
	ctx, release := Bind(context.Background(), Context{})
	defer release()

	_, ok := CacheStatusOf(ctx)
	assert.False(t, ok, "no status before the transport records one")

	RecordCacheStatus(ctx, StatusMiss)
	status, ok := CacheStatusOf(ctx)
	require.True(t, ok)
	assert.Equal(t, StatusMiss, status)

	ClearCacheStatus(ctx)
	_, ok = CacheStatusOf(ctx)
	assert.False(t, ok)
}

func TestRecordCacheHit_CarriesValue(t *testing.T) {
	ctx, release := Bind(context.Background(), Context{})
	defer release()

	RecordCacheHit(ctx, map[string]any{"total": 42})

	status, ok := CacheStatusOf(ctx)
	require.True(t, ok)
	assert.Equal(t, StatusHit, status)

	value, ok := CachedValue(ctx)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"total": 42}, value)

	// A non-hit status invalidates the cached value.
	RecordCacheStatus(ctx, StatusStored)
	_, ok = CachedValue(ctx)
	assert.False(t, ok)
}

func TestRecord_NoSlotIsNoop(t *testing.T) {
	ctx := context.Background()
	RecordCacheStatus(ctx, StatusHit)
	RecordCacheHit(ctx, "x")
	ClearCacheStatus(ctx)
	_, ok := CacheStatusOf(ctx)
	assert.False(t, ok)
}

func TestInjectExtract_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pc   Context
	}{
		{
			name: "all fields",
			pc:   Context{Version: "2024-11", Replay: true, Policy: PolicyRequireCache},
		},
		{
			name: "version only",
			pc:   Context{Version: "v3"},
		},
		{
			name: "empty tuple",
			pc:   Context{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, release := Bind(context.Background(), tt.pc)
			defer release()

			carrier := MapCarrier{}
			Inject(ctx, carrier)

			assert.Equal(t, tt.pc, Extract(carrier))
		})
	}
}

func TestExtract_UnknownPolicyDropped(t *testing.T) {
	carrier := MapCarrier{HeaderCachePolicy: "EVENTUAL_MAYBE"}
	pc := Extract(carrier)
	assert.Empty(t, pc.Policy)
}

func TestMiddleware_PropagatesAndReportsStatus(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pc, ok := From(r.Context())
		require.True(t, ok)
		assert.Equal(t, "v9", pc.Version)
		assert.Equal(t, PolicySkipIfPresent, pc.Policy)

		RecordCacheStatus(r.Context(), StatusHit)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/pipeline/execute", nil)
	req.Header.Set(HeaderVersion, "v9")
	req.Header.Set(HeaderCachePolicy, string(PolicySkipIfPresent))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, string(StatusHit), rec.Header().Get(HeaderCacheStatus))
}

func TestMiddleware_NoStatusNoHeader(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Empty(t, rec.Header().Get(HeaderCacheStatus))
}

func TestTransport_InjectsAndRecords(t *testing.T) {
	var seen http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.Header().Set(HeaderCacheStatus, string(StatusStored))
	}))
	defer srv.Close()

	ctx, release := Bind(context.Background(), Context{Version: "v1", Replay: true, Policy: PolicyPreferCache})
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	client := &http.Client{Transport: NewTransport(nil)}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "v1", seen.Get(HeaderVersion))
	assert.Equal(t, "true", seen.Get(HeaderReplay))
	assert.Equal(t, string(PolicyPreferCache), seen.Get(HeaderCachePolicy))

	status, ok := CacheStatusOf(ctx)
	require.True(t, ok)
	assert.Equal(t, StatusStored, status)
}
