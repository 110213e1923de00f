package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpf/internal/pipectx"
)

func newTestREPL(baseURL string) (*REPL, *bytes.Buffer) {
	var buf bytes.Buffer
	r := &REPL{client: New(Options{BaseURL: baseURL}), out: &buf}
	return r, &buf
}

func TestREPL_DispatchPolicy(t *testing.T) {
	r, buf := newTestREPL("")

	done, err := r.dispatch(context.Background(), "policy require_cache")
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, pipectx.PolicyRequireCache, r.client.Context().Policy)

	_, err = r.dispatch(context.Background(), "policy sometimes")
	require.Error(t, err)

	buf.Reset()
	_, err = r.dispatch(context.Background(), "policy default")
	require.NoError(t, err)
	assert.Equal(t, pipectx.CachePolicy(""), r.client.Context().Policy)
	assert.Contains(t, buf.String(), "server default")
}

func TestREPL_DispatchReplay(t *testing.T) {
	r, _ := newTestREPL("")

	_, err := r.dispatch(context.Background(), "replay on")
	require.NoError(t, err)
	assert.True(t, r.client.Context().Replay)

	_, err = r.dispatch(context.Background(), "replay off")
	require.NoError(t, err)
	assert.False(t, r.client.Context().Replay)

	_, err = r.dispatch(context.Background(), "replay maybe")
	require.Error(t, err)
}

func TestREPL_DispatchExitAndUnknown(t *testing.T) {
	r, _ := newTestREPL("")

	done, err := r.dispatch(context.Background(), "exit")
	require.NoError(t, err)
	assert.True(t, done)

	done, err = r.dispatch(context.Background(), "warp 9")
	require.Error(t, err)
	assert.False(t, done)
}

func TestREPL_DispatchHelpListsCommands(t *testing.T) {
	r, buf := newTestREPL("")

	_, err := r.dispatch(context.Background(), "help")
	require.NoError(t, err)
	for _, want := range []string{"send", "stream", "policy", "replay", "status", "health", "steps", "exit"} {
		assert.Contains(t, buf.String(), want)
	}
}

func TestREPL_SendPrintsResultAndCacheStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(pipectx.HeaderCacheStatus, string(pipectx.StatusStored))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"result":{"total":42}}`)
	}))
	defer srv.Close()

	r, buf := newTestREPL(srv.URL)

	_, err := r.dispatch(context.Background(), `send {"id":1}`)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "42")
	assert.Contains(t, buf.String(), "STORED")

	_, err = r.dispatch(context.Background(), "send")
	require.Error(t, err, "send without a payload must explain usage")

	_, err = r.dispatch(context.Background(), "send {broken")
	require.Error(t, err)
}

func TestREPL_StreamCountsEmissions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"value":"a"}`)
		fmt.Fprintln(w, `{"value":"b"}`)
	}))
	defer srv.Close()

	r, buf := newTestREPL(srv.URL)

	_, err := r.dispatch(context.Background(), `stream ["a","b"]`)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "2 emission(s)")
}

func TestREPL_StepsRendersTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"name":"steps.Fetch","shape":"UNARY_IN_UNARY_OUT","parallel":false}]`)
	}))
	defer srv.Close()

	r, buf := newTestREPL(srv.URL)

	_, err := r.dispatch(context.Background(), "steps")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "steps.Fetch")
	assert.Contains(t, buf.String(), "UNARY_IN_UNARY_OUT")
}
