package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/okamoto/hr-dashboard/internal/config"
	"github.com/okamoto/hr-dashboard/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startServer(t *testing.T, env *testEnv) *HTTPServer {
	t.Helper()
	cfg := &config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		IdleTimeout:  5 * time.Second,
		WriteTimeout: 0,
	}
	srv := NewHTTPServer(cfg, env.routes, env.subs, env.store, zap.NewNop())
	require.NoError(t, srv.Start())
	return srv
}

func TestHTTPServer_ServesAndStops(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{})
	srv := startServer(t, env)

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	_, err = http.Get("http://" + srv.Addr() + "/health")
	assert.Error(t, err)
}

func TestHTTPServer_EventStream(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{})
	srv := startServer(t, env)

	resp, err := http.Get("http://" + srv.Addr() + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := protocol.NewReader(resp.Body)
	ev, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, protocol.EventStatus, ev.Type)
	assert.JSONEq(t, `{"revision":0,"status":"not_started","loading":false}`, string(ev.Data))

	require.Eventually(t, func() bool { return env.subs.Count() == 1 }, time.Second, 5*time.Millisecond)
	env.store.AddBookmark(5)

	ev, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, protocol.EventChange, ev.Type)
	assert.Equal(t, "1", ev.ID)
	assert.Contains(t, string(ev.Data), `"kind":"bookmarks"`)
	assert.Contains(t, string(ev.Data), `"employee_id":5`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.Zero(t, env.subs.Count())
	assert.Zero(t, env.store.SubscriberCount())
}

func TestHTTPServer_EventStreamClosedByServer(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{})
	srv := startServer(t, env)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	resp, err := http.Get("http://" + srv.Addr() + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	r := protocol.NewReader(resp.Body)
	ev, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, protocol.EventStatus, ev.Type)

	require.Eventually(t, func() bool { return env.subs.Count() == 1 }, time.Second, 5*time.Millisecond)
	env.subs.CloseAll()

	ev, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, protocol.EventError, ev.Type)
	assert.JSONEq(t, `{"error":"stream closed by server"}`, string(ev.Data))
}

func TestHTTPServer_EventStreamLimit(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{})
	env.subs.max = 1
	_, err := env.subs.Register("occupied")
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
