package assetcache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifest = `
name: alpha-waves
version: v1
scope: /social-media-2/
shell: /social-media-2/index.html
assets:
  - /social-media-2/
  - /social-media-2/index.html
  - /social-media-2/app.js
  - /social-media-2/missing.png
features:
  runtime_cache: true
  push: true
  sync: true
notification:
  title: Glassy Social
  icon: /social-media-2/icon.svg
`

type origin struct {
	down atomic.Bool
	hits atomic.Int32
}

func (o *origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.hits.Add(1)
	if o.down.Load() {
		http.Error(w, "down", http.StatusBadGateway)
		return
	}
	switch r.URL.Path {
	case "/social-media-2/", "/social-media-2/index.html":
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>shell</html>"))
	case "/social-media-2/app.js", "/social-media-2/extra.css":
		_, _ = w.Write([]byte("asset " + r.URL.Path))
	default:
		http.NotFound(w, r)
	}
}

func newWorker(t *testing.T) (*Worker, Storage, *origin) {
	t.Helper()
	cfg, err := ParseManifest([]byte(manifest))
	require.NoError(t, err)
	o := &origin{}
	st := NewMemoryStorage()
	return NewWorker(cfg, st, FromHandler(o)), st, o
}

func TestParseManifest(t *testing.T) {
	cfg, err := ParseManifest([]byte(manifest))
	require.NoError(t, err)
	assert.Equal(t, "alpha-waves-v1", cfg.CacheName())
	assert.True(t, cfg.Features.RuntimeCache)
	assert.True(t, cfg.InScope("/social-media-2/app.js"))
	assert.False(t, cfg.InScope("/api/posts"))

	cfg, err = ParseManifest([]byte("name: x\nversion: v2\nscope: /app"))
	require.NoError(t, err)
	assert.Equal(t, "/app/", cfg.Scope)
	assert.Equal(t, "/app/index.html", cfg.Shell)

	_, err = ParseManifest([]byte("scope: /"))
	assert.Error(t, err)
}

func TestInstallReportsFailuresAndCompletes(t *testing.T) {
	w, st, _ := newWorker(t)
	assert.Equal(t, StateParsed, w.State())

	rep := w.Install(context.Background())
	assert.Equal(t, StateInstalled, w.State())
	assert.ElementsMatch(t, []string{"/social-media-2/", "/social-media-2/index.html", "/social-media-2/app.js"}, rep.Cached)
	assert.Contains(t, rep.Failed, "/social-media-2/missing.png")

	e, ok, err := st.Match(context.Background(), "alpha-waves-v1", "/social-media-2/app.js")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "asset /social-media-2/app.js", string(e.Body))
}

func TestActivateKeepsOnlyCurrentGeneration(t *testing.T) {
	ctx := context.Background()
	w, st, _ := newWorker(t)
	require.NoError(t, st.Put(ctx, "alpha-waves-v0", "/social-media-2/app.js", Entry{Status: 200, Body: []byte("old")}))
	require.NoError(t, st.Put(ctx, "other", "/x", Entry{Status: 200}))
	w.Install(ctx)
	before, _, _ := st.Match(ctx, "alpha-waves-v1", "/social-media-2/app.js")

	require.NoError(t, w.Activate(ctx))
	assert.Equal(t, StateActive, w.State())
	names, err := st.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha-waves-v1"}, names)
	after, ok, _ := st.Match(ctx, "alpha-waves-v1", "/social-media-2/app.js")
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestHandlerCacheFirstThenFallback(t *testing.T) {
	ctx := context.Background()
	w, st, o := newWorker(t)
	w.Install(ctx)
	require.NoError(t, w.Activate(ctx))
	next := http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) { rw.WriteHeader(http.StatusTeapot) })
	h := w.Handler(next)
	hitsAfterInstall := o.hits.Load()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/social-media-2/app.js", nil))
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	assert.Equal(t, hitsAfterInstall, o.hits.Load())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/social-media-2/extra.css", nil))
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))
	_, ok, _ := st.Match(ctx, "alpha-waves-v1", "/social-media-2/extra.css")
	assert.True(t, ok, "runtime cache stores successful responses")

	o.down.Store(true)
	nav := httptest.NewRequest(http.MethodGet, "/social-media-2/feed", nil)
	nav.Header.Set("Sec-Fetch-Mode", "navigate")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, nav)
	assert.Equal(t, "fallback", rec.Header().Get("X-Cache"))
	assert.Equal(t, "<html>shell</html>", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/social-media-2/logo.png", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/social-media-2/app.js", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestPushAndClick(t *testing.T) {
	w, _, _ := newWorker(t)

	n, err := w.Push([]byte(`{"body":"Bob commented"}`))
	require.NoError(t, err)
	assert.Equal(t, "Glassy Social", n.Title)
	assert.Equal(t, "/social-media-2/icon.svg", n.Icon)
	assert.Equal(t, "/social-media-2/", w.NotificationClick(n))

	n, err = w.Push([]byte("plain text"))
	require.NoError(t, err)
	assert.Equal(t, "plain text", n.Body)

	assert.Equal(t, "/social-media-2/#chat", w.NotificationClick(Notification{URL: "/social-media-2/#chat"}))

	w.cfg.Features.Push = false
	_, err = w.Push(nil)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestSyncRunsEachTagOnce(t *testing.T) {
	ctx := context.Background()
	w, _, _ := newWorker(t)
	var runs int
	w.OnSync("outbox", func(context.Context) error { runs++; return nil })
	w.OnSync("broken", func(context.Context) error { return errors.New("boom") })

	require.NoError(t, w.RegisterSync("outbox"))
	require.NoError(t, w.RegisterSync("outbox"))
	require.NoError(t, w.RegisterSync("broken"))
	ran, err := w.RunSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"outbox"}, ran)
	assert.Equal(t, 1, runs)

	ran, _ = w.RunSync(ctx)
	assert.Empty(t, ran, "no retry queue")

	w.cfg.Features.Sync = false
	assert.ErrorIs(t, w.RegisterSync("outbox"), ErrDisabled)
}
