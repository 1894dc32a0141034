package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"glassy-social/internal/assetcache"
	"glassy-social/internal/auth"
	"glassy-social/internal/docstore"
	"glassy-social/internal/gateway"
	"glassy-social/internal/realtime"
	"glassy-social/internal/session"
	"glassy-social/internal/shared/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopBlobs struct{}

func (nopBlobs) Put(_ context.Context, key, _ string, _ []byte) (string, error) { return "/b/" + key, nil }
func (nopBlobs) Remove(context.Context, string) error                        { return nil }

const manifest = `
name: alpha-waves
version: v1
scope: /social-media-2/
shell: /social-media-2/index.html
assets: [/social-media-2/, /social-media-2/index.html, /social-media-2/app.js, /social-media-2/styles.css]
features: {runtime_cache: true, push: true, sync: true}
notification: {title: Glassy Social}
`

type fixture struct {
	srv    *httptest.Server
	hub    *session.Hub
	worker *assetcache.Worker
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	docs := docstore.NewMemory()
	bus := realtime.NewLocalBus()
	provider := auth.NewProvider(docs, jwt.NewSigner("k", time.Hour), nil)
	gw := gateway.New(provider, docs, nopBlobs{}, bus, nil)
	hub := session.NewHub(session.Deps{Backend: gw, Source: docs, Bus: bus}, time.Hour)
	t.Cleanup(hub.CloseAll)

	cfg, err := assetcache.ParseManifest([]byte(manifest))
	require.NoError(t, err)
	worker := assetcache.NewWorker(cfg, assetcache.NewMemoryStorage(), assetcache.FromHandler(Static(cfg.Scope)))
	worker.Install(context.Background())
	require.NoError(t, worker.Activate(context.Background()))

	mux := http.NewServeMux()
	NewServer(Options{
		Hub: hub, Verifier: provider, Federation: provider, Worker: worker,
		SessionSecret: "0123456789abcdef0123456789abcdef", CookieTTL: time.Hour,
		PushSecret: pushSecret,
	}).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fixture{srv: srv, hub: hub, worker: worker}
}

func client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func getFrame(t *testing.T, c *http.Client, base string) frameJSON {
	t.Helper()
	resp, err := c.Get(base + "/app/frame")
	require.NoError(t, err)
	defer resp.Body.Close()
	var f frameJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&f))
	return f
}

func post(t *testing.T, c *http.Client, target string, form url.Values) int {
	t.Helper()
	resp, err := c.PostForm(target, form)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

const pushSecret = "push-secret"

var authForm = regexp.MustCompile(`<form data-bind="(b\d+)" class="space-y-4">`)

func TestShellServedFromCache(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/social-media-2/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "hit", resp.Header.Get("X-Cache"))
	assert.Contains(t, string(body), `<div id="app">`)

	resp, err = http.Get(f.srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "/social-media-2/", resp.Request.URL.Path)
}

func TestSignUpAndResume(t *testing.T) {
	f := newFixture(t)
	c := client(t)

	fr := getFrame(t, c, f.srv.URL)
	assert.Contains(t, fr.HTML, "Please sign in to see the feed")
	assert.Equal(t, "feed", fr.Route)
	assert.Equal(t, 1, f.hub.Len())

	require.Equal(t, http.StatusNoContent, post(t, c, f.srv.URL+"/app/navigate", url.Values{"route": {"login"}}))
	fr = getFrame(t, c, f.srv.URL)
	assert.Equal(t, "login", fr.Route)
	m := authForm.FindStringSubmatch(fr.HTML)
	require.Len(t, m, 2)

	code := post(t, c, f.srv.URL+"/app/actions/"+m[1], url.Values{
		"action": {"signup"}, "email": {"ana@x.io"}, "password": {"secret1"}, "displayName": {"Ana"},
	})
	require.Equal(t, http.StatusNoContent, code)
	fr = getFrame(t, c, f.srv.URL)
	assert.Contains(t, fr.HTML, "🚪 Logout")
	assert.Contains(t, fr.HTML, "Account created")

	assert.Equal(t, http.StatusConflict, post(t, c, f.srv.URL+"/app/actions/b999", nil))

	// a reload after the server dropped the session resumes from the cookie
	f.hub.CloseAll()
	fr = getFrame(t, c, f.srv.URL)
	assert.Contains(t, fr.HTML, "🚪 Logout")
	assert.NotContains(t, fr.HTML, "Account created")
}

func TestEventStreamPushesFrames(t *testing.T) {
	f := newFixture(t)
	c := client(t)
	getFrame(t, c, f.srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/app/events", nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	next := func() frameJSON {
		for {
			line, err := r.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var fr frameJSON
				require.NoError(t, json.Unmarshal([]byte(data), &fr))
				return fr
			}
		}
	}
	first := next()
	assert.Contains(t, first.HTML, "Please sign in")

	require.Equal(t, http.StatusNoContent, post(t, c, f.srv.URL+"/app/navigate", url.Values{"route": {"login"}}))
	second := next()
	assert.Greater(t, second.Version, first.Version)
	assert.Contains(t, second.HTML, "Welcome to Glassy Social")
}

func TestPushBroadcastsToSessions(t *testing.T) {
	f := newFixture(t)
	c := client(t)
	getFrame(t, c, f.srv.URL)

	pushAs := func(secret, body string) int {
		req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/sw/push", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if secret != "" {
			req.Header.Set("Authorization", "Bearer "+secret)
		}
		resp, err := c.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, pushAs("", `{"body":"spoofed"}`))
	assert.Equal(t, http.StatusUnauthorized, pushAs("guess", `{"body":"spoofed"}`))
	assert.NotContains(t, getFrame(t, c, f.srv.URL).HTML, "spoofed")

	assert.Equal(t, http.StatusAccepted, pushAs(pushSecret, `{"body":"New posts"}`))
	assert.Contains(t, getFrame(t, c, f.srv.URL).HTML, "Glassy Social: New posts")

	resp, err := c.Post(f.srv.URL+"/sw/sync/outbox", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestGoogleDisabledRedirectsToLogin(t *testing.T) {
	f := newFixture(t)
	c := client(t)
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := c.Get(f.srv.URL + "/auth/google/login")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/social-media-2/#login", resp.Header.Get("Location"))
	assert.Contains(t, getFrame(t, c, f.srv.URL).HTML, "Google sign-in failed")
}
