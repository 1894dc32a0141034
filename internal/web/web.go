// Package web is the browser surface: the cached shell, the frame stream and
// action dispatch for a tab's session.
package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"glassy-social/internal/assetcache"
	"glassy-social/internal/auth"
	"glassy-social/internal/gateway"
	"glassy-social/internal/session"
	"glassy-social/internal/shared/httpx"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"golang.org/x/time/rate"
)

//go:embed static
var staticFS embed.FS

const (
	cookieName = "glassy"
	maxUpload  = 8 << 20
)

// Static serves the embedded shell assets under scope; the scope root is index.html.
func Static(scope string) http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, scope)
		if name == "" {
			name = "index.html"
		}
		data, err := fs.ReadFile(sub, name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
	})
}

type Federation interface {
	FederatedURL(state string) (string, error)
}

type Server struct {
	hub      *session.Hub
	verifier httpx.TokenVerifier
	fed      Federation
	cookies  *sessions.CookieStore
	worker   *assetcache.Worker
	scope    string
	// bearer secret required on push; empty rejects every push
	pushSecret string
	// minimum gap between two frames pushed on one stream
	pushEvery time.Duration
}

type Options struct {
	Hub           *session.Hub
	Verifier      httpx.TokenVerifier
	Federation    Federation
	Worker        *assetcache.Worker
	SessionSecret string
	Secure        bool
	CookieTTL     time.Duration
	PushSecret    string
}

func NewServer(o Options) *Server {
	store := sessions.NewCookieStore([]byte(o.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(o.CookieTTL / time.Second),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Server{
		hub:        o.Hub,
		verifier:   o.Verifier,
		fed:        o.Federation,
		cookies:    store,
		worker:     o.Worker,
		scope:      o.Worker.Config().Scope,
		pushSecret: o.PushSecret,
		pushEvery:  50 * time.Millisecond,
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle(s.scope, s.worker.Handler(Static(s.scope)))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.scope, http.StatusFound)
	})

	mux.HandleFunc("GET /app/frame", s.frame)
	mux.HandleFunc("GET /app/events", s.events)
	mux.HandleFunc("POST /app/navigate", s.navigate)
	mux.HandleFunc("POST /app/actions/{binding}", s.action)

	mux.HandleFunc("GET /auth/google/login", s.googleLogin)
	mux.HandleFunc("GET /auth/google/callback", s.googleCallback)

	mux.Handle("POST /sw/push", httpx.Wrap(s.push))
	mux.Handle("POST /sw/sync/{tag}", httpx.Wrap(s.sync))
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// attach finds or creates the tab's session. A fresh session resumes the
// identity stored in the cookie when its token still verifies.
func (s *Server) attach(w http.ResponseWriter, r *http.Request) (*session.Session, *sessions.Session) {
	cs, err := s.cookies.Get(r, cookieName)
	if err != nil {
		log.Printf("[web] cookie: %v", err)
	}
	if sess, ok := s.hub.Get(str(cs.Values["sid"])); ok {
		sess.Touch()
		return sess, cs
	}

	sess := s.hub.Create()
	cs.Values["sid"] = sess.ID
	if tok := str(cs.Values["token"]); tok != "" {
		uid, err := s.verifier.Verify(r.Context(), tok)
		if err == nil && uid == str(cs.Values["uid"]) {
			sess.Resume(r.Context(), auth.Identity{
				UID:         uid,
				DisplayName: str(cs.Values["name"]),
				Email:       str(cs.Values["email"]),
				PhotoURL:    str(cs.Values["photo"]),
			}, tok)
		} else {
			clearIdentity(cs)
		}
	}
	save(w, r, cs)
	return sess, cs
}

func clearIdentity(cs *sessions.Session) {
	for _, k := range []string{"uid", "token", "name", "email", "photo"} {
		delete(cs.Values, k)
	}
}

// remember copies the session's identity into the cookie and reports whether it changed.
func remember(sess *session.Session, cs *sessions.Session) bool {
	tok := sess.Token()
	if tok == str(cs.Values["token"]) {
		return false
	}
	clearIdentity(cs)
	if st := sess.State(); tok != "" && st.User != nil {
		cs.Values["uid"] = st.User.UID
		cs.Values["token"] = tok
		cs.Values["name"] = st.User.DisplayName
		cs.Values["email"] = st.User.Email
		cs.Values["photo"] = st.User.PhotoURL
	}
	return true
}

func save(w http.ResponseWriter, r *http.Request, cs *sessions.Session) {
	if err := cs.Save(r, w); err != nil {
		log.Printf("[web] save cookie: %v", err)
	}
}

type frameJSON struct {
	Version uint64 `json:"version"`
	Route   string `json:"route"`
	HTML    string `json:"html"`
}

func (s *Server) frame(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.attach(w, r)
	f, v := sess.Frame()
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, frameJSON{Version: v, Route: f.Route, HTML: f.HTML}, http.StatusOK)
}

// events streams frames over SSE. Frames produced faster than pushEvery
// coalesce into the latest one.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.attach(w, r)
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	limiter := rate.NewLimiter(rate.Every(s.pushEvery), 1)
	var since uint64
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		f, v, err := sess.Wait(ctx, since)
		if err != nil {
			if errors.Is(err, session.ErrClosed) {
				fmt.Fprint(w, "event: closed\ndata: {}\n\n")
				_ = rc.Flush()
			}
			return
		}
		since = v
		payload, _ := json.Marshal(frameJSON{Version: v, Route: f.Route, HTML: f.HTML})
		if _, err := fmt.Fprintf(w, "event: frame\ndata: %s\n\n", payload); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.attach(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess.Navigate(r.PostForm.Get("route"))
	w.WriteHeader(http.StatusNoContent)
}

func readInput(r *http.Request) (session.Input, error) {
	in := session.Input{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			return in, err
		}
		in.Values = url.Values(r.MultipartForm.Value)
		f, fh, err := r.FormFile("image")
		if err == nil {
			defer f.Close()
			data, err := io.ReadAll(io.LimitReader(f, maxUpload))
			if err != nil {
				return in, err
			}
			if len(data) > 0 {
				in.Upload = &gateway.Upload{Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}
			}
		} else if !errors.Is(err, http.ErrMissingFile) {
			return in, err
		}
		return in, nil
	}
	if err := r.ParseForm(); err != nil {
		return in, err
	}
	in.Values = r.PostForm
	return in, nil
}

func (s *Server) action(w http.ResponseWriter, r *http.Request) {
	sess, cs := s.attach(w, r)
	in, err := readInput(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := sess.Dispatch(r.Context(), r.PathValue("binding"), in); err != nil {
		if errors.Is(err, session.ErrUnknownBinding) {
			http.Error(w, "stale frame", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if remember(sess, cs) {
		save(w, r, cs)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) googleLogin(w http.ResponseWriter, r *http.Request) {
	sess, cs := s.attach(w, r)
	state := uuid.NewString()
	target, err := s.fed.FederatedURL(state)
	if err != nil {
		log.Printf("[web] federated url: %v", err)
		sess.Alert("Google sign-in failed")
		http.Redirect(w, r, s.scope+"#login", http.StatusFound)
		return
	}
	cs.Values["oauth_state"] = state
	save(w, r, cs)
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) googleCallback(w http.ResponseWriter, r *http.Request) {
	sess, cs := s.attach(w, r)
	want := str(cs.Values["oauth_state"])
	delete(cs.Values, "oauth_state")

	q := r.URL.Query()
	if code := q.Get("code"); want == "" || code == "" || q.Get("state") != want {
		log.Printf("[web] oauth callback: missing code or state mismatch")
		sess.Alert("Google sign-in failed")
	} else {
		sess.CompleteFederated(r.Context(), code)
		remember(sess, cs)
	}
	save(w, r, cs)
	http.Redirect(w, r, s.scope+"#feed", http.StatusFound)
}

// push forwards a push message to every live session as a toast. Only holders
// of the push secret may send one.
func (s *Server) push(w http.ResponseWriter, r *http.Request) error {
	tok := httpx.BearerToken(r)
	if s.pushSecret == "" || subtle.ConstantTimeCompare([]byte(tok), []byte(s.pushSecret)) != 1 {
		return httpx.Status(http.StatusUnauthorized, "unauthorized", errors.New("push requires the push secret"))
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		return err
	}
	n, err := s.worker.Push(payload)
	if errors.Is(err, assetcache.ErrDisabled) {
		return httpx.Status(http.StatusNotFound, "push_disabled", err)
	}
	if err != nil {
		return err
	}
	text := n.Title
	if n.Body != "" {
		text += ": " + n.Body
	}
	delivered := s.hub.Broadcast(text)
	httpx.WriteJSON(w, map[string]any{"notification": n, "open": s.worker.NotificationClick(n), "delivered": delivered}, http.StatusAccepted)
	return nil
}

// sync queues tag and runs pending syncs in the background.
func (s *Server) sync(w http.ResponseWriter, r *http.Request) error {
	if err := s.worker.RegisterSync(r.PathValue("tag")); err != nil {
		if errors.Is(err, assetcache.ErrDisabled) {
			return httpx.Status(http.StatusNotFound, "sync_disabled", err)
		}
		return err
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.worker.RunSync(ctx); err != nil {
			log.Printf("[web] sync: %v", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
	return nil
}
