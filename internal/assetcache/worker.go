package assetcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"

	"glassy-social/internal/metrics"
)

var ErrDisabled = errors.New("feature disabled")

type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActive     State = "active"
)

// InstallReport lists what Install cached and what it could not fetch.
type InstallReport struct {
	Cached []string
	Failed map[string]string
}

// Notification is what a push message asks to display.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	URL   string `json:"url"`
}

type SyncFunc func(ctx context.Context) error

type Worker struct {
	cfg     Config
	storage Storage
	net     Network

	mu       sync.Mutex
	state    State
	handlers map[string]SyncFunc
	pending  []string
}

func NewWorker(cfg Config, storage Storage, net Network) *Worker {
	return &Worker{
		cfg:      cfg,
		storage:  storage,
		net:      net,
		state:    StateParsed,
		handlers: map[string]SyncFunc{},
	}
}

func (w *Worker) Config() Config { return w.cfg }

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Install fetches every manifest asset into the current generation. A failing
// asset is reported, never fatal.
func (w *Worker) Install(ctx context.Context) InstallReport {
	w.setState(StateInstalling)
	rep := InstallReport{Failed: map[string]string{}}
	name := w.cfg.CacheName()

	for _, asset := range w.cfg.Assets {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset, nil)
		if err != nil {
			rep.Failed[asset] = err.Error()
			continue
		}
		e, err := w.net.Fetch(ctx, req)
		if err == nil && e.Status != http.StatusOK {
			err = fmt.Errorf("status %d", e.Status)
		}
		if err == nil {
			err = w.storage.Put(ctx, name, asset, e)
		}
		if err != nil {
			log.Printf("[assetcache] install %s: %v", asset, err)
			rep.Failed[asset] = err.Error()
			continue
		}
		rep.Cached = append(rep.Cached, asset)
	}

	w.setState(StateInstalled)
	log.Printf("[assetcache] installed %s: %d cached, %d failed", name, len(rep.Cached), len(rep.Failed))
	return rep
}

// Activate deletes every generation but the current one.
func (w *Worker) Activate(ctx context.Context) error {
	w.setState(StateActivating)
	names, err := w.storage.Names(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	current := w.cfg.CacheName()
	for _, n := range names {
		if n == current {
			continue
		}
		if err := w.storage.Drop(ctx, n); err != nil {
			return fmt.Errorf("drop %s: %w", n, err)
		}
		log.Printf("[assetcache] dropped stale cache %s", n)
	}
	w.setState(StateActive)
	return nil
}

func isNavigation(r *http.Request) bool {
	return r.Header.Get("Sec-Fetch-Mode") == "navigate" || strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeEntry(rw http.ResponseWriter, e Entry) {
	if e.ContentType != "" {
		rw.Header().Set("Content-Type", e.ContentType)
	}
	rw.WriteHeader(e.Status)
	_, _ = rw.Write(e.Body)
}

// Handler serves GET requests inside the scope cache-first and hands
// everything else to next.
func (w *Worker) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !w.cfg.InScope(r.URL.Path) {
			next.ServeHTTP(rw, r)
			return
		}
		ctx := r.Context()
		name := w.cfg.CacheName()
		key := r.URL.RequestURI()

		if e, ok, err := w.storage.Match(ctx, name, key); err != nil {
			log.Printf("[assetcache] match %s: %v", key, err)
		} else if ok {
			metrics.AssetCache.WithLabelValues("hit").Inc()
			rw.Header().Set("X-Cache", "hit")
			writeEntry(rw, e)
			return
		}

		e, err := w.net.Fetch(ctx, r)
		if err == nil {
			metrics.AssetCache.WithLabelValues("miss").Inc()
			if w.cfg.Features.RuntimeCache && e.Status == http.StatusOK {
				if perr := w.storage.Put(ctx, name, key, e); perr != nil {
					log.Printf("[assetcache] runtime put %s: %v", key, perr)
				}
			}
			rw.Header().Set("X-Cache", "miss")
			writeEntry(rw, e)
			return
		}

		if isNavigation(r) {
			if shell, ok, _ := w.storage.Match(ctx, name, w.cfg.Shell); ok {
				metrics.AssetCache.WithLabelValues("fallback").Inc()
				rw.Header().Set("X-Cache", "fallback")
				writeEntry(rw, shell)
				return
			}
		}
		metrics.AssetCache.WithLabelValues("offline").Inc()
		log.Printf("[assetcache] fetch %s: %v", key, err)
		http.Error(rw, "offline", http.StatusServiceUnavailable)
	})
}

// Push decodes a push payload into the notification to show. A payload that
// is not JSON becomes the body text.
func (w *Worker) Push(payload []byte) (Notification, error) {
	if !w.cfg.Features.Push {
		return Notification{}, ErrDisabled
	}
	n := Notification{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n); err != nil {
			n = Notification{Body: string(payload)}
		}
	}
	if n.Title == "" {
		n.Title = w.cfg.Notification.Title
	}
	if n.Icon == "" {
		n.Icon = w.cfg.Notification.Icon
	}
	if n.URL == "" {
		n.URL = w.cfg.Scope
	}
	return n, nil
}

// NotificationClick is the URL to open for n.
func (w *Worker) NotificationClick(n Notification) string {
	if n.URL != "" {
		return n.URL
	}
	return w.cfg.Scope
}

// OnSync sets the handler run for tag.
func (w *Worker) OnSync(tag string, fn SyncFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[tag] = fn
}

// RegisterSync queues tag for the next RunSync.
func (w *Worker) RegisterSync(tag string) error {
	if !w.cfg.Features.Sync {
		return ErrDisabled
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.pending {
		if t == tag {
			return nil
		}
	}
	w.pending = append(w.pending, tag)
	return nil
}

// RunSync runs each queued tag's handler once. Failures are logged and not retried.
func (w *Worker) RunSync(ctx context.Context) ([]string, error) {
	if !w.cfg.Features.Sync {
		return nil, ErrDisabled
	}
	w.mu.Lock()
	tags := w.pending
	w.pending = nil
	handlers := make(map[string]SyncFunc, len(tags))
	for _, t := range tags {
		handlers[t] = w.handlers[t]
	}
	w.mu.Unlock()

	sort.Strings(tags)
	var ran []string
	for _, t := range tags {
		fn := handlers[t]
		if fn == nil {
			log.Printf("[assetcache] sync %s: no handler", t)
			continue
		}
		if err := fn(ctx); err != nil {
			log.Printf("[assetcache] sync %s: %v", t, err)
			continue
		}
		ran = append(ran, t)
	}
	return ran, nil
}
