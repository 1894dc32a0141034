package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"glassy-social/internal/metrics"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
)

// Hub is the registry of live sessions.
type Hub struct {
	deps  Deps
	idle  time.Duration
	now   func() time.Time
	newID func() string

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewHub(d Deps, idle time.Duration) *Hub {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Hub{
		deps:     d,
		idle:     idle,
		now:      now,
		newID:    uuid.NewString,
		sessions: map[string]*Session{},
	}
}

func (h *Hub) Create() *Session {
	s := New(h.newID(), h.deps)
	h.mu.Lock()
	h.sessions[s.ID] = s
	n := len(h.sessions)
	h.mu.Unlock()
	metrics.Sessions.Set(float64(n))
	return s
}

func (h *Hub) Get(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	n := len(h.sessions)
	h.mu.Unlock()
	if ok {
		s.Close()
	}
	metrics.Sessions.Set(float64(n))
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) all() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// ForUser returns the live sessions signed in as uid.
func (h *Hub) ForUser(uid string) []*Session {
	var out []*Session
	for _, s := range h.all() {
		if uid != "" && s.UserID() == uid {
			out = append(out, s)
		}
	}
	return out
}

// DeliverToUser shows text on every session of uid and reports how many got it.
func (h *Hub) DeliverToUser(uid, text string) int {
	list := h.ForUser(uid)
	for _, s := range list {
		s.Notify(text)
	}
	return len(list)
}

// Broadcast shows text on every live session.
func (h *Hub) Broadcast(text string) int {
	list := h.all()
	for _, s := range list {
		s.Notify(text)
	}
	return len(list)
}

// Sweep closes sessions not seen for longer than the idle timeout.
func (h *Hub) Sweep() int {
	cutoff := h.now().Add(-h.idle)
	var stale []string
	for _, s := range h.all() {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s.ID)
		}
	}
	for _, id := range stale {
		h.Remove(id)
	}
	if len(stale) > 0 {
		log.Printf("[session] swept %d idle sessions, %d live", len(stale), h.Len())
	}
	return len(stale)
}

// RunSweeper sweeps on the cron schedule expr until ctx is done.
func (h *Hub) RunSweeper(ctx context.Context, expr string) error {
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("invalid sweep schedule %q", expr)
	}
	for {
		next, err := gronx.NextTickAfter(expr, h.now(), false)
		if err != nil {
			return fmt.Errorf("next sweep: %w", err)
		}
		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
			h.Sweep()
		}
	}
}

// CloseAll closes every session, used on shutdown.
func (h *Hub) CloseAll() {
	for _, s := range h.all() {
		h.Remove(s.ID)
	}
}
