// Package subscription keeps a session's live queries attached to change signals.
package subscription

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"

	"glassy-social/internal/docstore"
	"glassy-social/internal/metrics"
	"glassy-social/internal/realtime"
	"glassy-social/internal/state"
)

const (
	FeedLimit = 50
	ChatLimit = 200
)

// Source is the read side of the document store used by subscriptions.
type Source interface {
	RecentPosts(ctx context.Context, limit int) ([]docstore.Post, error)
	ListReactions(ctx context.Context, postID string) ([]docstore.Reaction, error)
	ListComments(ctx context.Context, postID string) ([]docstore.Comment, error)
	RecentMessages(ctx context.Context, room string, limit int) ([]docstore.ChatMessage, error)
}

// Sink receives snapshots. *state.Store implements it.
type Sink interface {
	ViewerID() string
	SetPosts(posts []docstore.Post)
	SetReactions(postID string, sum state.ReactionSummary)
	SetComments(postID string, comments []docstore.Comment)
	SetChatMessages(room string, msgs []docstore.ChatMessage)
}

// loadFunc reads one snapshot and returns how to apply it. after, when not
// nil, runs once apply has been applied and the lock released, still on the
// subscription's goroutine, so after hooks run in emission order.
type loadFunc func(ctx context.Context) (apply, after func(), err error)

// Manager owns the cancellation handles of every attached subscription.
// Each subscription runs in its own goroutine: one initial load, then one
// load per change signal, so its snapshots apply in emission order.
type Manager struct {
	src    Source
	bus    realtime.Bus
	sink   Sink
	parent context.Context

	mu      sync.Mutex
	gen     uint64
	handles map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(parent context.Context, src Source, bus realtime.Bus, sink Sink) *Manager {
	return &Manager{
		src:     src,
		bus:     bus,
		sink:    sink,
		parent:  parent,
		handles: map[string]context.CancelFunc{},
	}
}

func feedKey() string                   { return "feed" }
func reactionsKey(postID string) string { return "reactions:" + postID }
func commentsKey(postID string) string  { return "comments:" + postID }
func chatKey(room string) string        { return "chat:" + room }

func (m *Manager) AttachFeed() {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	m.attach(gen, feedKey(), "feed", realtime.Feed(), func(ctx context.Context) (func(), func(), error) {
		posts, err := m.src.RecentPosts(ctx, FeedLimit)
		if err != nil {
			return nil, nil, err
		}
		apply := func() { m.sink.SetPosts(posts) }
		follow := func() { m.followPosts(gen, posts) }
		return apply, follow, nil
	})
}

// followPosts attaches reaction and comment subscriptions for the posts in the
// feed and drops those of posts that left it.
func (m *Manager) followPosts(gen uint64, posts []docstore.Post) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	keep := map[string]bool{}
	for _, p := range posts {
		keep[reactionsKey(p.ID)] = true
		keep[commentsKey(p.ID)] = true
	}
	for key, cancel := range m.handles {
		if (strings.HasPrefix(key, "reactions:") || strings.HasPrefix(key, "comments:")) && !keep[key] {
			cancel()
			delete(m.handles, key)
		}
	}
	m.mu.Unlock()

	for _, p := range posts {
		m.attachReactions(gen, p.ID)
		m.attachComments(gen, p.ID)
	}
}

func (m *Manager) current() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

func (m *Manager) AttachReactions(postID string) { m.attachReactions(m.current(), postID) }
func (m *Manager) AttachComments(postID string)  { m.attachComments(m.current(), postID) }

func (m *Manager) attachReactions(gen uint64, postID string) {
	m.attach(gen, reactionsKey(postID), "reactions", realtime.Reactions(postID), func(ctx context.Context) (func(), func(), error) {
		list, err := m.src.ListReactions(ctx, postID)
		if err != nil {
			return nil, nil, err
		}
		sum := Summarize(list, m.sink.ViewerID())
		return func() { m.sink.SetReactions(postID, sum) }, nil, nil
	})
}

func (m *Manager) attachComments(gen uint64, postID string) {
	m.attach(gen, commentsKey(postID), "comments", realtime.Comments(postID), func(ctx context.Context) (func(), func(), error) {
		list, err := m.src.ListComments(ctx, postID)
		if err != nil {
			return nil, nil, err
		}
		return func() { m.sink.SetComments(postID, list) }, nil, nil
	})
}

func (m *Manager) AttachChat(room string) {
	if room == "" {
		room = state.DefaultRoom
	}
	m.attach(m.current(), chatKey(room), "chat", realtime.Chat(room), func(ctx context.Context) (func(), func(), error) {
		msgs, err := m.src.RecentMessages(ctx, room, ChatLimit)
		if err != nil {
			return nil, nil, err
		}
		return func() { m.sink.SetChatMessages(room, msgs) }, nil, nil
	})
}

// DetachChat cancels every chat subscription, leaving the feed attached.
func (m *Manager) DetachChat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, cancel := range m.handles {
		if strings.HasPrefix(key, "chat:") {
			cancel()
			delete(m.handles, key)
		}
	}
}

// Summarize counts reactions per kind and picks out the viewer's own.
func Summarize(list []docstore.Reaction, viewer string) state.ReactionSummary {
	sum := state.ReactionSummary{Counts: map[string]int{}}
	for _, r := range list {
		sum.Counts[r.Kind]++
		if viewer != "" && r.UserID == viewer {
			sum.Mine = r.Kind
		}
	}
	return sum
}

func (m *Manager) attach(gen uint64, key, kind string, topic realtime.Topic, load loadFunc) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if _, ok := m.handles[key]; ok {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(m.parent)
	m.handles[key] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	// subscribe before the first load so no change between the two is missed
	signals, err := m.bus.Subscribe(ctx, topic)
	if err != nil {
		log.Printf("[subscription] subscribe %s: %v", topic, err)
		metrics.Snapshots.WithLabelValues(kind, "error").Inc()
		m.mu.Lock()
		if gen == m.gen {
			delete(m.handles, key)
		}
		m.mu.Unlock()
		cancel()
		m.wg.Done()
		return
	}

	metrics.Subscriptions.Inc()
	go func() {
		defer m.wg.Done()
		defer metrics.Subscriptions.Dec()
		m.deliver(ctx, gen, kind, load)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				m.deliver(ctx, gen, kind, load)
			}
		}
	}()
}

func (m *Manager) deliver(ctx context.Context, gen uint64, kind string, load loadFunc) {
	apply, after, err := load(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[subscription] %s load: %v", kind, err)
			metrics.Snapshots.WithLabelValues(kind, "error").Inc()
		}
		return
	}
	if !m.applyCurrent(ctx, gen, kind, apply) {
		return
	}
	if after != nil {
		after()
	}
}

// applyCurrent applies a snapshot unless its scope was detached meanwhile.
func (m *Manager) applyCurrent(ctx context.Context, gen uint64, kind string, apply func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || ctx.Err() != nil {
		metrics.Snapshots.WithLabelValues(kind, "stale").Inc()
		return false
	}
	apply()
	metrics.Snapshots.WithLabelValues(kind, "ok").Inc()
	return true
}

// DetachAll cancels every subscription. Snapshots still in flight from the
// detached scope are dropped.
func (m *Manager) DetachAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	for key, cancel := range m.handles {
		cancel()
		delete(m.handles, key)
	}
}

// Active lists the attached subscription keys in sorted order.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.handles))
	for k := range m.handles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close detaches everything and waits for subscription goroutines to exit.
func (m *Manager) Close() {
	m.DetachAll()
	m.wg.Wait()
}
