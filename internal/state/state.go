// Package state is the single source of truth for one client session.
package state

import (
	"sync"

	"glassy-social/internal/auth"
	"glassy-social/internal/docstore"
)

const DefaultRoom = "general"

// ReactionSummary is the per-kind count of a post plus the viewer's own kind ("" for none).
type ReactionSummary struct {
	Counts map[string]int
	Mine   string
}

type ProfileStatus int

const (
	ProfileLoading ProfileStatus = iota
	ProfileReady
)

type Profile struct {
	Status ProfileStatus
	User   *docstore.User
}

type State struct {
	User      *auth.Identity
	Route     string
	Posts     []docstore.Post
	Reactions map[string]ReactionSummary
	Comments  map[string][]docstore.Comment
	Messages  []docstore.ChatMessage
	Room      string
	ReplyTo   *docstore.ReplyRef
	Loading   bool
	Profiles  map[string]Profile
}

func initial() State {
	return State{
		Route:     "feed",
		Room:      DefaultRoom,
		Reactions: map[string]ReactionSummary{},
		Comments:  map[string][]docstore.Comment{},
		Profiles:  map[string]Profile{},
	}
}

// Store guards State. Every mutator ends by calling redraw, outside the lock.
type Store struct {
	mu     sync.RWMutex
	s      State
	redraw func()
}

func New(redraw func()) *Store {
	if redraw == nil {
		redraw = func() {}
	}
	return &Store{s: initial(), redraw: redraw}
}

func (st *Store) mutate(f func(s *State) bool) {
	st.mu.Lock()
	changed := f(&st.s)
	st.mu.Unlock()
	if changed {
		st.redraw()
	}
}

// Snapshot returns a deep copy that shares nothing with the store.
func (st *Store) Snapshot() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return clone(st.s)
}

func (st *Store) ViewerID() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.s.User == nil {
		return ""
	}
	return st.s.User.UID
}

func (st *Store) User() (auth.Identity, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.s.User == nil {
		return auth.Identity{}, false
	}
	return *st.s.User, true
}

func (st *Store) Route() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Route
}

func (st *Store) Room() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Room
}

// Post looks a post up in the current feed.
func (st *Store) Post(id string) (docstore.Post, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, p := range st.s.Posts {
		if p.ID == id {
			return p, true
		}
	}
	return docstore.Post{}, false
}

func (st *Store) Message(id string) (docstore.ChatMessage, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, m := range st.s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return docstore.ChatMessage{}, false
}

func (st *Store) SetUser(id auth.Identity) {
	st.mutate(func(s *State) bool {
		s.User = &id
		return true
	})
}

// ClearUser drops the identity and everything loaded on its behalf, then routes to the feed.
func (st *Store) ClearUser() {
	st.mutate(func(s *State) bool {
		*s = initial()
		return true
	})
}

func (st *Store) SetRoute(route string) {
	st.mutate(func(s *State) bool {
		s.Route = route
		return true
	})
}

// SetPosts replaces the feed. Reaction and comment entries of posts that left it are dropped.
func (st *Store) SetPosts(posts []docstore.Post) {
	st.mutate(func(s *State) bool {
		s.Posts = posts
		keep := make(map[string]bool, len(posts))
		for _, p := range posts {
			keep[p.ID] = true
		}
		for id := range s.Reactions {
			if !keep[id] {
				delete(s.Reactions, id)
			}
		}
		for id := range s.Comments {
			if !keep[id] {
				delete(s.Comments, id)
			}
		}
		return true
	})
}

func hasPost(s *State, id string) bool {
	for _, p := range s.Posts {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (st *Store) SetReactions(postID string, sum ReactionSummary) {
	st.mutate(func(s *State) bool {
		if !hasPost(s, postID) {
			return false
		}
		s.Reactions[postID] = sum
		return true
	})
}

func (st *Store) SetComments(postID string, comments []docstore.Comment) {
	st.mutate(func(s *State) bool {
		if !hasPost(s, postID) {
			return false
		}
		s.Comments[postID] = comments
		return true
	})
}

// SetChatMessages replaces the message list; snapshots for another room are ignored.
func (st *Store) SetChatMessages(room string, msgs []docstore.ChatMessage) {
	st.mutate(func(s *State) bool {
		if room != s.Room {
			return false
		}
		s.Messages = msgs
		return true
	})
}

func (st *Store) SetChatRoom(room string) {
	if room == "" {
		room = DefaultRoom
	}
	st.mutate(func(s *State) bool {
		if s.Room == room {
			return false
		}
		s.Room = room
		s.Messages = nil
		s.ReplyTo = nil
		return true
	})
}

func (st *Store) SetReplyTo(ref docstore.ReplyRef) {
	st.mutate(func(s *State) bool {
		s.ReplyTo = &ref
		return true
	})
}

func (st *Store) ClearReply() {
	st.mutate(func(s *State) bool {
		if s.ReplyTo == nil {
			return false
		}
		s.ReplyTo = nil
		return true
	})
}

func (st *Store) SetLoading(v bool) {
	st.mutate(func(s *State) bool {
		s.Loading = v
		return true
	})
}

// MarkProfileLoading records a pending fetch. It reports false when the profile
// is already cached or being fetched.
func (st *Store) MarkProfileLoading(uid string) bool {
	var started bool
	st.mutate(func(s *State) bool {
		if _, ok := s.Profiles[uid]; ok {
			return false
		}
		s.Profiles[uid] = Profile{Status: ProfileLoading}
		started = true
		return true
	})
	return started
}

func (st *Store) PutProfile(u docstore.User) {
	st.mutate(func(s *State) bool {
		s.Profiles[u.ID] = Profile{Status: ProfileReady, User: &u}
		return true
	})
}

func (st *Store) DropProfile(uid string) {
	st.mutate(func(s *State) bool {
		if _, ok := s.Profiles[uid]; !ok {
			return false
		}
		delete(s.Profiles, uid)
		return true
	})
}
