package docstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store used for local development and tests.
type Memory struct {
	mu        sync.RWMutex
	users     map[string]User
	creds     map[string]Credential
	posts     map[string]Post
	reactions map[string]map[string]Reaction // post -> user -> reaction
	comments  map[string][]Comment
	messages  map[string][]ChatMessage
	reports   []Report
}

func NewMemory() *Memory {
	return &Memory{
		users:     map[string]User{},
		creds:     map[string]Credential{},
		posts:     map[string]Post{},
		reactions: map[string]map[string]Reaction{},
		comments:  map[string][]Comment{},
		messages:  map[string][]ChatMessage{},
	}
}

func copyUser(u User) *User {
	u.Following = append(u.Following[:0:0], u.Following...)
	u.Followers = append(u.Followers[:0:0], u.Followers...)
	return &u
}

func copyMessage(m ChatMessage) ChatMessage {
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		m.ReplyTo = &r
	}
	if m.ReadBy != nil {
		rb := make(map[string]bool, len(m.ReadBy))
		for k, v := range m.ReadBy {
			rb[k] = v
		}
		m.ReadBy = rb
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		m.EditedAt = &t
	}
	return m
}

func (m *Memory) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (m *Memory) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return ErrConflict
	}
	m.users[u.ID] = *copyUser(*u)
	return nil
}

func (m *Memory) TouchUser(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastActive = at
	m.users[id] = u
	return nil
}

func (m *Memory) AddPostsCount(_ context.Context, uid string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return ErrNotFound
	}
	u.PostsCount += delta
	m.users[uid] = u
	return nil
}

func (m *Memory) CreateCredential(_ context.Context, c *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[c.Email]; ok {
		return ErrConflict
	}
	m.creds[c.Email] = *c
	return nil
}

func (m *Memory) GetCredential(_ context.Context, email string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creds[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) CreatePost(_ context.Context, p *Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[p.ID]; ok {
		return ErrConflict
	}
	m.posts[p.ID] = *p
	return nil
}

func (m *Memory) GetPost(_ context.Context, id string) (*Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) DeletePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return ErrNotFound
	}
	delete(m.posts, id)
	delete(m.reactions, id)
	delete(m.comments, id)
	return nil
}

func (m *Memory) AddPostCounter(_ context.Context, id string, c Counter, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return ErrNotFound
	}
	switch c {
	case CommentsCount:
		p.CommentsCount += delta
	case ReactionsCount:
		p.ReactionsCount += delta
	}
	m.posts[id] = p
	return nil
}

func (m *Memory) RecentPosts(_ context.Context, limit int) ([]Post, error) {
	m.mu.RLock()
	out := make([]Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CreateReport(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, *r)
	return nil
}

// Reports returns every stored report.
func (m *Memory) Reports() []Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Report(nil), m.reports...)
}

func (m *Memory) GetReaction(_ context.Context, postID, uid string) (*Reaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reactions[postID][uid]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) PutReaction(_ context.Context, r *Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser, ok := m.reactions[r.PostID]
	if !ok {
		byUser = map[string]Reaction{}
		m.reactions[r.PostID] = byUser
	}
	byUser[r.UserID] = *r
	return nil
}

func (m *Memory) DeleteReaction(_ context.Context, postID, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reactions[postID], uid)
	return nil
}

func (m *Memory) ListReactions(_ context.Context, postID string) ([]Reaction, error) {
	m.mu.RLock()
	out := make([]Reaction, 0, len(m.reactions[postID]))
	for _, r := range m.reactions[postID] {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) CreateComment(_ context.Context, c *Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[c.PostID] = append(m.comments[c.PostID], *c)
	return nil
}

func (m *Memory) ListComments(_ context.Context, postID string) ([]Comment, error) {
	m.mu.RLock()
	out := append([]Comment(nil), m.comments[postID]...)
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) CreateMessage(_ context.Context, msg *ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.RoomID] = append(m.messages[msg.RoomID], copyMessage(*msg))
	return nil
}

func (m *Memory) RecentMessages(_ context.Context, room string, limit int) ([]ChatMessage, error) {
	m.mu.RLock()
	out := make([]ChatMessage, 0, len(m.messages[room]))
	for _, msg := range m.messages[room] {
		out = append(out, copyMessage(msg))
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
