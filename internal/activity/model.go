package activity

import "time"

type Kind string

const (
	KindReaction Kind = "reaction"
	KindComment  Kind = "comment"
)

// Event is published after a successful write that concerns another user's post.
type Event struct {
	Kind      Kind      `json:"kind"`
	PostID    string    `json:"post_id"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Kind      Kind           `json:"kind"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Meta      map[string]any `json:"meta,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}
