package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document already exists")
)

// Counter names a denormalized post counter.
type Counter string

const (
	CommentsCount  Counter = "comments_count"
	ReactionsCount Counter = "reactions_count"
)

// Store is the document database boundary. Reads return copies.
type Store interface {
	GetUser(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	TouchUser(ctx context.Context, id string, at time.Time) error
	AddPostsCount(ctx context.Context, uid string, delta int64) error

	CreateCredential(ctx context.Context, c *Credential) error
	GetCredential(ctx context.Context, email string) (*Credential, error)

	CreatePost(ctx context.Context, p *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	DeletePost(ctx context.Context, id string) error
	AddPostCounter(ctx context.Context, id string, c Counter, delta int64) error
	// RecentPosts orders by createdAt desc.
	RecentPosts(ctx context.Context, limit int) ([]Post, error)
	CreateReport(ctx context.Context, r *Report) error

	GetReaction(ctx context.Context, postID, uid string) (*Reaction, error)
	PutReaction(ctx context.Context, r *Reaction) error
	DeleteReaction(ctx context.Context, postID, uid string) error
	ListReactions(ctx context.Context, postID string) ([]Reaction, error)

	CreateComment(ctx context.Context, c *Comment) error
	// ListComments orders by createdAt asc.
	ListComments(ctx context.Context, postID string) ([]Comment, error)

	CreateMessage(ctx context.Context, m *ChatMessage) error
	// RecentMessages returns the newest limit messages of room in timestamp asc order.
	RecentMessages(ctx context.Context, room string, limit int) ([]ChatMessage, error)
}
