package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"glassy-social/internal/docstore"
)

type Writer interface {
	WriteJSON(ctx context.Context, key string, v any) error
}

// Publisher sends events keyed by post id so one post's events stay ordered.
type Publisher struct{ w Writer }

func NewPublisher(w Writer) *Publisher { return &Publisher{w: w} }

func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	return p.w.WriteJSON(ctx, ev.PostID, ev)
}

type Posts interface {
	GetPost(ctx context.Context, id string) (*docstore.Post, error)
}

// Deliverer shows a transient message on every live session of a user.
type Deliverer interface {
	DeliverToUser(uid, text string) int
}

// Inbox turns activity events into stored notifications for the post author.
type Inbox struct {
	svc   Service
	posts Posts
	live  Deliverer
}

func NewInbox(svc Service, posts Posts, live Deliverer) *Inbox {
	return &Inbox{svc: svc, posts: posts, live: live}
}

func (in *Inbox) Handle(ctx context.Context, ev Event) error {
	post, err := in.posts.GetPost(ctx, ev.PostID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load post %s: %w", ev.PostID, err)
	}
	if post.AuthorID == ev.ActorID {
		return nil
	}

	actor := ev.ActorName
	if actor == "" {
		actor = "Someone"
	}
	var title, body string
	switch ev.Kind {
	case KindReaction:
		title = "New reaction"
		body = fmt.Sprintf("%s reacted %s to your post", actor, ev.Text)
	case KindComment:
		title = "New comment"
		body = fmt.Sprintf("%s commented: %s", actor, ev.Text)
	default:
		return nil
	}
	meta := map[string]any{"post_id": ev.PostID, "actor_id": ev.ActorID}
	if _, err := in.svc.Create(ctx, post.AuthorID, ev.Kind, title, body, meta); err != nil {
		return err
	}
	if in.live != nil {
		in.live.DeliverToUser(post.AuthorID, body)
	}
	return nil
}

// HandleMessage decodes a Kafka message; undecodable payloads are dropped.
func (in *Inbox) HandleMessage(ctx context.Context, key, value []byte) error {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		log.Printf("[Kafka] decode activity: %v (key=%s)", err, string(key))
		return nil
	}
	return in.Handle(ctx, ev)
}
