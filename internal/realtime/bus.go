package realtime

import "context"

// Topic names a watched collection, e.g. "posts/42/comments".
type Topic string

func Feed() Topic                   { return "posts" }
func Reactions(postID string) Topic { return Topic("posts/" + postID + "/reactions") }
func Comments(postID string) Topic  { return Topic("posts/" + postID + "/comments") }
func Chat(room string) Topic        { return Topic("chats/" + room + "/messages") }

type Publisher interface {
	Publish(ctx context.Context, t Topic) error
}

// Bus delivers change signals. A signal carries no payload: receivers re-read the
// whole query, so pending signals for one subscriber coalesce into one.
type Bus interface {
	Publisher
	// Subscribe returns a channel that is closed once ctx is done.
	Subscribe(ctx context.Context, t Topic) (<-chan struct{}, error)
}
