package docstore

import (
	"time"

	"github.com/lib/pq"
)

// User is the profile document of the users collection.
type User struct {
	ID         string         `gorm:"primaryKey;size:64" json:"uid"`
	Name       string         `gorm:"size:128" json:"name"`
	Email      string         `gorm:"size:255;index" json:"email,omitempty"`
	Avatar     string         `gorm:"size:512" json:"avatar"`
	Bio        string         `json:"bio"`
	Following  pq.StringArray `gorm:"type:text[]" json:"following"`
	Followers  pq.StringArray `gorm:"type:text[]" json:"followers"`
	PostsCount int64          `json:"postsCount"`
	Role       string         `gorm:"size:32" json:"role"`
	CreatedAt  time.Time      `json:"createdAt"`
	LastActive time.Time      `json:"lastActive"`
}

// Credential backs email/password sign-in.
type Credential struct {
	Email       string    `gorm:"primaryKey;size:255" json:"email"`
	UserID      string    `gorm:"uniqueIndex;size:64" json:"uid"`
	PassHash    string    `json:"-"`
	DisplayName string    `gorm:"size:128" json:"displayName"`
	PhotoURL    string    `gorm:"size:512" json:"photoURL"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Post struct {
	ID             string    `gorm:"primaryKey;size:64" json:"id"`
	AuthorID       string    `gorm:"size:64;index" json:"authorId"`
	AuthorName     string    `gorm:"size:128" json:"authorName"`
	AuthorAvatar   string    `gorm:"size:512" json:"authorAvatar"`
	Text           string    `json:"text"`
	ImageURL       string    `gorm:"size:1024" json:"imageUrl"`
	ImagePath      string    `gorm:"size:512" json:"imagePath"`
	CommentsCount  int64     `json:"commentsCount"`
	ReactionsCount int64     `json:"reactionsCount"`
	Visibility     string    `gorm:"size:16" json:"visibility"`
	CreatedAt      time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Reaction is keyed by (post, user): at most one per user per post.
type Reaction struct {
	PostID    string    `gorm:"primaryKey;size:64" json:"postId"`
	UserID    string    `gorm:"primaryKey;size:64" json:"userId"`
	Kind      string    `gorm:"size:16" json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

type Comment struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	PostID       string    `gorm:"size:64;index:idx_comments_post_created,priority:1" json:"postId"`
	AuthorID     string    `gorm:"size:64" json:"authorId"`
	AuthorName   string    `gorm:"size:128" json:"authorName"`
	AuthorAvatar string    `gorm:"size:512" json:"authorAvatar"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `gorm:"index:idx_comments_post_created,priority:2" json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ReplyRef is a denormalized snapshot of the message being replied to.
type ReplyRef struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SenderName string `json:"senderName"`
}

type ChatMessage struct {
	ID           string          `gorm:"primaryKey;size:64" json:"id"`
	RoomID       string          `gorm:"size:64;index:idx_messages_room_ts,priority:1" json:"roomId"`
	SenderID     string          `gorm:"size:64" json:"senderId"`
	SenderName   string          `gorm:"size:128" json:"senderName"`
	SenderAvatar string          `gorm:"size:512" json:"senderAvatar"`
	Content      string          `json:"content"`
	ReplyTo      *ReplyRef       `gorm:"serializer:json" json:"replyTo"`
	ReadBy       map[string]bool `gorm:"serializer:json" json:"readBy"`
	Timestamp    time.Time       `gorm:"index:idx_messages_room_ts,priority:2" json:"timestamp"`
	EditedAt     *time.Time      `json:"editedAt"`
}

// Report is write-only moderation input.
type Report struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	PostID     string    `gorm:"size:64;index" json:"postId"`
	ReporterID string    `gorm:"size:64" json:"reporterId"`
	Reason     string    `gorm:"size:500" json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ReactionKinds lists the accepted reaction tags in display order.
var ReactionKinds = []string{"👍", "❤", "😂", "😮", "😢"}

func ValidReaction(kind string) bool {
	for _, k := range ReactionKinds {
		if k == kind {
			return true
		}
	}
	return false
}
