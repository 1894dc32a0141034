package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"path"
	"strings"
	"time"

	"glassy-social/internal/activity"
	"glassy-social/internal/auth"
	"glassy-social/internal/docstore"
	"glassy-social/internal/metrics"
	"glassy-social/internal/realtime"

	"github.com/google/uuid"
)

const (
	DefaultRoom = "general"
	defaultBio  = "New to Glassy Social! 🌟"
)

type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (auth.Identity, error)
	SignUp(ctx context.Context, email, password, displayName string) (auth.Identity, error)
	FederatedURL(state string) (string, error)
	CompleteFederated(ctx context.Context, code string) (auth.Identity, error)
	Issue(id auth.Identity) (string, error)
	SignOut(ctx context.Context, token string) error
}

type Blobs interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Remove(ctx context.Context, key string) error
}

type Events interface {
	Publish(ctx context.Context, ev activity.Event) error
}

// Upload is an image attached to a new post.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Gateway is the only component that talks to auth, documents and blobs.
type Gateway struct {
	auth    Authenticator
	docs    docstore.Store
	blobs   Blobs
	signals realtime.Publisher
	events  Events
	now     func() time.Time
	newID   func() string
}

// New wires the gateway; events may be nil when no broker is configured.
func New(a Authenticator, docs docstore.Store, blobs Blobs, signals realtime.Publisher, events Events) *Gateway {
	return &Gateway{
		auth:    a,
		docs:    docs,
		blobs:   blobs,
		signals: signals,
		events:  events,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

func track(op string, err *error) {
	result := "ok"
	if *err != nil {
		result = Classify(*err).String()
	}
	metrics.GatewayOps.WithLabelValues(op, result).Inc()
}

func (g *Gateway) signal(ctx context.Context, topics ...realtime.Topic) {
	for _, t := range topics {
		if err := g.signals.Publish(ctx, t); err != nil {
			log.Printf("[gateway] signal %s: %v", t, err)
		}
	}
}

func (g *Gateway) emit(ctx context.Context, ev activity.Event) {
	if g.events == nil {
		return
	}
	if err := g.events.Publish(ctx, ev); err != nil {
		log.Printf("[gateway] activity %s post=%s: %v", ev.Kind, ev.PostID, err)
	}
}

// counter applies a denormalized counter change. Counters are advisory: a
// failure here is logged and never undoes the primary write.
func (g *Gateway) counter(op string, err error) {
	if err != nil {
		log.Printf("[gateway] %s counter: %v", op, err)
		metrics.GatewayOps.WithLabelValues(op+"_counter", KindIO.String()).Inc()
	}
}

func authError(err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrMissingFields),
		errors.Is(err, auth.ErrFederatedDisabled):
		return invalid(err.Error())
	default:
		return ioErr("Auth error", err)
	}
}

func (g *Gateway) establish(ctx context.Context, id auth.Identity) (auth.Identity, string, error) {
	if err := g.EnsureProfile(ctx, id); err != nil {
		log.Printf("[gateway] ensure profile %s: %v", id.UID, err)
	}
	tok, err := g.auth.Issue(id)
	if err != nil {
		return auth.Identity{}, "", ioErr("Auth error", err)
	}
	return id, tok, nil
}

// SignIn authenticates with email and password and returns a session token.
func (g *Gateway) SignIn(ctx context.Context, email, password string) (_ auth.Identity, _ string, err error) {
	defer track("sign_in", &err)
	id, err := g.auth.SignIn(ctx, email, password)
	if err != nil {
		return auth.Identity{}, "", authError(err)
	}
	return g.establish(ctx, id)
}

// SignUp creates credentials, then the profile document.
func (g *Gateway) SignUp(ctx context.Context, email, password, displayName string) (_ auth.Identity, _ string, err error) {
	defer track("sign_up", &err)
	id, err := g.auth.SignUp(ctx, email, password, displayName)
	if err != nil {
		return auth.Identity{}, "", authError(err)
	}
	return g.establish(ctx, id)
}

func (g *Gateway) FederatedURL(state string) (string, error) {
	u, err := g.auth.FederatedURL(state)
	if err != nil {
		return "", authError(err)
	}
	return u, nil
}

func (g *Gateway) CompleteFederated(ctx context.Context, code string) (_ auth.Identity, _ string, err error) {
	defer track("sign_in_federated", &err)
	id, err := g.auth.CompleteFederated(ctx, code)
	if err != nil {
		return auth.Identity{}, "", authError(err)
	}
	return g.establish(ctx, id)
}

func (g *Gateway) SignOut(ctx context.Context, token string) (err error) {
	defer track("sign_out", &err)
	if err = g.auth.SignOut(ctx, token); err != nil {
		return ioErr("Failed to sign out", err)
	}
	return nil
}

// AvatarFor is the generated avatar used when an identity has no photo.
func AvatarFor(name string) string {
	if name == "" {
		name = "User"
	}
	// spaces encode as %20, not +
	q := strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
	return "https://ui-avatars.com/api/?name=" + q + "&background=1DB954&color=000"
}

// DefaultProfile is the users document created on first sign-in.
func DefaultProfile(id auth.Identity, now time.Time) *docstore.User {
	name := id.DisplayName
	if name == "" {
		name, _, _ = strings.Cut(id.Email, "@")
	}
	if name == "" {
		name = "User"
	}
	avatar := id.PhotoURL
	if avatar == "" {
		avatar = AvatarFor(id.DisplayName)
	}
	return &docstore.User{
		ID:         id.UID,
		Name:       name,
		Email:      id.Email,
		Avatar:     avatar,
		Bio:        defaultBio,
		Following:  []string{},
		Followers:  []string{},
		PostsCount: 0,
		Role:       "user",
		CreatedAt:  now,
		LastActive: now,
	}
}

// EnsureProfile creates the profile when missing, otherwise refreshes lastActive.
func (g *Gateway) EnsureProfile(ctx context.Context, id auth.Identity) (err error) {
	defer track("ensure_profile", &err)
	if id.UID == "" {
		return errSignInRequired
	}
	now := g.now()
	_, err = g.docs.GetUser(ctx, id.UID)
	switch {
	case err == nil:
	case errors.Is(err, docstore.ErrNotFound):
		err = g.docs.CreateUser(ctx, DefaultProfile(id, now))
		if !errors.Is(err, docstore.ErrConflict) {
			if err != nil {
				return ioErr("Failed to create profile", err)
			}
			return nil
		}
	default:
		return ioErr("Failed to load profile", err)
	}
	if err = g.docs.TouchUser(ctx, id.UID, now); err != nil {
		return ioErr("Failed to refresh profile", err)
	}
	return nil
}

func (g *Gateway) GetProfile(ctx context.Context, uid string) (_ *docstore.User, err error) {
	defer track("get_profile", &err)
	u, err := g.docs.GetUser(ctx, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFound("User not found")
	}
	if err != nil {
		return nil, ioErr("Failed to load profile", err)
	}
	return u, nil
}

// ImagePath is the blob key of a post image: posts/{uid}/{unixMillis}_{filename}.
func ImagePath(uid string, at time.Time, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "image"
	}
	return fmt.Sprintf("posts/%s/%d_%s", uid, at.UnixMilli(), name)
}

func displayName(id auth.Identity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	return "User"
}

func (g *Gateway) CreatePost(ctx context.Context, id auth.Identity, text string, img *Upload) (_ *docstore.Post, err error) {
	defer track("create_post", &err)
	if id.UID == "" {
		return nil, errSignInRequired
	}
	text = strings.TrimSpace(text)
	if img != nil && len(img.Data) == 0 {
		img = nil
	}
	if text == "" && img == nil {
		return nil, invalid("Post is empty")
	}

	now := g.now()
	var imageURL, imagePath string
	if img != nil {
		imagePath = ImagePath(id.UID, now, img.Filename)
		imageURL, err = g.blobs.Put(ctx, imagePath, img.ContentType, img.Data)
		if err != nil {
			return nil, ioErr("Failed to upload image", err)
		}
	}

	p := &docstore.Post{
		ID:           g.newID(),
		AuthorID:     id.UID,
		AuthorName:   displayName(id),
		AuthorAvatar: id.PhotoURL,
		Text:         text,
		ImageURL:     imageURL,
		ImagePath:    imagePath,
		Visibility:   "public",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = g.docs.CreatePost(ctx, p); err != nil {
		if imagePath != "" {
			if rerr := g.blobs.Remove(ctx, imagePath); rerr != nil {
				log.Printf("[gateway] rollback blob %s: %v", imagePath, rerr)
			}
		}
		return nil, ioErr("Failed to create post", err)
	}
	g.counter("create_post", g.docs.AddPostsCount(ctx, id.UID, 1))
	g.signal(ctx, realtime.Feed())
	return p, nil
}

// DeletePost removes a post owned by id. When the caller already holds the post
// (known), a foreign author is rejected before any I/O.
func (g *Gateway) DeletePost(ctx context.Context, id auth.Identity, postID string, known *docstore.Post) (err error) {
	defer track("delete_post", &err)
	if id.UID == "" {
		return errSignInRequired
	}
	if known != nil && known.AuthorID != id.UID {
		return errNotAuthor
	}
	p, err := g.docs.GetPost(ctx, postID)
	if errors.Is(err, docstore.ErrNotFound) {
		return notFound("Post not found")
	}
	if err != nil {
		return ioErr("Failed to delete", err)
	}
	if p.AuthorID != id.UID {
		return errNotAuthor
	}
	if p.ImagePath != "" {
		if rerr := g.blobs.Remove(ctx, p.ImagePath); rerr != nil {
			log.Printf("[gateway] remove blob %s: %v", p.ImagePath, rerr)
		}
	}
	if err = g.docs.DeletePost(ctx, postID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return notFound("Post not found")
		}
		return ioErr("Failed to delete", err)
	}
	g.counter("delete_post", g.docs.AddPostsCount(ctx, id.UID, -1))
	g.signal(ctx, realtime.Feed(), realtime.Reactions(postID), realtime.Comments(postID))
	return nil
}

func (g *Gateway) ReportPost(ctx context.Context, id auth.Identity, postID, reason string) (err error) {
	defer track("report_post", &err)
	if id.UID == "" {
		return errSignInRequired
	}
	r := &docstore.Report{
		ID:         g.newID(),
		PostID:     postID,
		ReporterID: id.UID,
		Reason:     strings.TrimSpace(reason),
		CreatedAt:  g.now(),
	}
	if err = g.docs.CreateReport(ctx, r); err != nil {
		return ioErr("Failed to report", err)
	}
	return nil
}

// ToggleReaction sets, replaces or removes the caller's reaction on a post and
// returns the change applied to the reaction counter (+1, 0 or -1).
func (g *Gateway) ToggleReaction(ctx context.Context, id auth.Identity, postID, kind string) (delta int, err error) {
	defer track("toggle_reaction", &err)
	if id.UID == "" {
		return 0, errSignInRequired
	}
	if !docstore.ValidReaction(kind) {
		return 0, invalid("Unknown reaction")
	}
	cur, err := g.docs.GetReaction(ctx, postID, id.UID)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return 0, ioErr("Failed to react", err)
	}

	if cur != nil && cur.Kind == kind {
		if err = g.docs.DeleteReaction(ctx, postID, id.UID); err != nil {
			return 0, ioErr("Failed to react", err)
		}
		delta = -1
	} else {
		r := &docstore.Reaction{PostID: postID, UserID: id.UID, Kind: kind, CreatedAt: g.now()}
		if err = g.docs.PutReaction(ctx, r); err != nil {
			return 0, ioErr("Failed to react", err)
		}
		if cur == nil {
			delta = 1
		}
		g.emit(ctx, activity.Event{
			Kind: activity.KindReaction, PostID: postID,
			ActorID: id.UID, ActorName: displayName(id), Text: kind, At: r.CreatedAt,
		})
	}

	if delta != 0 {
		g.counter("toggle_reaction", g.docs.AddPostCounter(ctx, postID, docstore.ReactionsCount, int64(delta)))
		g.signal(ctx, realtime.Reactions(postID), realtime.Feed())
	} else {
		g.signal(ctx, realtime.Reactions(postID))
	}
	return delta, nil
}

func (g *Gateway) AddComment(ctx context.Context, id auth.Identity, postID, content string) (_ *docstore.Comment, err error) {
	defer track("add_comment", &err)
	if id.UID == "" {
		return nil, errSignInRequired
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("Comment is empty")
	}
	now := g.now()
	c := &docstore.Comment{
		ID:           g.newID(),
		PostID:       postID,
		AuthorID:     id.UID,
		AuthorName:   displayName(id),
		AuthorAvatar: id.PhotoURL,
		Content:      content,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = g.docs.CreateComment(ctx, c); err != nil {
		return nil, ioErr("Failed to add comment", err)
	}
	g.counter("add_comment", g.docs.AddPostCounter(ctx, postID, docstore.CommentsCount, 1))
	g.signal(ctx, realtime.Comments(postID), realtime.Feed())
	g.emit(ctx, activity.Event{
		Kind: activity.KindComment, PostID: postID,
		ActorID: id.UID, ActorName: displayName(id), Text: content, At: now,
	})
	return c, nil
}

func (g *Gateway) SendMessage(ctx context.Context, id auth.Identity, room, content string, replyTo *docstore.ReplyRef) (_ *docstore.ChatMessage, err error) {
	defer track("send_message", &err)
	if id.UID == "" {
		return nil, errSignInRequired
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("Message is empty")
	}
	if room == "" {
		room = DefaultRoom
	}
	var reply *docstore.ReplyRef
	if replyTo != nil {
		r := *replyTo
		reply = &r
	}
	m := &docstore.ChatMessage{
		ID:           g.newID(),
		RoomID:       room,
		SenderID:     id.UID,
		SenderName:   displayName(id),
		SenderAvatar: id.PhotoURL,
		Content:      content,
		ReplyTo:      reply,
		ReadBy:       map[string]bool{id.UID: true},
		Timestamp:    g.now(),
		EditedAt:     nil,
	}
	if err = g.docs.CreateMessage(ctx, m); err != nil {
		return nil, ioErr("Failed to send", err)
	}
	g.signal(ctx, realtime.Chat(room))
	return m, nil
}
