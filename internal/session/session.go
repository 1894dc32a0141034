// Package session runs one browser tab: state, subscriptions, toasts and the
// rendered frame pushed to the tab after every change.
package session

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"glassy-social/internal/auth"
	"glassy-social/internal/docstore"
	"glassy-social/internal/gateway"
	"glassy-social/internal/notify"
	"glassy-social/internal/realtime"
	"glassy-social/internal/state"
	"glassy-social/internal/subscription"
	"glassy-social/internal/view"
)

var (
	ErrUnknownBinding = errors.New("unknown binding")
	ErrClosed         = errors.New("session closed")
)

// Backend is the subset of the gateway a session calls.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (auth.Identity, string, error)
	SignUp(ctx context.Context, email, password, displayName string) (auth.Identity, string, error)
	CompleteFederated(ctx context.Context, code string) (auth.Identity, string, error)
	SignOut(ctx context.Context, token string) error
	EnsureProfile(ctx context.Context, id auth.Identity) error
	GetProfile(ctx context.Context, uid string) (*docstore.User, error)
	CreatePost(ctx context.Context, id auth.Identity, text string, img *gateway.Upload) (*docstore.Post, error)
	DeletePost(ctx context.Context, id auth.Identity, postID string, known *docstore.Post) error
	ReportPost(ctx context.Context, id auth.Identity, postID, reason string) error
	ToggleReaction(ctx context.Context, id auth.Identity, postID, kind string) (int, error)
	AddComment(ctx context.Context, id auth.Identity, postID, content string) (*docstore.Comment, error)
	SendMessage(ctx context.Context, id auth.Identity, room, content string, replyTo *docstore.ReplyRef) (*docstore.ChatMessage, error)
}

// Deps are the collaborators shared by every session of a process.
type Deps struct {
	Backend   Backend
	Source    subscription.Source
	Bus       realtime.Bus
	Federated bool
	ToastTTL  time.Duration
	Now       func() time.Time
}

// Input is what a bound element submitted: form values and an optional upload.
type Input struct {
	Values url.Values
	Upload *gateway.Upload
}

func (in Input) get(key string) string {
	if in.Values == nil {
		return ""
	}
	return in.Values.Get(key)
}

type Session struct {
	ID string

	backend Backend
	store   *state.Store
	subs    *subscription.Manager
	toasts  *notify.Center
	opts    view.Options
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// renderMu keeps frames in render order
	renderMu sync.Mutex

	mu       sync.Mutex
	frame    view.Frame
	version  uint64
	changed  chan struct{}
	token    string
	lastSeen time.Time
	closed   bool
}

func New(id string, d Deps) *Session {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       id,
		backend:  d.Backend,
		opts:     view.Options{Federated: d.Federated},
		now:      now,
		ctx:      ctx,
		cancel:   cancel,
		changed:  make(chan struct{}),
		lastSeen: now(),
	}
	s.store = state.New(s.redraw)
	s.toasts = notify.NewCenter(d.ToastTTL, s.redraw)
	s.subs = subscription.NewManager(ctx, d.Source, d.Bus, s.store)
	s.redraw()
	return s
}

// redraw renders the full view and wakes every watcher.
func (s *Session) redraw() {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	f, err := view.Render(s.store.Snapshot(), s.toasts.Active(), s.now(), s.opts)
	if err != nil {
		log.Printf("[session] %s render: %v", s.ID, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.frame = f
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
}

// Frame returns the current frame and its version.
func (s *Session) Frame() (view.Frame, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	return s.frame, s.version
}

// Wait blocks until a frame newer than since exists.
func (s *Session) Wait(ctx context.Context, since uint64) (view.Frame, uint64, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return view.Frame{}, 0, ErrClosed
		}
		if s.version > since {
			f, v := s.frame, s.version
			s.lastSeen = s.now()
			s.mu.Unlock()
			return f, v, nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return view.Frame{}, 0, ctx.Err()
		}
	}
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Token is the signed-in session token, empty when signed out.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) UserID() string { return s.store.ViewerID() }

func (s *Session) State() state.State { return s.store.Snapshot() }

// Subscriptions lists the attached subscription keys.
func (s *Session) Subscriptions() []string { return s.subs.Active() }

func (s *Session) Notify(text string) { s.toasts.Show(text) }

func (s *Session) Alert(text string) { s.toasts.Error(text) }

func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.changed)
	s.mu.Unlock()

	s.toasts.Close()
	s.cancel()
	s.subs.Close()
}

// Dispatch runs the action bound to bindID in the current frame.
func (s *Session) Dispatch(ctx context.Context, bindID string, in Input) error {
	s.mu.Lock()
	a, ok := s.frame.Bindings[bindID]
	s.lastSeen = s.now()
	s.mu.Unlock()
	if !ok {
		return ErrUnknownBinding
	}

	switch a.Kind {
	case view.ActNavigate:
		s.Navigate(a.Route)
	case view.ActAuth:
		if in.get("action") == "signup" {
			s.SignUp(ctx, in.get("email"), in.get("password"), in.get("displayName"))
		} else {
			s.SignIn(ctx, in.get("email"), in.get("password"))
		}
	case view.ActSignOut:
		s.SignOut(ctx)
	case view.ActCreatePost:
		s.CreatePost(ctx, in.get("text"), in.Upload)
	case view.ActDeletePost:
		s.DeletePost(ctx, a.PostID)
	case view.ActReportPost:
		s.ReportPost(ctx, a.PostID, in.get("reason"))
	case view.ActToggleReaction:
		s.ToggleReaction(ctx, a.PostID, a.Emoji)
	case view.ActAddComment:
		s.AddComment(ctx, a.PostID, in.get("content"))
	case view.ActSendMessage:
		s.SendMessage(ctx, in.get("content"))
	case view.ActSetReply:
		s.SetReply(a.Message)
	case view.ActClearReply:
		s.store.ClearReply()
	case view.ActOpenProfile:
		s.Navigate(view.Route{Name: view.RouteProfile, Profile: a.UserID}.String())
	case view.ActDismissToast:
		s.toasts.Dismiss(a.Toast)
	default:
		return ErrUnknownBinding
	}
	return nil
}

func (s *Session) fail(op string, err error, fallback string) {
	log.Printf("[session] %s %s: %v", s.ID, op, err)
	s.toasts.Error(gateway.Message(err, fallback))
}

// Navigate switches route. Chat attaches the room's subscription and any other
// route detaches it; a foreign profile starts loading into the profile cache.
func (s *Session) Navigate(token string) {
	r := view.ParseRoute(token)
	if r.Name != view.RouteChat {
		s.subs.DetachChat()
	} else if r.Room != "" && r.Room != s.store.Room() {
		// the old room's listener must not outlive the switch
		s.subs.DetachChat()
		s.store.SetChatRoom(r.Room)
	}
	s.store.SetRoute(r.String())

	id, signedIn := s.store.User()
	if !signedIn {
		return
	}
	switch r.Name {
	case view.RouteChat:
		s.subs.AttachChat(s.store.Room())
	case view.RouteProfile:
		if uid := r.ProfileOf(id.UID); uid != id.UID {
			s.loadProfile(uid)
		}
	}
}

func (s *Session) loadProfile(uid string) {
	if !s.store.MarkProfileLoading(uid) {
		return
	}
	go func() {
		u, err := s.backend.GetProfile(s.ctx, uid)
		if err != nil {
			s.store.DropProfile(uid)
			if s.ctx.Err() != nil {
				return
			}
			s.fail("load profile", err, "Failed to load profile")
			s.store.SetRoute(view.RouteFeed)
			return
		}
		s.store.PutProfile(*u)
	}()
}

// Resume restores a signed-in identity, e.g. after a page reload.
func (s *Session) Resume(ctx context.Context, id auth.Identity, token string) {
	if err := s.backend.EnsureProfile(ctx, id); err != nil {
		log.Printf("[session] %s ensure profile: %v", s.ID, err)
	}
	s.establish(id, token)
}

// establish switches identity: every subscription of the previous scope is
// detached before the feed (and chat, when showing) is attached.
func (s *Session) establish(id auth.Identity, token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	s.subs.DetachAll()
	s.store.SetUser(id)
	s.subs.AttachFeed()
	if view.ParseRoute(s.store.Route()).Name == view.RouteChat {
		s.subs.AttachChat(s.store.Room())
	}
}

func (s *Session) SignIn(ctx context.Context, email, password string) {
	s.store.SetLoading(true)
	defer s.store.SetLoading(false)
	id, tok, err := s.backend.SignIn(ctx, email, password)
	if err != nil {
		s.fail("sign in", err, "Auth error")
		return
	}
	s.establish(id, tok)
	if view.ParseRoute(s.store.Route()).Name == view.RouteLogin {
		s.store.SetRoute(view.RouteFeed)
	}
	s.toasts.Show("Signed in")
}

func (s *Session) SignUp(ctx context.Context, email, password, displayName string) {
	s.store.SetLoading(true)
	defer s.store.SetLoading(false)
	id, tok, err := s.backend.SignUp(ctx, email, password, strings.TrimSpace(displayName))
	if err != nil {
		s.fail("sign up", err, "Auth error")
		return
	}
	s.establish(id, tok)
	if view.ParseRoute(s.store.Route()).Name == view.RouteLogin {
		s.store.SetRoute(view.RouteFeed)
	}
	s.toasts.Show("Account created")
}

func (s *Session) CompleteFederated(ctx context.Context, code string) {
	s.store.SetLoading(true)
	defer s.store.SetLoading(false)
	id, tok, err := s.backend.CompleteFederated(ctx, code)
	if err != nil {
		log.Printf("[session] %s federated: %v", s.ID, err)
		s.toasts.Error("Google sign-in failed")
		return
	}
	s.establish(id, tok)
	s.store.SetRoute(view.RouteFeed)
	s.toasts.Show("Signed in with Google")
}

func (s *Session) SignOut(ctx context.Context) {
	if err := s.backend.SignOut(ctx, s.Token()); err != nil {
		s.fail("sign out", err, "Failed to sign out")
		return
	}
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	s.subs.DetachAll()
	s.store.ClearUser()
	s.toasts.Show("Signed out")
}

func (s *Session) CreatePost(ctx context.Context, text string, img *gateway.Upload) {
	id, ok := s.store.User()
	if !ok {
		s.toasts.Error("Please sign in")
		return
	}
	s.store.SetLoading(true)
	defer s.store.SetLoading(false)
	if _, err := s.backend.CreatePost(ctx, id, text, img); err != nil {
		s.fail("create post", err, "Failed to create post")
		return
	}
	s.toasts.Show("Post created")
}

func (s *Session) DeletePost(ctx context.Context, postID string) {
	id, ok := s.store.User()
	if !ok {
		return
	}
	var known *docstore.Post
	if p, ok := s.store.Post(postID); ok {
		known = &p
	}
	if err := s.backend.DeletePost(ctx, id, postID, known); err != nil {
		s.fail("delete post", err, "Failed to delete")
		return
	}
	s.toasts.Show("Post deleted")
}

func (s *Session) ReportPost(ctx context.Context, postID, reason string) {
	id, ok := s.store.User()
	if !ok {
		s.toasts.Error("Please sign in")
		return
	}
	if err := s.backend.ReportPost(ctx, id, postID, reason); err != nil {
		s.fail("report post", err, "Failed to report")
		return
	}
	s.toasts.Show("Post reported, thank you")
}

func (s *Session) ToggleReaction(ctx context.Context, postID, kind string) {
	id, ok := s.store.User()
	if !ok {
		s.toasts.Error("Please sign in")
		return
	}
	if _, err := s.backend.ToggleReaction(ctx, id, postID, kind); err != nil {
		s.fail("toggle reaction", err, "Failed to react")
	}
}

func (s *Session) AddComment(ctx context.Context, postID, content string) {
	id, ok := s.store.User()
	if !ok || strings.TrimSpace(content) == "" {
		return
	}
	if _, err := s.backend.AddComment(ctx, id, postID, content); err != nil {
		s.fail("add comment", err, "Failed to add comment")
		return
	}
	s.toasts.Show("Comment added")
}

func (s *Session) SendMessage(ctx context.Context, content string) {
	id, ok := s.store.User()
	if !ok || strings.TrimSpace(content) == "" {
		return
	}
	st := s.store.Snapshot()
	if _, err := s.backend.SendMessage(ctx, id, st.Room, content, st.ReplyTo); err != nil {
		s.fail("send message", err, "Failed to send")
		return
	}
	s.store.ClearReply()
}

// SetReply quotes a message of the current room in the composer.
func (s *Session) SetReply(messageID string) {
	m, ok := s.store.Message(messageID)
	if !ok {
		return
	}
	s.store.SetReplyTo(docstore.ReplyRef{ID: m.ID, Content: m.Content, SenderName: m.SenderName})
}
