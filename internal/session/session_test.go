package session

import (
	"context"
	"net/url"
	"testing"
	"time"

	"glassy-social/internal/auth"
	"glassy-social/internal/docstore"
	"glassy-social/internal/gateway"
	"glassy-social/internal/realtime"
	"glassy-social/internal/shared/jwt"
	"glassy-social/internal/state"
	"glassy-social/internal/view"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

type blobs struct{}

func (blobs) Put(_ context.Context, key, _ string, _ []byte) (string, error) { return "/blobs/" + key, nil }
func (blobs) Remove(context.Context, string) error                        { return nil }

func newDeps(t *testing.T) (Deps, *docstore.Memory) {
	t.Helper()
	docs := docstore.NewMemory()
	bus := realtime.NewLocalBus()
	provider := auth.NewProvider(docs, jwt.NewSigner("test-secret", time.Hour), nil)
	gw := gateway.New(provider, docs, blobs{}, bus, nil)
	return Deps{Backend: gw, Source: docs, Bus: bus}, docs
}

func newSession(t *testing.T, d Deps, id string) *Session {
	t.Helper()
	s := New(id, d)
	t.Cleanup(s.Close)
	return s
}

func bindingFor(t *testing.T, s *Session, match func(view.Action) bool) string {
	t.Helper()
	f, _ := s.Frame()
	for id, a := range f.Bindings {
		if match(a) {
			return id
		}
	}
	t.Fatalf("no binding matches in frame")
	return ""
}

func toastTexts(s *Session) []string {
	var out []string
	for _, t := range s.toasts.Active() {
		out = append(out, t.Text)
	}
	return out
}

func TestSignedOutShowsGate(t *testing.T) {
	d, _ := newDeps(t)
	s := newSession(t, d, "s1")
	f, v := s.Frame()
	assert.Positive(t, v)
	assert.Contains(t, f.HTML, "Please sign in to see the feed")
	assert.Empty(t, s.Subscriptions())
}

func TestSignUpThroughBindings(t *testing.T) {
	d, docs := newDeps(t)
	ctx := context.Background()
	s := newSession(t, d, "s1")

	require.NoError(t, s.Dispatch(ctx, bindingFor(t, s, func(a view.Action) bool { return a.Kind == view.ActNavigate && a.Route == "login" }), Input{}))
	authForm := bindingFor(t, s, func(a view.Action) bool { return a.Kind == view.ActAuth })
	require.NoError(t, s.Dispatch(ctx, authForm, Input{Values: url.Values{
		"action": {"signup"}, "email": {"Ana@Example.com"}, "password": {"secret1"}, "displayName": {"Ana"},
	}}))

	st := s.State()
	require.NotNil(t, st.User)
	assert.Equal(t, "ana@example.com", st.User.Email)
	assert.Equal(t, "feed", st.Route)
	assert.False(t, st.Loading)
	assert.NotEmpty(t, s.Token())
	assert.Contains(t, toastTexts(s), "Account created")

	u, err := docs.GetUser(ctx, st.User.UID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.Name)
	assert.Contains(t, s.Subscriptions(), "feed")

	assert.ErrorIs(t, s.Dispatch(ctx, "b999", Input{}), ErrUnknownBinding)
}

func TestWrongPasswordToasts(t *testing.T) {
	d, _ := newDeps(t)
	s := newSession(t, d, "s1")
	s.SignUp(context.Background(), "a@x.io", "secret1", "")
	s.SignOut(context.Background())
	assert.Nil(t, s.State().User)
	assert.Contains(t, toastTexts(s), "Signed out")
	assert.Empty(t, s.Subscriptions())

	s.SignIn(context.Background(), "a@x.io", "nope")
	assert.Nil(t, s.State().User)
	assert.Contains(t, toastTexts(s), "wrong email or password")
}

func TestTwoSessionScenario(t *testing.T) {
	d, docs := newDeps(t)
	ctx := context.Background()
	a := newSession(t, d, "a")
	b := newSession(t, d, "b")
	a.SignUp(ctx, "a@x.io", "secret1", "Ana")
	b.SignUp(ctx, "b@x.io", "secret1", "Bob")

	a.CreatePost(ctx, "hello", nil)
	assert.Contains(t, toastTexts(a), "Post created")

	var postID string
	require.Eventually(t, func() bool {
		st := b.State()
		if len(st.Posts) != 1 {
			return false
		}
		postID = st.Posts[0].ID
		_, ok := st.Reactions[postID]
		return ok
	}, wait, 5*time.Millisecond)
	p := b.State().Posts[0]
	assert.Zero(t, p.ReactionsCount)
	assert.Zero(t, p.CommentsCount)

	b.ToggleReaction(ctx, postID, "❤")
	require.Eventually(t, func() bool {
		st := b.State()
		sum := st.Reactions[postID]
		return sum.Counts["❤"] == 1 && sum.Mine == "❤" && st.Posts[0].ReactionsCount == 1
	}, wait, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		sum := a.State().Reactions[postID]
		return sum.Counts["❤"] == 1 && sum.Mine == ""
	}, wait, 5*time.Millisecond)

	b.ToggleReaction(ctx, postID, "❤")
	require.Eventually(t, func() bool {
		st := b.State()
		return st.Reactions[postID].Counts["❤"] == 0 && st.Reactions[postID].Mine == "" && st.Posts[0].ReactionsCount == 0
	}, wait, 5*time.Millisecond)

	b.AddComment(ctx, postID, "nice!")
	require.Eventually(t, func() bool {
		st := a.State()
		return len(st.Comments[postID]) == 1 && st.Posts[0].CommentsCount == 1
	}, wait, 5*time.Millisecond)

	b.DeletePost(ctx, postID)
	assert.Contains(t, toastTexts(b), "Not authorized")
	_, err := docs.GetPost(ctx, postID)
	assert.NoError(t, err)

	a.DeletePost(ctx, postID)
	assert.Contains(t, toastTexts(a), "Post deleted")
	assert.Eventually(t, func() bool { return len(b.State().Posts) == 0 }, wait, 5*time.Millisecond)
}

func TestChatReplyFlow(t *testing.T) {
	d, _ := newDeps(t)
	ctx := context.Background()
	a := newSession(t, d, "a")
	b := newSession(t, d, "b")
	a.SignUp(ctx, "a@x.io", "secret1", "Ana")
	b.SignUp(ctx, "b@x.io", "secret1", "Bob")
	a.Navigate("chat")
	b.Navigate("chat")
	assert.Contains(t, a.Subscriptions(), "chat:general")

	a.SendMessage(ctx, "yo")
	require.Eventually(t, func() bool { return len(b.State().Messages) == 1 }, wait, 5*time.Millisecond)

	b.SetReply(b.State().Messages[0].ID)
	require.NotNil(t, b.State().ReplyTo)
	b.SendMessage(ctx, "hey")
	assert.Nil(t, b.State().ReplyTo)

	require.Eventually(t, func() bool {
		msgs := a.State().Messages
		return len(msgs) == 2 && msgs[1].ReplyTo != nil && msgs[1].ReplyTo.Content == "yo"
	}, wait, 5*time.Millisecond)
}

func TestLeavingChatDetachesItsSubscription(t *testing.T) {
	d, _ := newDeps(t)
	ctx := context.Background()
	a := newSession(t, d, "a")
	a.SignUp(ctx, "a@x.io", "secret1", "Ana")

	a.Navigate("chat")
	assert.Contains(t, a.Subscriptions(), "chat:general")
	a.Navigate("feed")
	assert.NotContains(t, a.Subscriptions(), "chat:general")
	assert.Contains(t, a.Subscriptions(), "feed")

	a.Navigate("chat")
	a.SendMessage(ctx, "in general")
	require.Eventually(t, func() bool { return len(a.State().Messages) == 1 }, wait, 5*time.Millisecond)

	a.Navigate("chat:random")
	st := a.State()
	assert.Equal(t, "random", st.Room)
	assert.Empty(t, st.Messages)
	assert.Equal(t, "chat:random", st.Route)
	assert.Contains(t, a.Subscriptions(), "chat:random")
	assert.NotContains(t, a.Subscriptions(), "chat:general")
}

func TestForeignProfileLoadsIntoCache(t *testing.T) {
	d, _ := newDeps(t)
	ctx := context.Background()
	a := newSession(t, d, "a")
	b := newSession(t, d, "b")
	a.SignUp(ctx, "a@x.io", "secret1", "Ana")
	b.SignUp(ctx, "b@x.io", "secret1", "Bob")

	a.Navigate("profile:" + b.UserID())
	require.Eventually(t, func() bool {
		p, ok := a.State().Profiles[b.UserID()]
		return ok && p.Status == state.ProfileReady
	}, wait, 5*time.Millisecond)
	f, _ := a.Frame()
	assert.Contains(t, f.HTML, "Bob")

	a.Navigate("profile:ghost")
	require.Eventually(t, func() bool { return a.State().Route == "feed" }, wait, 5*time.Millisecond)
	assert.Contains(t, toastTexts(a), "User not found")
}

func TestWaitWakesOnChange(t *testing.T) {
	d, _ := newDeps(t)
	s := newSession(t, d, "s1")
	_, v := s.Frame()

	done := make(chan uint64, 1)
	go func() {
		_, nv, err := s.Wait(context.Background(), v)
		if err == nil {
			done <- nv
		}
	}()
	s.Navigate("login")
	select {
	case nv := <-done:
		assert.Greater(t, nv, v)
	case <-time.After(wait):
		t.Fatal("watcher was not woken")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, cur := s.Frame()
	_, _, err := s.Wait(ctx, cur)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHubDeliverAndSweep(t *testing.T) {
	d, _ := newDeps(t)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.Now = func() time.Time { return clock }
	h := NewHub(d, time.Minute)
	t.Cleanup(h.CloseAll)

	a := h.Create()
	b := h.Create()
	a.SignUp(context.Background(), "a@x.io", "secret1", "Ana")

	assert.Equal(t, 1, h.DeliverToUser(a.UserID(), "Bob reacted ❤ to your post"))
	assert.Contains(t, toastTexts(a), "Bob reacted ❤ to your post")
	assert.Equal(t, 2, h.Broadcast("Glassy Social"))

	clock = clock.Add(2 * time.Minute)
	a.Touch()
	assert.Equal(t, 1, h.Sweep())
	_, ok := h.Get(b.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, h.Len())
}
