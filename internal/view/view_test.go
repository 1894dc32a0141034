package view

import (
	"strings"
	"testing"
	"time"

	"glassy-social/internal/auth"
	"glassy-social/internal/docstore"
	"glassy-social/internal/notify"
	"glassy-social/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func signedIn(route string) state.State {
	st := state.New(nil)
	st.SetUser(auth.Identity{UID: "ana", DisplayName: "Ana"})
	st.SetRoute(route)
	st.SetPosts([]docstore.Post{
		{ID: "p2", AuthorID: "bob", AuthorName: "Bob", Text: "hi <b>there</b>", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "p1", AuthorID: "ana", AuthorName: "Ana", Text: "hello", ReactionsCount: 1, CreatedAt: now.Add(-3 * time.Hour)},
	})
	st.SetReactions("p1", state.ReactionSummary{Counts: map[string]int{"❤": 1}, Mine: "❤"})
	st.SetComments("p1", []docstore.Comment{{ID: "c1", AuthorName: "Bob", Content: "nice!", CreatedAt: now.Add(-time.Minute)}})
	return st.Snapshot()
}

func TestParseRoute(t *testing.T) {
	assert.Equal(t, Route{Name: RouteFeed}, ParseRoute("feed"))
	assert.Equal(t, Route{Name: RouteChat}, ParseRoute("#chat"))
	assert.Equal(t, Route{Name: RouteChat, Room: "random"}, ParseRoute("chat:random"))
	assert.Equal(t, "chat:random", ParseRoute("#chat:random").String())
	assert.Equal(t, Route{Name: RouteProfile, Profile: "42"}, ParseRoute("profile:42"))
	assert.Equal(t, Route{Name: RouteFeed}, ParseRoute("settings"))
	assert.Equal(t, "profile:42", ParseRoute("profile:42").String())
	assert.Equal(t, "ana", ParseRoute("profile").ProfileOf("ana"))
}

func TestRenderIsPure(t *testing.T) {
	s := signedIn("feed")
	toasts := []notify.Toast{{ID: 3, Text: "Post created"}}

	a, err := Render(s, toasts, now, Options{})
	require.NoError(t, err)
	b, err := Render(s, toasts, now, Options{})
	require.NoError(t, err)

	assert.Equal(t, a.HTML, b.HTML)
	assert.Equal(t, a.Bindings, b.Bindings)
}

func TestGateAndLogin(t *testing.T) {
	st := state.New(nil)
	f, err := Render(st.Snapshot(), nil, now, Options{})
	require.NoError(t, err)
	assert.Contains(t, f.HTML, "Please sign in to see the feed")
	assert.NotContains(t, f.HTML, "What&#39;s on your mind?")

	st.SetRoute("login")
	f, err = Render(st.Snapshot(), nil, now, Options{Federated: true})
	require.NoError(t, err)
	assert.Contains(t, f.HTML, "Welcome to Glassy Social")
	assert.Contains(t, f.HTML, "/auth/google/login")

	var auths int
	for _, a := range f.Bindings {
		if a.Kind == ActAuth {
			auths++
		}
	}
	assert.Equal(t, 1, auths)
}

func TestFeedBindings(t *testing.T) {
	f, err := Render(signedIn("feed"), nil, now, Options{})
	require.NoError(t, err)

	assert.Equal(t, Action{Kind: ActNavigate, Route: RouteFeed}, f.Bindings["b1"])
	assert.Equal(t, Action{Kind: ActSignOut}, f.Bindings["b4"])

	kinds := map[ActionKind][]Action{}
	for _, a := range f.Bindings {
		kinds[a.Kind] = append(kinds[a.Kind], a)
	}
	assert.Len(t, kinds[ActToggleReaction], 10)
	require.Len(t, kinds[ActDeletePost], 1)
	assert.Equal(t, "p1", kinds[ActDeletePost][0].PostID)
	require.Len(t, kinds[ActReportPost], 1)
	assert.Equal(t, "p2", kinds[ActReportPost][0].PostID)
	assert.Len(t, kinds[ActAddComment], 2)

	assert.Contains(t, f.HTML, `class="reaction-btn active">❤ <span class="ml-1 text-sm">1</span>`)
	assert.Contains(t, f.HTML, "hi &lt;b&gt;there&lt;/b&gt;")
	assert.Contains(t, f.HTML, "2 hours ago")
	assert.Less(t, strings.Index(f.HTML, "post-p2"), strings.Index(f.HTML, "post-p1"))
}

func TestEmptyFeed(t *testing.T) {
	st := state.New(nil)
	st.SetUser(auth.Identity{UID: "ana"})
	f, err := Render(st.Snapshot(), nil, now, Options{})
	require.NoError(t, err)
	assert.Contains(t, f.HTML, "No posts yet")
}

func TestChat(t *testing.T) {
	st := state.New(nil)
	st.SetUser(auth.Identity{UID: "ana", DisplayName: "Ana"})
	st.SetRoute("chat")
	st.SetChatMessages(state.DefaultRoom, []docstore.ChatMessage{
		{ID: "m1", SenderID: "bob", SenderName: "Bob", Content: "yo"},
		{ID: "m2", SenderID: "ana", SenderName: "Ana", Content: "hey", ReplyTo: &docstore.ReplyRef{ID: "m1", Content: "yo", SenderName: "Bob"}},
	})
	st.SetReplyTo(docstore.ReplyRef{ID: "m1", Content: "yo", SenderName: "Bob"})

	f, err := Render(st.Snapshot(), nil, now, Options{})
	require.NoError(t, err)
	assert.Contains(t, f.HTML, "2 messages")
	assert.Contains(t, f.HTML, `class="message own"`)
	assert.Contains(t, f.HTML, `class="message other"`)
	assert.Contains(t, f.HTML, "Replying to Bob: yo")
	assert.Contains(t, f.HTML, ">now<", "zero timestamps render as now")

	var replies, clears int
	for _, a := range f.Bindings {
		switch a.Kind {
		case ActSetReply:
			replies++
			assert.Equal(t, "m1", a.Message)
		case ActClearReply:
			clears++
		}
	}
	assert.Equal(t, 1, replies, "only other people's messages get a reply button")
	assert.Equal(t, 1, clears)
}

func TestForeignProfile(t *testing.T) {
	st := state.New(nil)
	st.SetUser(auth.Identity{UID: "ana"})
	st.SetRoute("profile:bob")

	f, err := Render(st.Snapshot(), nil, now, Options{})
	require.NoError(t, err)
	assert.Contains(t, f.HTML, "Loading profile...")

	st.PutProfile(docstore.User{ID: "bob", Name: "Bob", Bio: "New to Glassy Social! 🌟", PostsCount: 3})
	f, err = Render(st.Snapshot(), nil, now, Options{})
	require.NoError(t, err)
	assert.Contains(t, f.HTML, "<h2 class=\"text-xl font-semibold\">Bob</h2>")
	assert.Contains(t, f.HTML, "3 posts")
}

func TestToastsAreBound(t *testing.T) {
	f, err := Render(state.New(nil).Snapshot(), []notify.Toast{{ID: 7, Text: "Signed out"}, {ID: 8, Text: "Failed", Level: notify.LevelError}}, now, Options{})
	require.NoError(t, err)
	assert.Contains(t, f.HTML, "Signed out")
	assert.Contains(t, f.HTML, `class="notification error"`)
	assert.Equal(t, Action{Kind: ActDismissToast, Toast: 7}, f.Bindings["b2"])
}
