package subscription

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"glassy-social/internal/auth"
	"glassy-social/internal/docstore"
	"glassy-social/internal/realtime"
	"glassy-social/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T) *docstore.Memory {
	t.Helper()
	ctx := context.Background()
	m := docstore.NewMemory()
	require.NoError(t, m.CreatePost(ctx, &docstore.Post{ID: "p1", AuthorID: "ana", Text: "hello", CreatedAt: t0}))
	require.NoError(t, m.CreatePost(ctx, &docstore.Post{ID: "p2", AuthorID: "bob", Text: "hi", CreatedAt: t0.Add(time.Minute)}))
	require.NoError(t, m.PutReaction(ctx, &docstore.Reaction{PostID: "p1", UserID: "bob", Kind: "❤"}))
	require.NoError(t, m.PutReaction(ctx, &docstore.Reaction{PostID: "p1", UserID: "ana", Kind: "👍"}))
	require.NoError(t, m.CreateComment(ctx, &docstore.Comment{ID: "c1", PostID: "p1", Content: "nice!", CreatedAt: t0}))
	require.NoError(t, m.CreateMessage(ctx, &docstore.ChatMessage{ID: "m1", RoomID: "general", Content: "yo", Timestamp: t0}))
	return m
}

func settled(st *state.Store) bool {
	s := st.Snapshot()
	return len(s.Posts) == 2 && len(s.Reactions) == 2 && len(s.Comments) == 2
}

func newSession(t *testing.T, src Source, bus realtime.Bus) (*state.Store, *Manager) {
	t.Helper()
	st := state.New(nil)
	st.SetUser(auth.Identity{UID: "ana"})
	m := NewManager(context.Background(), src, bus, st)
	t.Cleanup(m.Close)
	return st, m
}

func TestFeedAttachesPerPostSubscriptions(t *testing.T) {
	st, m := newSession(t, seed(t), realtime.NewLocalBus())
	m.AttachFeed()

	require.Eventually(t, func() bool { return settled(st) }, time.Second, 5*time.Millisecond)
	s := st.Snapshot()
	assert.Equal(t, "p2", s.Posts[0].ID, "newest first")
	assert.Equal(t, map[string]int{"❤": 1, "👍": 1}, s.Reactions["p1"].Counts)
	assert.Equal(t, "👍", s.Reactions["p1"].Mine)
	assert.Len(t, s.Comments["p1"], 1)

	assert.Eventually(t, func() bool {
		return reflect.DeepEqual(m.Active(), []string{"comments:p1", "comments:p2", "feed", "reactions:p1", "reactions:p2"})
	}, time.Second, 5*time.Millisecond)
}

func TestSignalTriggersReload(t *testing.T) {
	ctx := context.Background()
	src := seed(t)
	bus := realtime.NewLocalBus()
	st, m := newSession(t, src, bus)
	m.AttachChat("")
	require.Eventually(t, func() bool { return len(st.Snapshot().Messages) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, src.CreateMessage(ctx, &docstore.ChatMessage{ID: "m2", RoomID: "general", Content: "sup", Timestamp: t0.Add(time.Second)}))
	require.NoError(t, bus.Publish(ctx, realtime.Chat("general")))

	assert.Eventually(t, func() bool {
		msgs := st.Snapshot().Messages
		return len(msgs) == 2 && msgs[1].ID == "m2"
	}, time.Second, 5*time.Millisecond)
}

func TestDetachThenReattachMatchesFreshAttach(t *testing.T) {
	src := seed(t)
	bus := realtime.NewLocalBus()

	a, ma := newSession(t, src, bus)
	ma.AttachFeed()
	require.Eventually(t, func() bool { return settled(a) }, time.Second, 5*time.Millisecond)
	ma.DetachAll()
	assert.Empty(t, ma.Active())
	ma.AttachFeed()

	b, mb := newSession(t, src, bus)
	mb.AttachFeed()

	assert.Eventually(t, func() bool {
		return settled(a) && settled(b) && reflect.DeepEqual(a.Snapshot(), b.Snapshot())
	}, time.Second, 5*time.Millisecond)
}

func TestDetachAllReleasesBusSubscriptions(t *testing.T) {
	bus := realtime.NewLocalBus()
	st, m := newSession(t, seed(t), bus)
	m.AttachFeed()
	m.AttachFeed()
	m.AttachChat("general")
	require.Eventually(t, func() bool { return settled(st) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, bus.Subscribers(realtime.Feed()))

	m.DetachAll()
	assert.Eventually(t, func() bool {
		return bus.Subscribers(realtime.Feed()) == 0 && bus.Subscribers(realtime.Chat("general")) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestFeedFollowStepsRunInSnapshotOrder(t *testing.T) {
	ctx := context.Background()
	src := seed(t)
	bus := realtime.NewLocalBus()
	st, m := newSession(t, src, bus)
	m.AttachFeed()
	require.Eventually(t, func() bool { return settled(st) }, time.Second, 5*time.Millisecond)

	want := []string{"feed"}
	for _, id := range []string{"p1", "p2"} {
		want = append(want, "comments:"+id, "reactions:"+id)
	}
	for i := 3; i <= 12; i++ {
		id := fmt.Sprintf("p%d", i)
		require.NoError(t, src.CreatePost(ctx, &docstore.Post{ID: id, AuthorID: "bob", CreatedAt: t0.Add(time.Duration(i) * time.Minute)}))
		require.NoError(t, bus.Publish(ctx, realtime.Feed()))
		want = append(want, "comments:"+id, "reactions:"+id)
	}
	sort.Strings(want)

	assert.Eventually(t, func() bool {
		return len(st.Snapshot().Posts) == 12 && reflect.DeepEqual(m.Active(), want)
	}, 2*time.Second, 5*time.Millisecond)
	// no late follow step from an older snapshot may drop the newest posts
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, want, m.Active())
}

func TestAfterHookRunsOnceAppliedOutsideLock(t *testing.T) {
	_, m := newSession(t, seed(t), realtime.NewLocalBus())
	var got []string
	load := func(context.Context) (func(), func(), error) {
		return func() { got = append(got, "apply") },
			func() {
				m.Active() // takes the lock
				got = append(got, "after")
			}, nil
	}

	m.deliver(context.Background(), m.current(), "feed", load)
	assert.Equal(t, []string{"apply", "after"}, got)

	got = nil
	stale := m.current()
	m.DetachAll()
	m.deliver(context.Background(), stale, "feed", load)
	assert.Empty(t, got)
}

type failingSource struct{ *docstore.Memory }

func (failingSource) RecentPosts(context.Context, int) ([]docstore.Post, error) {
	return nil, errors.New("db down")
}

func TestLoadFailureIsNotFatal(t *testing.T) {
	st, m := newSession(t, failingSource{seed(t)}, realtime.NewLocalBus())
	m.AttachFeed()
	m.AttachChat("general")

	require.Eventually(t, func() bool { return len(st.Snapshot().Messages) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, st.Snapshot().Posts)
	assert.Contains(t, m.Active(), "feed")
}

func TestSummarize(t *testing.T) {
	list := []docstore.Reaction{{UserID: "a", Kind: "😂"}, {UserID: "b", Kind: "😂"}, {UserID: "c", Kind: "😮"}}
	sum := Summarize(list, "c")
	assert.Equal(t, 2, sum.Counts["😂"])
	assert.Equal(t, "😮", sum.Mine)
	assert.Empty(t, Summarize(list, "").Mine)
}
