// Package view renders a session's state to markup plus an event-binding table.
package view

import (
	"bytes"
	"embed"
	"html/template"
	"strconv"
	"time"

	"glassy-social/internal/auth"
	"glassy-social/internal/docstore"
	"glassy-social/internal/gateway"
	"glassy-social/internal/metrics"
	"glassy-social/internal/notify"
	"glassy-social/internal/state"

	"github.com/dustin/go-humanize"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type binder struct {
	n     int
	table map[string]Action
}

func (b *binder) bind(a Action) string {
	b.n++
	id := "b" + strconv.Itoa(b.n)
	b.table[id] = a
	return id
}

type navVM struct {
	SignedIn   bool
	Active     string
	Feed       string
	Chat       string
	Profile    string
	Logout     string
	GetStarted string
}

type toastVM struct {
	Text    string
	Error   bool
	Dismiss string
}

type loginVM struct {
	Form    string
	Google  bool
	Loading bool
}

type composerVM struct {
	Avatar  string
	Form    string
	Loading bool
}

type reactionVM struct {
	Emoji  string
	Count  int
	Active bool
	Bind   string
}

type commentVM struct {
	AuthorName   string
	AuthorAvatar string
	Time         string
	Content      string
}

type postVM struct {
	ID             string
	AuthorName     string
	AuthorAvatar   string
	Time           string
	Text           string
	ImageURL       string
	Own            bool
	OpenAuthor     string
	Delete         string
	Report         string
	Reactions      []reactionVM
	ReactionsCount int64
	CommentsCount  int64
	Comments       []commentVM
	CommentForm    string
	ViewerAvatar   string
}

type messageVM struct {
	Own        bool
	ReplyTo    *docstore.ReplyRef
	SenderName string
	Content    string
	Time       string
	Reply      string
}

type chatVM struct {
	Room       string
	Count      int
	Back       string
	Messages   []messageVM
	ReplyTo    *docstore.ReplyRef
	ClearReply string
	Form       string
}

type profileVM struct {
	Loading    bool
	Own        bool
	Avatar     string
	Name       string
	Email      string
	Bio        string
	PostsCount int64
	Posts      []postVM
}

type pageVM struct {
	Nav      navVM
	Toasts   []toastVM
	Screen   string
	Gate     string
	Login    loginVM
	Composer composerVM
	Posts    []postVM
	Chat     chatVM
	Profile  profileVM
}

// Options carries render inputs that are not session state.
type Options struct {
	// Federated shows the "Continue with Google" button.
	Federated bool
}

// Render produces the full view. It is pure: identical inputs give
// byte-identical markup and an identical binding table.
func Render(s state.State, toasts []notify.Toast, now time.Time, opts Options) (Frame, error) {
	b := &binder{table: map[string]Action{}}
	vm := build(b, s, toasts, now, opts)

	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, "page", vm); err != nil {
		return Frame{}, err
	}
	metrics.Renders.Inc()
	return Frame{HTML: buf.String(), Bindings: b.table, Route: ParseRoute(s.Route).String()}, nil
}

func build(b *binder, s state.State, toasts []notify.Toast, now time.Time, opts Options) pageVM {
	route := ParseRoute(s.Route)
	vm := pageVM{}

	vm.Nav = navVM{SignedIn: s.User != nil, Active: route.Name}
	if s.User != nil {
		vm.Nav.Feed = b.bind(Action{Kind: ActNavigate, Route: RouteFeed})
		vm.Nav.Chat = b.bind(Action{Kind: ActNavigate, Route: RouteChat})
		vm.Nav.Profile = b.bind(Action{Kind: ActNavigate, Route: Route{Name: RouteProfile, Profile: s.User.UID}.String()})
		vm.Nav.Logout = b.bind(Action{Kind: ActSignOut})
	} else {
		vm.Nav.GetStarted = b.bind(Action{Kind: ActNavigate, Route: RouteLogin})
	}

	for _, t := range toasts {
		vm.Toasts = append(vm.Toasts, toastVM{
			Text:    t.Text,
			Error:   t.Level == notify.LevelError,
			Dismiss: b.bind(Action{Kind: ActDismissToast, Toast: t.ID}),
		})
	}

	switch {
	case route.Name == RouteLogin:
		vm.Screen = "login"
		vm.Login = loginVM{Form: b.bind(Action{Kind: ActAuth}), Google: opts.Federated, Loading: s.Loading}
	case s.User == nil:
		vm.Screen = "gate"
		vm.Gate = b.bind(Action{Kind: ActNavigate, Route: RouteLogin})
	case route.Name == RouteChat:
		vm.Screen = "chat"
		vm.Chat = buildChat(b, s, now)
	case route.Name == RouteProfile:
		vm.Screen = "profile"
		vm.Profile = buildProfile(b, s, route.ProfileOf(s.User.UID), now)
	default:
		vm.Screen = "feed"
		vm.Composer = composerVM{
			Avatar:  avatar(s.User.PhotoURL, s.User.DisplayName),
			Form:    b.bind(Action{Kind: ActCreatePost}),
			Loading: s.Loading,
		}
		for _, p := range s.Posts {
			vm.Posts = append(vm.Posts, buildPost(b, s, p, now))
		}
	}
	return vm
}

func buildPost(b *binder, s state.State, p docstore.Post, now time.Time) postVM {
	viewer := viewerOf(s)
	vm := postVM{
		ID:             p.ID,
		AuthorName:     orUser(p.AuthorName),
		AuthorAvatar:   avatar(p.AuthorAvatar, p.AuthorName),
		Time:           when(p.CreatedAt, now),
		Text:           p.Text,
		ImageURL:       p.ImageURL,
		Own:            viewer.UID != "" && p.AuthorID == viewer.UID,
		ReactionsCount: p.ReactionsCount,
		CommentsCount:  p.CommentsCount,
		ViewerAvatar:   avatar(viewer.PhotoURL, viewer.DisplayName),
	}
	vm.OpenAuthor = b.bind(Action{Kind: ActOpenProfile, UserID: p.AuthorID})
	if vm.Own {
		vm.Delete = b.bind(Action{Kind: ActDeletePost, PostID: p.ID})
	} else {
		vm.Report = b.bind(Action{Kind: ActReportPost, PostID: p.ID})
	}

	sum := s.Reactions[p.ID]
	for _, k := range docstore.ReactionKinds {
		vm.Reactions = append(vm.Reactions, reactionVM{
			Emoji:  k,
			Count:  sum.Counts[k],
			Active: sum.Mine == k,
			Bind:   b.bind(Action{Kind: ActToggleReaction, PostID: p.ID, Emoji: k}),
		})
	}
	for _, c := range s.Comments[p.ID] {
		vm.Comments = append(vm.Comments, commentVM{
			AuthorName:   orUser(c.AuthorName),
			AuthorAvatar: avatar(c.AuthorAvatar, c.AuthorName),
			Time:         when(c.CreatedAt, now),
			Content:      c.Content,
		})
	}
	vm.CommentForm = b.bind(Action{Kind: ActAddComment, PostID: p.ID})
	return vm
}

func buildChat(b *binder, s state.State, now time.Time) chatVM {
	vm := chatVM{
		Room:  s.Room,
		Count: len(s.Messages),
		Back:  b.bind(Action{Kind: ActNavigate, Route: RouteFeed}),
	}
	for _, m := range s.Messages {
		own := m.SenderID == s.User.UID
		mv := messageVM{
			Own:        own,
			ReplyTo:    m.ReplyTo,
			SenderName: orUser(m.SenderName),
			Content:    m.Content,
			Time:       when(m.Timestamp, now),
		}
		if !own {
			mv.Reply = b.bind(Action{Kind: ActSetReply, Message: m.ID})
		}
		vm.Messages = append(vm.Messages, mv)
	}
	if s.ReplyTo != nil {
		vm.ReplyTo = s.ReplyTo
		vm.ClearReply = b.bind(Action{Kind: ActClearReply})
	}
	vm.Form = b.bind(Action{Kind: ActSendMessage})
	return vm
}

func buildProfile(b *binder, s state.State, uid string, now time.Time) profileVM {
	if uid == s.User.UID {
		vm := profileVM{
			Own:    true,
			Avatar: avatar(s.User.PhotoURL, s.User.DisplayName),
			Name:   orUser(s.User.DisplayName),
			Email:  s.User.Email,
		}
		for _, p := range s.Posts {
			if p.AuthorID == uid {
				vm.Posts = append(vm.Posts, buildPost(b, s, p, now))
			}
		}
		return vm
	}
	p, ok := s.Profiles[uid]
	if !ok || p.Status != state.ProfileReady || p.User == nil {
		return profileVM{Loading: true}
	}
	return profileVM{
		Avatar:     avatar(p.User.Avatar, p.User.Name),
		Name:       orUser(p.User.Name),
		Email:      p.User.Email,
		Bio:        p.User.Bio,
		PostsCount: p.User.PostsCount,
	}
}

func viewerOf(s state.State) auth.Identity {
	if s.User == nil {
		return auth.Identity{}
	}
	return *s.User
}

func orUser(name string) string {
	if name == "" {
		return "User"
	}
	return name
}

func avatar(url, name string) string {
	if url != "" {
		return url
	}
	return gateway.AvatarFor(name)
}

func when(t, now time.Time) string {
	if t.IsZero() {
		return "now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
