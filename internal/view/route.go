package view

import "strings"

const (
	RouteFeed    = "feed"
	RouteChat    = "chat"
	RouteLogin   = "login"
	RouteProfile = "profile"
)

// Route is a parsed route token. Profile is set only for "profile:<id>",
// Room only for "chat:<room>".
type Route struct {
	Name    string
	Profile string
	Room    string
}

// ParseRoute reads a token such as "feed", "chat:random" or "profile:42".
// Unknown tokens become the feed.
func ParseRoute(token string) Route {
	token = strings.TrimPrefix(strings.TrimSpace(token), "#")
	name, arg, _ := strings.Cut(token, ":")
	switch name {
	case RouteFeed, RouteLogin:
		return Route{Name: name}
	case RouteChat:
		return Route{Name: RouteChat, Room: arg}
	case RouteProfile:
		return Route{Name: RouteProfile, Profile: arg}
	default:
		return Route{Name: RouteFeed}
	}
}

func (r Route) String() string {
	if r.Name == RouteProfile && r.Profile != "" {
		return RouteProfile + ":" + r.Profile
	}
	if r.Name == RouteChat && r.Room != "" {
		return RouteChat + ":" + r.Room
	}
	if r.Name == "" {
		return RouteFeed
	}
	return r.Name
}

// ProfileOf is the profile shown for r, resolving the bare "profile" token to viewer.
func (r Route) ProfileOf(viewer string) string {
	if r.Profile != "" {
		return r.Profile
	}
	return viewer
}
