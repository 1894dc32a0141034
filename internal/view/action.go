package view

// ActionKind names what a bound element does when the user activates it.
type ActionKind string

const (
	ActNavigate       ActionKind = "navigate"
	ActAuth           ActionKind = "auth"
	ActSignOut        ActionKind = "sign_out"
	ActCreatePost     ActionKind = "create_post"
	ActDeletePost     ActionKind = "delete_post"
	ActReportPost     ActionKind = "report_post"
	ActToggleReaction ActionKind = "toggle_reaction"
	ActAddComment     ActionKind = "add_comment"
	ActSendMessage    ActionKind = "send_message"
	ActSetReply       ActionKind = "set_reply"
	ActClearReply     ActionKind = "clear_reply"
	ActOpenProfile    ActionKind = "open_profile"
	ActDismissToast   ActionKind = "dismiss_toast"
)

// Action is one entry of the binding table. Only the fields its kind needs are set.
type Action struct {
	Kind    ActionKind `json:"kind"`
	Route   string     `json:"route,omitempty"`
	PostID  string     `json:"postId,omitempty"`
	Emoji   string     `json:"emoji,omitempty"`
	UserID  string     `json:"userId,omitempty"`
	Message string     `json:"messageId,omitempty"`
	Toast   int        `json:"toast,omitempty"`
}

// Frame is one full render: markup plus the actions its elements are bound to.
type Frame struct {
	HTML     string
	Bindings map[string]Action
	// Route is the canonical token of the rendered route.
	Route string
}
