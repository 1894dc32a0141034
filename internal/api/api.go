// Package api is the JSON surface over the gateway for non-browser clients.
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"glassy-social/internal/auth"
	"glassy-social/internal/docstore"
	"glassy-social/internal/gateway"
	"glassy-social/internal/shared/httpx"
	"glassy-social/internal/state"
	"glassy-social/internal/subscription"
)

const maxUpload = 8 << 20

// Gateway is the write side used by the API.
type Gateway interface {
	SignIn(ctx context.Context, email, password string) (auth.Identity, string, error)
	SignUp(ctx context.Context, email, password, displayName string) (auth.Identity, string, error)
	SignOut(ctx context.Context, token string) error
	GetProfile(ctx context.Context, uid string) (*docstore.User, error)
	CreatePost(ctx context.Context, id auth.Identity, text string, img *gateway.Upload) (*docstore.Post, error)
	DeletePost(ctx context.Context, id auth.Identity, postID string, known *docstore.Post) error
	ReportPost(ctx context.Context, id auth.Identity, postID, reason string) error
	ToggleReaction(ctx context.Context, id auth.Identity, postID, kind string) (int, error)
	AddComment(ctx context.Context, id auth.Identity, postID, content string) (*docstore.Comment, error)
	SendMessage(ctx context.Context, id auth.Identity, room, content string, replyTo *docstore.ReplyRef) (*docstore.ChatMessage, error)
}

// Limiter guards write endpoints. *redisx.Client implements it.
type Limiter interface {
	LimitHTTP(limit int64, window time.Duration, keyFn func(*http.Request) (string, error), next http.Handler) http.Handler
	PutNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Handler struct {
	gw      Gateway
	reads   subscription.Source
	limiter Limiter
	limit   int64
	window  time.Duration
}

// New builds the API. limiter may be nil, which disables rate limiting and idempotency keys.
func New(gw Gateway, reads subscription.Source, limiter Limiter, limit int64, window time.Duration) *Handler {
	return &Handler{gw: gw, reads: reads, limiter: limiter, limit: limit, window: window}
}

// Register mounts the routes. protect wraps routes that need a bearer token.
func (h *Handler) Register(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	mux.Handle("POST /api/auth/signup", httpx.Wrap(h.SignUp))
	mux.Handle("POST /api/auth/token", httpx.Wrap(h.Token))
	mux.Handle("POST /api/auth/signout", protect(httpx.Wrap(h.SignOut)))

	mux.Handle("GET /api/profiles/{id}", protect(httpx.Wrap(h.Profile)))

	mux.Handle("GET /api/posts", protect(httpx.Wrap(h.ListPosts)))
	mux.Handle("POST /api/posts", protect(h.limited(httpx.Wrap(h.CreatePost))))
	mux.Handle("DELETE /api/posts/{id}", protect(h.limited(httpx.Wrap(h.DeletePost))))
	mux.Handle("POST /api/posts/{id}/report", protect(h.limited(httpx.Wrap(h.ReportPost))))
	mux.Handle("GET /api/posts/{id}/reactions", protect(httpx.Wrap(h.ListReactions)))
	mux.Handle("POST /api/posts/{id}/reactions", protect(h.limited(httpx.Wrap(h.ToggleReaction))))
	mux.Handle("GET /api/posts/{id}/comments", protect(httpx.Wrap(h.ListComments)))
	mux.Handle("POST /api/posts/{id}/comments", protect(h.limited(httpx.Wrap(h.AddComment))))

	mux.Handle("GET /api/chats/{room}/messages", protect(httpx.Wrap(h.ListMessages)))
	mux.Handle("POST /api/chats/{room}/messages", protect(h.limited(httpx.Wrap(h.SendMessage))))
}

func (h *Handler) limited(next http.Handler) http.Handler {
	if h.limiter == nil || h.limit <= 0 {
		return next
	}
	return h.limiter.LimitHTTP(h.limit, h.window, func(r *http.Request) (string, error) {
		uid, err := httpx.UserFromCtx(r)
		if err != nil {
			return "", err
		}
		return "user:" + uid, nil
	}, next)
}

// fail maps a gateway error to its HTTP status.
func fail(err error) error {
	msg := gateway.Message(err, "internal error")
	switch gateway.Classify(err) {
	case gateway.KindUnauthorized:
		return httpx.Status(http.StatusUnauthorized, "unauthorized", errors.New(msg))
	case gateway.KindNotFound:
		return httpx.Status(http.StatusNotFound, "not_found", errors.New(msg))
	case gateway.KindValidation:
		return httpx.Status(http.StatusBadRequest, "invalid", errors.New(msg))
	default:
		return httpx.Status(http.StatusInternalServerError, "backend_error", err)
	}
}

// identity loads the caller's profile as the author snapshot for writes.
func (h *Handler) identity(r *http.Request) (auth.Identity, error) {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return auth.Identity{}, err
	}
	u, err := h.gw.GetProfile(r.Context(), uid)
	if err != nil {
		return auth.Identity{}, fail(err)
	}
	return auth.Identity{UID: u.ID, DisplayName: u.Name, Email: u.Email, PhotoURL: u.Avatar}, nil
}

type credentialsReq struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type tokenResp struct {
	Token string        `json:"token"`
	User  auth.Identity `json:"user"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) error {
	req, err := httpx.Decode[credentialsReq](r)
	if err != nil {
		return err
	}
	id, tok, err := h.gw.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		return fail(err)
	}
	httpx.WriteJSON(w, tokenResp{Token: tok, User: id}, http.StatusCreated)
	return nil
}

func (h *Handler) Token(w http.ResponseWriter, r *http.Request) error {
	req, err := httpx.Decode[credentialsReq](r)
	if err != nil {
		return err
	}
	id, tok, err := h.gw.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		return fail(err)
	}
	httpx.WriteJSON(w, tokenResp{Token: tok, User: id}, http.StatusOK)
	return nil
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) error {
	if err := h.gw.SignOut(r.Context(), httpx.BearerToken(r)); err != nil {
		return fail(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) error {
	u, err := h.gw.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		return fail(err)
	}
	httpx.WriteJSON(w, u, http.StatusOK)
	return nil
}

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) error {
	limit := httpx.QueryInt(r, "limit", subscription.FeedLimit)
	if limit <= 0 || limit > subscription.FeedLimit {
		limit = subscription.FeedLimit
	}
	posts, err := h.reads.RecentPosts(r.Context(), limit)
	if err != nil {
		return httpx.Status(http.StatusInternalServerError, "backend_error", err)
	}
	httpx.WriteJSON(w, map[string]any{"posts": posts}, http.StatusOK)
	return nil
}

type createPostReq struct {
	Text     string `json:"text"`
	Image    string `json:"image,omitempty"` // base64
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

func readPost(r *http.Request) (string, *gateway.Upload, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			return "", nil, err
		}
		text := r.FormValue("text")
		f, fh, err := r.FormFile("image")
		if errors.Is(err, http.ErrMissingFile) {
			return text, nil, nil
		}
		if err != nil {
			return "", nil, err
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxUpload))
		if err != nil {
			return "", nil, err
		}
		return text, &gateway.Upload{Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
	}

	req, err := httpx.Decode[createPostReq](r)
	if err != nil {
		return "", nil, err
	}
	if req.Image == "" {
		return req.Text, nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		return "", nil, httpx.Status(http.StatusBadRequest, "bad_image", err)
	}
	return req.Text, &gateway.Upload{Filename: req.Filename, ContentType: req.MimeType, Data: data}, nil
}

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) error {
	id, err := h.identity(r)
	if err != nil {
		return err
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && h.limiter != nil {
		fresh, err := h.limiter.PutNX(r.Context(), id.UID+":"+key, 24*time.Hour)
		if err != nil {
			return httpx.Status(http.StatusInternalServerError, "idempotency_unavailable", err)
		}
		if !fresh {
			return httpx.Status(http.StatusConflict, "duplicate_request", errors.New("request already processed"))
		}
	}
	text, img, err := readPost(r)
	if err != nil {
		return err
	}
	p, err := h.gw.CreatePost(r.Context(), id, text, img)
	if err != nil {
		return fail(err)
	}
	httpx.WriteJSON(w, p, http.StatusCreated)
	return nil
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) error {
	id, err := h.identity(r)
	if err != nil {
		return err
	}
	if err := h.gw.DeletePost(r.Context(), id, r.PathValue("id"), nil); err != nil {
		return fail(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) ReportPost(w http.ResponseWriter, r *http.Request) error {
	id, err := h.identity(r)
	if err != nil {
		return err
	}
	req, err := httpx.Decode[struct {
		Reason string `json:"reason"`
	}](r)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if err := h.gw.ReportPost(r.Context(), id, r.PathValue("id"), req.Reason); err != nil {
		return fail(err)
	}
	httpx.WriteJSON(w, map[string]string{"status": "reported"}, http.StatusCreated)
	return nil
}

type reactionsResp struct {
	Counts map[string]int `json:"reactions"`
	Mine   string         `json:"userReaction,omitempty"`
}

func summary(sum state.ReactionSummary) reactionsResp {
	return reactionsResp{Counts: sum.Counts, Mine: sum.Mine}
}

func (h *Handler) ListReactions(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	list, err := h.reads.ListReactions(r.Context(), r.PathValue("id"))
	if err != nil {
		return httpx.Status(http.StatusInternalServerError, "backend_error", err)
	}
	httpx.WriteJSON(w, summary(subscription.Summarize(list, uid)), http.StatusOK)
	return nil
}

func (h *Handler) ToggleReaction(w http.ResponseWriter, r *http.Request) error {
	id, err := h.identity(r)
	if err != nil {
		return err
	}
	req, err := httpx.Decode[struct {
		Type string `json:"type"`
	}](r)
	if err != nil {
		return err
	}
	delta, err := h.gw.ToggleReaction(r.Context(), id, r.PathValue("id"), req.Type)
	if err != nil {
		return fail(err)
	}
	httpx.WriteJSON(w, map[string]int{"delta": delta}, http.StatusOK)
	return nil
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) error {
	list, err := h.reads.ListComments(r.Context(), r.PathValue("id"))
	if err != nil {
		return httpx.Status(http.StatusInternalServerError, "backend_error", err)
	}
	httpx.WriteJSON(w, map[string]any{"comments": list}, http.StatusOK)
	return nil
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) error {
	id, err := h.identity(r)
	if err != nil {
		return err
	}
	req, err := httpx.Decode[struct {
		Content string `json:"content"`
	}](r)
	if err != nil {
		return err
	}
	c, err := h.gw.AddComment(r.Context(), id, r.PathValue("id"), req.Content)
	if err != nil {
		return fail(err)
	}
	httpx.WriteJSON(w, c, http.StatusCreated)
	return nil
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) error {
	msgs, err := h.reads.RecentMessages(r.Context(), r.PathValue("room"), subscription.ChatLimit)
	if err != nil {
		return httpx.Status(http.StatusInternalServerError, "backend_error", err)
	}
	httpx.WriteJSON(w, map[string]any{"messages": msgs}, http.StatusOK)
	return nil
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) error {
	id, err := h.identity(r)
	if err != nil {
		return err
	}
	req, err := httpx.Decode[struct {
		Content string             `json:"content"`
		ReplyTo *docstore.ReplyRef `json:"replyTo"`
	}](r)
	if err != nil {
		return err
	}
	m, err := h.gw.SendMessage(r.Context(), id, r.PathValue("room"), req.Content, req.ReplyTo)
	if err != nil {
		return fail(err)
	}
	httpx.WriteJSON(w, m, http.StatusCreated)
	return nil
}
