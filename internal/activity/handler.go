package activity

import (
	"errors"
	"net/http"

	"glassy-social/internal/shared/httpx"
)

type Handler struct{ svc Service }

func NewHandler(s Service) *Handler { return &Handler{svc: s} }

func (h *Handler) List(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	items, err := h.svc.List(r.Context(), uid, int64(httpx.QueryInt(r, "limit", 50)))
	if err != nil {
		return httpx.Status(http.StatusInternalServerError, "inbox_unavailable", err)
	}
	httpx.WriteJSON(w, map[string]any{"notifications": items}, http.StatusOK)
	return nil
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	id := r.PathValue("id")
	if id == "" {
		return httpx.Status(http.StatusBadRequest, "missing_id", errors.New("missing id"))
	}
	if err := h.svc.MarkRead(r.Context(), uid, id); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			return httpx.Status(http.StatusNotFound, "not_found", err)
		}
		return err
	}
	httpx.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	return nil
}
