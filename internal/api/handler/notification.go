package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/dochub/internal/api/request"
	"github.com/edvin/dochub/internal/api/response"
	"github.com/edvin/dochub/internal/core"
	"github.com/edvin/dochub/internal/model"
)

// NotificationStore pages and updates admin notifications.
type NotificationStore interface {
	List(ctx context.Context, limit int, cursor string) ([]model.Notification, bool, error)
	MarkRead(ctx context.Context, id int64) error
}

type Notification struct {
	svc NotificationStore
}

func NewNotification(svc NotificationStore) *Notification {
	return &Notification{svc: svc}
}

func (h *Notification) List(w http.ResponseWriter, r *http.Request) {
	pg := request.ParsePagination(r)

	notifications, hasMore, err := h.svc.List(r.Context(), pg.Limit, pg.Cursor)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var nextCursor string
	if hasMore && len(notifications) > 0 {
		nextCursor = strconv.FormatInt(notifications[len(notifications)-1].ID, 10)
	}
	response.WritePaginated(w, http.StatusOK, notifications, nextCursor, hasMore)
}

func (h *Notification) MarkRead(w http.ResponseWriter, r *http.Request) {
	idStr, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := h.svc.MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			response.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
