package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wencestudios/freelancehub/internal/handler/respond"
	"github.com/wencestudios/freelancehub/internal/service"
)

// NotificationHandler serves the caller's notifications.
type NotificationHandler struct {
	store  *service.NotificationStore
	logger *slog.Logger
}

func NewNotificationHandler(store *service.NotificationStore, logger *slog.Logger) *NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{store: store, logger: logger}
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	items, err := h.store.List(r.Context(), a.UserID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, items)
}

// UnreadCount handles GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	n, err := h.store.UnreadCount(r.Context(), a.UserID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int{"unread": n})
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	n, err := h.store.MarkRead(r.Context(), a.UserID, chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, n)
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	n, err := h.store.MarkAllRead(r.Context(), a.UserID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// Delete handles DELETE /api/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if err := h.store.Delete(r.Context(), a.UserID, chi.URLParam(r, "id")); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/notifications
func (h *NotificationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	n, err := h.store.ClearAll(r.Context(), a.UserID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
