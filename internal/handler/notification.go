package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// ListNotifications returns the active notifications of the session.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	active := sessionFrom(r).Notifications.Active()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, n := range active {
			encodeNotification(e, n)
		}
		e.ArrEnd()
	})
}

// DismissNotification removes one notification. Dismissing an unknown or
// expired notification succeeds.
func (h *Handler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Notifications.Remove(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// ClearNotifications removes every notification.
func (h *Handler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Notifications.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// InvokeNotificationAction runs the action of a notification and dismisses
// it.
func (h *Handler) InvokeNotificationAction(w http.ResponseWriter, r *http.Request) {
	if !sessionFrom(r).Notifications.Invoke(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
