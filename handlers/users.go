package handlers

import (
	"net/http"

	"botforge/apperr"
	"botforge/store"
)

type UserHandler struct {
	store store.Store
}

func NewUserHandler(s store.Store) *UserHandler {
	return &UserHandler{store: s}
}

// Get returns any user, deleted ones included, so clients can still render
// authors of old content.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.FetchUser(r.Context(), r.PathValue("id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user.ToResponse())
}
