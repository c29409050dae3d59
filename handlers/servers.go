package handlers

import (
	"net/http"

	"botforge/apperr"
	"botforge/middleware"
	"botforge/models"
	"botforge/store"
)

type ServerHandler struct {
	store store.Store
}

func NewServerHandler(s store.Store) *ServerHandler {
	return &ServerHandler{store: s}
}

type serverResponse struct {
	Server   models.Server    `json:"server"`
	Channels []models.Channel `json:"channels"`
}

// Get returns a server and its channels to its members.
func (h *ServerHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.User(r)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.Unauthorized, "", err))
		return
	}
	ctx := r.Context()
	serverID := r.PathValue("id")

	if _, err := h.store.FetchMember(ctx, serverID, caller.ID); err != nil {
		if apperr.Has(err, apperr.NotFound) {
			err = apperr.New(apperr.NotFound, "server not found")
		}
		apperr.Write(w, err)
		return
	}

	server, err := h.store.FetchServer(ctx, serverID)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	channels, err := h.store.FetchChannels(ctx, server.Channels)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, serverResponse{Server: *server, Channels: channels})
}
