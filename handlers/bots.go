package handlers

import (
	"log/slog"
	"net/http"

	"botforge/apperr"
	"botforge/bots"
	"botforge/middleware"
	"botforge/models"
)

type BotHandler struct {
	manager *bots.Manager
	logger  *slog.Logger
}

func NewBotHandler(m *bots.Manager, logger *slog.Logger) *BotHandler {
	return &BotHandler{manager: m, logger: logger.With("component", "bot_handler")}
}

// createBotResponse is the created account. WorkspaceError is set when the
// bot exists but its default workspace could not be provisioned.
type createBotResponse struct {
	*bots.Account
	WorkspaceError string `json:"workspace_error,omitempty"`
}

func (h *BotHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.User(r)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.Unauthorized, "", err))
		return
	}

	var req models.DataCreateBot
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, err)
		return
	}

	account, err := h.manager.Create(r.Context(), caller, req)
	if err != nil && account == nil {
		apperr.Write(w, err)
		return
	}

	resp := createBotResponse{Account: account}
	if err != nil {
		h.logger.WarnContext(r.Context(), "bot created without workspace", "bot_id", account.Bot.ID, "error", err)
		resp.WorkspaceError = "default workspace could not be created"
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *BotHandler) ListOwned(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.User(r)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.Unauthorized, "", err))
		return
	}

	resp, err := h.manager.FetchOwned(r.Context(), caller)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BotHandler) Discover(w http.ResponseWriter, r *http.Request) {
	cards, err := h.manager.FetchDiscoverable(r.Context())
	if err != nil {
		apperr.Write(w, err)
		return
	}
	if cards == nil {
		cards = []models.PublicBot{}
	}
	writeJSON(w, http.StatusOK, cards)
}

func (h *BotHandler) Search(w http.ResponseWriter, r *http.Request) {
	botType := models.BotType(r.URL.Query().Get("bot_type"))
	if botType == "" {
		botType = models.BotTypeCustom
	}

	cards, err := h.manager.SearchByType(r.Context(), botType)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	if cards == nil {
		cards = []models.PublicBot{}
	}
	writeJSON(w, http.StatusOK, cards)
}

// Get returns the full bot, token included, to its owner and the public
// card to everyone else.
func (h *BotHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.User(r)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.Unauthorized, "", err))
		return
	}
	botID := r.PathValue("id")

	owned, err := h.manager.Fetch(r.Context(), caller, botID)
	if err == nil {
		writeJSON(w, http.StatusOK, owned)
		return
	}
	if !apperr.Has(err, apperr.NotFound) {
		apperr.Write(w, err)
		return
	}

	card, err := h.manager.FetchPublic(r.Context(), caller, botID)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (h *BotHandler) Invite(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.User(r)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.Unauthorized, "", err))
		return
	}

	inv, err := h.manager.Invite(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *BotHandler) Edit(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.User(r)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.Unauthorized, "", err))
		return
	}

	var req models.DataEditBot
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, err)
		return
	}

	bot, err := h.manager.Edit(r.Context(), caller, r.PathValue("id"), req)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (h *BotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.User(r)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.Unauthorized, "", err))
		return
	}

	if err := h.manager.DeleteOwned(r.Context(), caller, r.PathValue("id")); err != nil {
		apperr.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BotHandler) ProvisionWorkspace(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.User(r)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.Unauthorized, "", err))
		return
	}

	ws, err := h.manager.ProvisionWorkspace(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (h *BotHandler) Start(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.User(r)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.Unauthorized, "", err))
		return
	}

	reply, err := h.manager.Start(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)
}
