package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"botforge/apperr"
	"botforge/bots"
	"botforge/middleware"
	"botforge/models"
	"botforge/store"
)

type AuthHandler struct {
	store  store.Store
	auth   *middleware.Auth
	logger *slog.Logger
	cost   int
}

func NewAuthHandler(s store.Store, auth *middleware.Auth, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		store:  s,
		auth:   auth,
		logger: logger.With("component", "auth_handler"),
		cost:   bcrypt.DefaultCost,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := models.Validate(&req); err != nil {
		apperr.Write(w, err)
		return
	}

	ctx := r.Context()
	username, err := bots.NormalizeUsername(req.Username)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	discriminator, err := bots.FindDiscriminator(ctx, h.store, username, "")
	if err != nil {
		apperr.Write(w, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.cost)
	if err != nil {
		apperr.Write(w, apperr.Internal("hash password", err))
		return
	}

	user := &models.User{
		ID:            bots.NewID(),
		Username:      username,
		Discriminator: discriminator,
		DisplayName:   req.DisplayName,
		PasswordHash:  string(hash),
		Status:        "offline",
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.store.InsertUser(ctx, user); err != nil {
		if apperr.Has(err, apperr.Conflict) {
			err = apperr.New(apperr.UsernameTaken, "username already taken")
		}
		apperr.Write(w, err)
		return
	}
	h.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "username", user.Username)

	h.respondWithToken(w, user, http.StatusCreated)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, err)
		return
	}
	if err := models.Validate(&req); err != nil {
		apperr.Write(w, err)
		return
	}

	invalid := apperr.New(apperr.Unauthorized, "invalid credentials")
	user, err := h.store.FetchUserByUsername(r.Context(), strings.TrimSpace(req.Username), req.Discriminator)
	if err != nil {
		if apperr.Has(err, apperr.NotFound) {
			err = invalid
		}
		apperr.Write(w, err)
		return
	}
	// Bots have no password and authenticate with their token.
	if user.IsBot() || user.IsDeleted() || user.PasswordHash == "" {
		apperr.Write(w, invalid)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		apperr.Write(w, invalid)
		return
	}

	h.respondWithToken(w, user, http.StatusOK)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.User(r)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.Unauthorized, "", err))
		return
	}
	writeJSON(w, http.StatusOK, user.ToResponse())
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, user *models.User, status int) {
	token, err := h.auth.GenerateToken(user.ID)
	if err != nil {
		apperr.Write(w, apperr.Internal("generate token", err))
		return
	}
	writeJSON(w, status, models.AuthResponse{Token: token, User: user.ToResponse()})
}
