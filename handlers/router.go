package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"botforge/bots"
	"botforge/logger"
	"botforge/middleware"
	"botforge/store"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterDeps struct {
	Store   store.Store
	Manager *bots.Manager
	Auth    *middleware.Auth
	Hub     *Hub
	Logger  *slog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	authHandler := NewAuthHandler(d.Store, d.Auth, d.Logger)
	botHandler := NewBotHandler(d.Manager, d.Logger)
	userHandler := NewUserHandler(d.Store)
	serverHandler := NewServerHandler(d.Store)
	withAuth := func(h http.HandlerFunc) http.Handler { return d.Auth.Middleware(h) }

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health(d.Store))

	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.Handle("GET /api/auth/me", withAuth(authHandler.Me))

	mux.Handle("POST /api/bots/create", withAuth(botHandler.Create))
	mux.Handle("GET /api/bots/@me", withAuth(botHandler.ListOwned))
	mux.Handle("GET /api/bots/discover", withAuth(botHandler.Discover))
	mux.Handle("GET /api/bots/search", withAuth(botHandler.Search))
	mux.Handle("GET /api/bots/{id}", withAuth(botHandler.Get))
	mux.Handle("GET /api/bots/{id}/invite", withAuth(botHandler.Invite))
	mux.Handle("PATCH /api/bots/{id}", withAuth(botHandler.Edit))
	mux.Handle("DELETE /api/bots/{id}", withAuth(botHandler.Delete))
	mux.Handle("POST /api/bots/{id}/workspace", withAuth(botHandler.ProvisionWorkspace))
	mux.Handle("POST /api/bots/{id}/start", withAuth(botHandler.Start))

	mux.Handle("GET /api/users/{id}", withAuth(userHandler.Get))
	mux.Handle("GET /api/servers/{id}", withAuth(serverHandler.Get))

	mux.Handle("GET /api/ws", d.Auth.Socket(http.HandlerFunc(d.Hub.HandleWebSocket)))

	return logger.Middleware(d.Logger, corsMiddleware(mux))
}

func health(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := s.(Pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+middleware.BotTokenHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
