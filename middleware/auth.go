package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"botforge/apperr"
	"botforge/models"
)

// BotTokenHeader carries a bot token in place of a session.
const BotTokenHeader = "x-bot-token"

type contextKey string

const userKey contextKey = "user"

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Users loads the account behind a session token.
type Users interface {
	FetchUser(ctx context.Context, id string) (*models.User, error)
}

// BotTokens resolves a bot token to the bot's user.
type BotTokens interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Auth issues session tokens and authenticates requests carrying either a
// session bearer token or a bot token.
type Auth struct {
	secret []byte
	ttl    time.Duration
	users  Users
	bots   BotTokens
}

func NewAuth(secret string, ttl time.Duration, users Users, bots BotTokens) *Auth {
	return &Auth{secret: []byte(secret), ttl: ttl, users: users, bots: bots}
}

func (a *Auth) GenerateToken(userID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// Resolve authenticates a session token and returns its live user.
func (a *Auth) Resolve(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := a.ValidateToken(tokenString)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized, "invalid token", err)
	}
	user, err := a.users.FetchUser(ctx, claims.UserID)
	if err != nil {
		if apperr.Has(err, apperr.NotFound) {
			return nil, apperr.New(apperr.Unauthorized, "invalid token")
		}
		return nil, err
	}
	if user.IsDeleted() {
		return nil, apperr.New(apperr.Unauthorized, "account has been deleted")
	}
	return user, nil
}

func (a *Auth) authenticate(r *http.Request) (*models.User, error) {
	if token := r.Header.Get(BotTokenHeader); token != "" {
		if a.bots == nil {
			return nil, apperr.New(apperr.Unauthorized, "bot tokens are not accepted")
		}
		return a.bots.Authenticate(r.Context(), token)
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, apperr.New(apperr.Unauthorized, "authorization header required")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return nil, apperr.New(apperr.Unauthorized, "invalid authorization format")
	}
	return a.Resolve(r.Context(), tokenString)
}

// Middleware requires a bearer session token or a bot token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.authenticate(r)
		if err != nil {
			apperr.Write(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// Socket authenticates websocket upgrades, where browsers cannot set
// headers: users pass their session token as ?token=, bots keep using the
// bot token header.
func (a *Auth) Socket(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var user *models.User
		var err error
		if token := r.URL.Query().Get("token"); token != "" && r.Header.Get(BotTokenHeader) == "" {
			user, err = a.Resolve(r.Context(), token)
		} else {
			user, err = a.authenticate(r)
		}
		if err != nil {
			apperr.Write(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// User returns the authenticated user stored by Middleware.
func User(r *http.Request) (*models.User, error) {
	if user, ok := r.Context().Value(userKey).(*models.User); ok && user != nil {
		return user, nil
	}
	return nil, fmt.Errorf("no authenticated user in request context")
}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}
