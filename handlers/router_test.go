package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"botforge/bots"
	"botforge/middleware"
	"botforge/models"
	"botforge/store"
)

const testSecret = "handlers-test-secret-0123456789"

type testServer struct {
	*httptest.Server
	store store.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := store.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(log)
	go hub.Run(ctx)

	m := bots.NewManager(s, bots.DefaultConfig(), bots.Deps{Logger: log, Events: hub})
	auth := middleware.NewAuth(testSecret, time.Hour, s, m)

	srv := httptest.NewServer(NewRouter(RouterDeps{Store: s, Manager: m, Auth: auth, Hub: hub, Logger: log}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testServer{Server: srv, store: s}
}

type credential struct {
	header, value string
}

func session(token string) credential { return credential{"Authorization", "Bearer " + token} }
func botToken(token string) credential { return credential{middleware.BotTokenHeader, token} }

func (ts *testServer) do(t *testing.T, method, path string, cred credential, body interface{}, out interface{}) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if cred.header != "" {
		req.Header.Set(cred.header, cred.value)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (ts *testServer) register(t *testing.T, username string) models.AuthResponse {
	t.Helper()
	var auth models.AuthResponse
	code := ts.do(t, http.MethodPost, "/api/auth/register", credential{}, models.RegisterRequest{
		Username: username, DisplayName: username, Password: "hunter22",
	}, &auth)
	if code != http.StatusCreated || auth.Token == "" {
		t.Fatalf("register %s = %d %+v", username, code, auth)
	}
	return auth
}

type errorBody struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type createdAccount struct {
	Bot            models.Bot        `json:"bot"`
	User           models.User       `json:"user"`
	Workspace      *models.Workspace `json:"workspace"`
	WorkspaceError string            `json:"workspace_error"`
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	alice := ts.register(t, "alice")

	var me models.UserResponse
	if code := ts.do(t, http.MethodGet, "/api/auth/me", session(alice.Token), nil, &me); code != http.StatusOK || me.ID != alice.User.ID {
		t.Errorf("GET /me = %d %+v", code, me)
	}

	var eb errorBody
	if code := ts.do(t, http.MethodGet, "/api/auth/me", credential{}, nil, &eb); code != http.StatusUnauthorized || eb.Type != "Unauthorized" {
		t.Errorf("GET /me without token = %d %+v", code, eb)
	}

	login := models.LoginRequest{Username: "alice", Password: "wrong-password"}
	if code := ts.do(t, http.MethodPost, "/api/auth/login", credential{}, login, nil); code != http.StatusUnauthorized {
		t.Errorf("login with bad password = %d, want 401", code)
	}

	login.Password = "hunter22"
	var auth models.AuthResponse
	if code := ts.do(t, http.MethodPost, "/api/auth/login", credential{}, login, &auth); code != http.StatusOK || auth.User.ID != alice.User.ID {
		t.Errorf("login = %d %+v", code, auth)
	}

	second := ts.register(t, "alice")
	if second.User.Discriminator == alice.User.Discriminator {
		t.Errorf("second alice got discriminator %s twice", second.User.Discriminator)
	}

	if code := ts.do(t, http.MethodPost, "/api/auth/register", credential{}, models.RegisterRequest{
		Username: "admin", DisplayName: "root", Password: "hunter22",
	}, &eb); code != http.StatusConflict || eb.Type != "UsernameTaken" {
		t.Errorf("register reserved name = %d %+v", code, eb)
	}
}

func TestBotLifecycle(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	owner := ts.register(t, "owner").Token
	other := ts.register(t, "other").Token

	var acct createdAccount
	code := ts.do(t, http.MethodPost, "/api/bots/create", session(owner),
		map[string]interface{}{"name": "helper", "bot_type": "prompt_bot"}, &acct)
	if code != http.StatusCreated {
		t.Fatalf("create = %d", code)
	}
	if acct.Bot.Token == "" || acct.User.ID != acct.Bot.ID || acct.Workspace == nil {
		t.Fatalf("created account = %+v", acct)
	}
	botID := acct.Bot.ID

	var eb errorBody
	if code := ts.do(t, http.MethodPost, "/api/bots/create", session(owner), map[string]string{"name": "x"}, &eb); code != http.StatusBadRequest || eb.Type != "FailedValidation" {
		t.Errorf("create with short name = %d %+v", code, eb)
	}

	t.Run("bot token authenticates as the bot", func(t *testing.T) {
		var me models.UserResponse
		if code := ts.do(t, http.MethodGet, "/api/auth/me", botToken(acct.Bot.Token), nil, &me); code != http.StatusOK || me.Bot == nil {
			t.Fatalf("GET /me as bot = %d %+v", code, me)
		}
		var eb errorBody
		if code := ts.do(t, http.MethodPost, "/api/bots/create", botToken(acct.Bot.Token), map[string]string{"name": "child"}, &eb); code != http.StatusForbidden || eb.Type != "IsBot" {
			t.Errorf("bot creating bot = %d %+v", code, eb)
		}
	})

	t.Run("owner reads", func(t *testing.T) {
		var owned models.OwnedBotsResponse
		if code := ts.do(t, http.MethodGet, "/api/bots/@me", session(owner), nil, &owned); code != http.StatusOK || len(owned.Bots) != 1 {
			t.Errorf("GET @me = %d %+v", code, owned)
		}

		var inv models.InviteResponse
		if code := ts.do(t, http.MethodGet, "/api/bots/"+botID+"/invite", session(owner), nil, &inv); code != http.StatusOK || inv.Code != *acct.Bot.ServerInvite {
			t.Errorf("GET invite = %d %+v", code, inv)
		}

		var srv serverResponse
		if code := ts.do(t, http.MethodGet, "/api/servers/"+*acct.Bot.DefaultServer, session(owner), nil, &srv); code != http.StatusOK || len(srv.Channels) != len(bots.DefaultChannels) {
			t.Errorf("GET server = %d %+v", code, srv)
		}
		if code := ts.do(t, http.MethodGet, "/api/servers/"+*acct.Bot.DefaultServer, session(other), nil, nil); code != http.StatusNotFound {
			t.Errorf("GET server as non-member = %d, want 404", code)
		}
	})

	t.Run("visibility", func(t *testing.T) {
		if code := ts.do(t, http.MethodGet, "/api/bots/"+botID, session(other), nil, nil); code != http.StatusNotFound {
			t.Errorf("GET private bot as stranger = %d, want 404", code)
		}

		var resp models.BotResponse
		if code := ts.do(t, http.MethodPatch, "/api/bots/"+botID, session(owner), map[string]bool{"public": true}, &resp); code != http.StatusOK || !resp.Public {
			t.Fatalf("PATCH public = %d %+v", code, resp)
		}

		var card models.PublicBot
		if code := ts.do(t, http.MethodGet, "/api/bots/"+botID, session(other), nil, &card); code != http.StatusOK || card.Username != "helper" {
			t.Errorf("GET public bot as stranger = %d %+v", code, card)
		}

		var found []models.PublicBot
		if code := ts.do(t, http.MethodGet, "/api/bots/search?bot_type=prompt_bot", session(other), nil, &found); code != http.StatusOK || len(found) != 1 {
			t.Errorf("search = %d %+v", code, found)
		}
		if code := ts.do(t, http.MethodGet, "/api/bots/search?bot_type=robot", session(other), nil, nil); code != http.StatusBadRequest {
			t.Errorf("search with unknown type = %d, want 400", code)
		}
	})

	t.Run("token rotation", func(t *testing.T) {
		old := acct.Bot.Token
		edit := map[string]interface{}{"remove": []string{"Token"}}
		if code := ts.do(t, http.MethodPatch, "/api/bots/"+botID, session(owner), edit, nil); code != http.StatusOK {
			t.Fatalf("PATCH remove token = %d", code)
		}
		if code := ts.do(t, http.MethodGet, "/api/auth/me", botToken(old), nil, nil); code != http.StatusUnauthorized {
			t.Errorf("old bot token = %d, want 401", code)
		}

		var full models.BotWithUser
		if code := ts.do(t, http.MethodGet, "/api/bots/"+botID, session(owner), nil, &full); code != http.StatusOK || full.Bot.Token == "" || full.Bot.Token == old {
			t.Errorf("GET owned bot after rotation = %d token %q", code, full.Bot.Token)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if code := ts.do(t, http.MethodDelete, "/api/bots/"+botID, session(other), nil, nil); code != http.StatusNotFound {
			t.Errorf("DELETE by stranger = %d, want 404", code)
		}
		if code := ts.do(t, http.MethodDelete, "/api/bots/"+botID, session(owner), nil, nil); code != http.StatusNoContent {
			t.Fatalf("DELETE = %d", code)
		}
		if code := ts.do(t, http.MethodDelete, "/api/bots/"+botID, session(owner), nil, nil); code != http.StatusNotFound {
			t.Errorf("second DELETE = %d, want 404", code)
		}

		var u models.UserResponse
		if code := ts.do(t, http.MethodGet, "/api/users/"+botID, session(owner), nil, &u); code != http.StatusOK || u.Flags&models.UserFlagDeleted == 0 {
			t.Errorf("GET deleted bot user = %d flags %d", code, u.Flags)
		}

		srv, err := ts.store.FetchServer(context.Background(), *acct.Bot.DefaultServer)
		if err != nil || !strings.HasSuffix(srv.Name, " (deleted)") {
			t.Errorf("workspace after delete = %+v, %v", srv, err)
		}
	})
}

func TestStartWithoutBotService(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	owner := ts.register(t, "owner").Token

	var acct createdAccount
	ts.do(t, http.MethodPost, "/api/bots/create", session(owner), map[string]interface{}{"name": "prompty", "bot_type": "prompt_bot"}, &acct)

	var eb errorBody
	if code := ts.do(t, http.MethodPost, "/api/bots/"+acct.Bot.ID+"/start", session(owner), nil, &eb); code != http.StatusBadRequest || eb.Type != "InvalidOperation" {
		t.Errorf("start = %d %+v", code, eb)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	var body map[string]string
	if code := ts.do(t, http.MethodGet, "/health", credential{}, nil, &body); code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("GET /health = %d %v", code, body)
	}
}

func dial(t *testing.T, ts *testServer, query string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", query, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// nextOfType reads until a message of type typ arrives.
func nextOfType(t *testing.T, conn *websocket.Conn, typ string) models.WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg models.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
}

func TestWebSocketEvents(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	owner := ts.register(t, "owner").Token

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("dial without token: err=%v", err)
	}

	conn := dial(t, ts, "?token="+owner, nil)
	nextOfType(t, conn, models.WSTypeReady)

	var acct createdAccount
	if code := ts.do(t, http.MethodPost, "/api/bots/create", session(owner), map[string]string{"name": "notifier"}, &acct); code != http.StatusCreated {
		t.Fatalf("create = %d", code)
	}
	msg := nextOfType(t, conn, models.WSTypeBotCreate)
	if payload, _ := msg.Payload.(map[string]interface{}); payload["id"] != acct.Bot.ID {
		t.Errorf("bot_create payload = %v", msg.Payload)
	}
	if _, hasToken := msg.Payload.(map[string]interface{})["token"]; hasToken {
		t.Error("bot_create payload exposes the token")
	}

	botConn := dial(t, ts, "", http.Header{middleware.BotTokenHeader: {acct.Bot.Token}})
	nextOfType(t, botConn, models.WSTypeReady)

	if code := ts.do(t, http.MethodDelete, "/api/bots/"+acct.Bot.ID, session(owner), nil, nil); code != http.StatusNoContent {
		t.Fatalf("DELETE = %d", code)
	}
	nextOfType(t, conn, models.WSTypeBotDelete)

	update := nextOfType(t, botConn, models.WSTypeUserUpdate)
	if payload, _ := update.Payload.(map[string]interface{}); payload["id"] != acct.Bot.ID {
		t.Errorf("user_update payload = %v", update.Payload)
	}
	_ = botConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := botConn.ReadMessage(); err != nil {
			break
		}
	}
}
