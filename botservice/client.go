// Package botservice talks to the backend that runs prompt bots.
package botservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"botforge/models"
)

const (
	restartPath = "/api/rest/v1/bot/restart"
	createdPath = "/api/rest/v1/bot/created"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

type createdRequest struct {
	BotID    string           `json:"bot_id"`
	Owner    string           `json:"owner"`
	BotToken string           `json:"bot_token"`
	Username string           `json:"username"`
	Model    *models.BotModel `json:"model,omitempty"`
	Welcome  *string          `json:"welcome,omitempty"`
}

// BotCreated announces a new prompt bot so the service can start serving it.
func (c *Client) BotCreated(ctx context.Context, bot *models.Bot, user *models.User) error {
	if !c.IsConfigured() {
		return fmt.Errorf("bot service url not set")
	}

	body := createdRequest{
		BotID:    bot.ID,
		Owner:    bot.Owner,
		BotToken: bot.Token,
		Username: user.Username,
	}
	if user.Bot != nil {
		body.Model = user.Bot.Model
		body.Welcome = user.Bot.Welcome
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createdPath, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req)
	return err
}

// Restart asks the service to (re)start the bot owning token and returns
// its JSON reply.
func (c *Client) Restart(ctx context.Context, token string) (json.RawMessage, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("bot service url not set")
	}

	q := url.Values{"bot_token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+restartPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("bot service returned invalid JSON")
	}
	return json.RawMessage(body), nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("bot service error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
