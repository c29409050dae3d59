// Package bots manages bot identities: the paired user and bot records, the
// default workspace provisioned for a new bot and the cleanup performed when
// a bot is deleted.
//
// There is no transaction spanning records. Creation and provisioning run
// as fixed step sequences that stop at the first failure and leave earlier
// steps in place; deletion soft-deletes the user before removing the bot so
// readers always find a user for any live bot id.
package bots

import (
	"context"
	"encoding/json"
	"time"

	"botforge/models"
)

// DefaultChannels are the text channels created in every default workspace.
var DefaultChannels = []string{"BOT使用新手指南", "功能发布", "bug反馈", "大家一起玩"}

type Config struct {
	MaxBotsPerOwner int
	Workspace       WorkspaceConfig
	// NotifyTimeout bounds the background call made after a prompt bot is
	// created.
	NotifyTimeout time.Duration
}

type WorkspaceConfig struct {
	// Enabled toggles provisioning during Create. Explicit provisioning
	// is always available.
	Enabled          bool
	Channels         []string
	ServerNameFormat string
	InviteCodeLength int
}

func DefaultConfig() Config {
	return Config{
		MaxBotsPerOwner: 10,
		Workspace: WorkspaceConfig{
			Enabled:          true,
			Channels:         append([]string(nil), DefaultChannels...),
			ServerNameFormat: "%s的主页",
			InviteCodeLength: 8,
		},
		NotifyTimeout: 10 * time.Second,
	}
}

// Notifier is told about newly created prompt bots. Calls are best-effort.
type Notifier interface {
	BotCreated(ctx context.Context, bot *models.Bot, user *models.User) error
}

// Restarter starts or restarts a prompt bot in the serving backend.
type Restarter interface {
	Restart(ctx context.Context, token string) (json.RawMessage, error)
}

// EventPublisher delivers realtime events to a user's sessions.
type EventPublisher interface {
	SendToUser(userID string, msg models.WSMessage)
}

func publish(p EventPublisher, userID, typ string, payload interface{}) {
	if p == nil {
		return
	}
	p.SendToUser(userID, models.WSMessage{Type: typ, Payload: payload})
}

// Account is a bot identity: the bot record, its paired user and, when one
// was provisioned, its default workspace.
type Account struct {
	Bot       models.Bot        `json:"bot"`
	User      models.User       `json:"user"`
	Workspace *models.Workspace `json:"workspace,omitempty"`
}
