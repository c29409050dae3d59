package config

import (
	"time"

	"botforge/bots"
)

const (
	DefaultServerAddr      = ":8080"
	DefaultTokenTTL        = 7 * 24 * time.Hour
	DefaultShutdownTimeout = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultDBPath = "botforge.db"

	DefaultMaxBotsPerOwner = 10
	DefaultNotifyTimeout   = 10 * time.Second

	DefaultWorkspaceEnabled  = true
	DefaultServerNameFormat  = "%s的主页"
	DefaultInviteCodeLength  = 8
	DefaultBotServiceTimeout = 15 * time.Second
)

var defaults = map[string]any{
	"server.addr":             DefaultServerAddr,
	"server.jwt_secret":       "",
	"server.token_ttl":        DefaultTokenTTL,
	"server.shutdown_timeout": DefaultShutdownTimeout,

	"log.level":  DefaultLogLevel,
	"log.format": DefaultLogFormat,

	"database.path": DefaultDBPath,

	"bots.max_per_owner":  DefaultMaxBotsPerOwner,
	"bots.notify_timeout": DefaultNotifyTimeout,

	"workspace.enabled":            DefaultWorkspaceEnabled,
	"workspace.channels":           bots.DefaultChannels,
	"workspace.server_name_format": DefaultServerNameFormat,
	"workspace.invite_code_length": DefaultInviteCodeLength,

	"botservice.enabled": false,
	"botservice.url":     "",
	"botservice.timeout": DefaultBotServiceTimeout,
}
