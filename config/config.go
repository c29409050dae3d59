// Package config loads server configuration from defaults, an optional
// config.yaml and BOTFORGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"botforge/bots"
)

var ErrConfiguration = errors.New("configuration error")

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Bots       BotsConfig       `mapstructure:"bots"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	BotService BotServiceConfig `mapstructure:"botservice"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	JWTSecret       string        `mapstructure:"jwt_secret" validate:"required,min=16"`
	TokenTTL        time.Duration `mapstructure:"token_ttl" validate:"min=1m"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type BotsConfig struct {
	MaxPerOwner   int           `mapstructure:"max_per_owner" validate:"min=1,max=1000"`
	NotifyTimeout time.Duration `mapstructure:"notify_timeout" validate:"min=1s"`
}

type WorkspaceConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Channels         []string `mapstructure:"channels" validate:"required,min=1,dive,required,max=32"`
	ServerNameFormat string   `mapstructure:"server_name_format" validate:"required,contains=%s"`
	InviteCodeLength int      `mapstructure:"invite_code_length" validate:"min=6,max=32"`
}

type BotServiceConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url" validate:"required_if=Enabled true,omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"min=1s,max=5m"`
}

func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// BotsConfig maps the bots and workspace sections onto the manager settings.
func (c *Config) BotsConfig() bots.Config {
	return bots.Config{
		MaxBotsPerOwner: c.Bots.MaxPerOwner,
		Workspace: bots.WorkspaceConfig{
			Enabled:          c.Workspace.Enabled,
			Channels:         append([]string(nil), c.Workspace.Channels...),
			ServerNameFormat: c.Workspace.ServerNameFormat,
			InviteCodeLength: c.Workspace.InviteCodeLength,
		},
		NotifyTimeout: c.Bots.NotifyTimeout,
	}
}
