package models

import "time"

type Server struct {
	ID                 string     `json:"id"`
	Owner              string     `json:"owner"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	Channels           []string   `json:"channels"`
	DefaultPermissions Permission `json:"default_permissions"`
	Discoverable       bool       `json:"discoverable,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Member links a user to a server.
type Member struct {
	ServerID string    `json:"server"`
	UserID   string    `json:"user"`
	Nickname string    `json:"nickname,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

type InviteType string

const InviteTypeServer InviteType = "Server"

// Invite grants entry to a server through one of its channels.
type Invite struct {
	Code      string     `json:"_id"`
	Type      InviteType `json:"type"`
	ServerID  string     `json:"server"`
	Creator   string     `json:"creator"`
	ChannelID string     `json:"channel"`
	CreatedAt time.Time  `json:"created_at"`
}

// Workspace is everything provisioned for a bot's default server.
type Workspace struct {
	Server   Server    `json:"server"`
	Channels []Channel `json:"channels"`
	Invite   Invite    `json:"invite"`
}
