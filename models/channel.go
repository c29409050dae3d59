package models

import "time"

type ChannelType string

const ChannelTypeText ChannelType = "TextChannel"

// Channel is a text channel belonging to a server.
type Channel struct {
	ID          string      `json:"id"`
	Type        ChannelType `json:"channel_type"`
	ServerID    string      `json:"server"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	NSFW        bool        `json:"nsfw,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
