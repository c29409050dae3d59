package models

// WSMessage is the envelope pushed over the event socket.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	WSTypeReady        = "ready"
	WSTypeUserUpdate   = "user_update"
	WSTypeBotCreate    = "bot_create"
	WSTypeBotUpdate    = "bot_update"
	WSTypeBotDelete    = "bot_delete"
	WSTypeServerCreate = "server_create"
)

type UserUpdatePayload struct {
	ID    string    `json:"id"`
	Flags UserFlags `json:"flags"`
}

type BotDeletePayload struct {
	ID string `json:"id"`
}
