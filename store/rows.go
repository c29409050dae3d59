package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"botforge/models"
)

type userRow struct {
	ID            string         `db:"id"`
	Username      string         `db:"username"`
	Discriminator string         `db:"discriminator"`
	DisplayName   string         `db:"display_name"`
	PasswordHash  string         `db:"password_hash"`
	AvatarURL     string         `db:"avatar_url"`
	Status        string         `db:"status"`
	Flags         uint32         `db:"flags"`
	BotOwner      sql.NullString `db:"bot_owner"`
	BotModel      sql.NullString `db:"bot_model"`
	BotWelcome    sql.NullString `db:"bot_welcome"`
	CreatedAt     time.Time      `db:"created_at"`
}

func newUserRow(u *models.User) (userRow, error) {
	row := userRow{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		DisplayName:   u.DisplayName,
		PasswordHash:  u.PasswordHash,
		AvatarURL:     u.AvatarURL,
		Status:        u.Status,
		Flags:         uint32(u.Flags),
		CreatedAt:     u.CreatedAt,
	}
	if u.Bot != nil {
		row.BotOwner = sql.NullString{String: u.Bot.OwnerID, Valid: true}
		if u.Bot.Model != nil {
			b, err := json.Marshal(u.Bot.Model)
			if err != nil {
				return row, fmt.Errorf("encode bot model: %w", err)
			}
			row.BotModel = sql.NullString{String: string(b), Valid: true}
		}
		if u.Bot.Welcome != nil {
			row.BotWelcome = sql.NullString{String: *u.Bot.Welcome, Valid: true}
		}
	}
	return row, nil
}

func (r userRow) model() (*models.User, error) {
	u := &models.User{
		ID:            r.ID,
		Username:      r.Username,
		Discriminator: r.Discriminator,
		DisplayName:   r.DisplayName,
		PasswordHash:  r.PasswordHash,
		AvatarURL:     r.AvatarURL,
		Status:        r.Status,
		Flags:         models.UserFlags(r.Flags),
		CreatedAt:     r.CreatedAt,
	}
	if r.BotOwner.Valid {
		info := &models.BotInformation{OwnerID: r.BotOwner.String}
		if r.BotModel.Valid {
			var m models.BotModel
			if err := json.Unmarshal([]byte(r.BotModel.String), &m); err != nil {
				return nil, fmt.Errorf("decode bot model for user %s: %w", r.ID, err)
			}
			info.Model = &m
		}
		if r.BotWelcome.Valid {
			w := r.BotWelcome.String
			info.Welcome = &w
		}
		u.Bot = info
	}
	return u, nil
}

type botRow struct {
	ID                string         `db:"id"`
	Owner             string         `db:"owner"`
	Token             string         `db:"token"`
	Public            bool           `db:"public"`
	Discoverable      bool           `db:"discoverable"`
	Analytics         bool           `db:"analytics"`
	BotType           sql.NullString `db:"bot_type"`
	InteractionsURL   string         `db:"interactions_url"`
	TermsOfServiceURL string         `db:"terms_of_service_url"`
	PrivacyPolicyURL  string         `db:"privacy_policy_url"`
	Flags             uint32         `db:"flags"`
	ServerInvite      sql.NullString `db:"server_invite"`
	DefaultServer     sql.NullString `db:"default_server"`
	CreatedAt         time.Time      `db:"created_at"`
}

func newBotRow(b *models.Bot) botRow {
	row := botRow{
		ID:                b.ID,
		Owner:             b.Owner,
		Token:             b.Token,
		Public:            b.Public,
		Discoverable:      b.Discoverable,
		Analytics:         b.Analytics,
		InteractionsURL:   b.InteractionsURL,
		TermsOfServiceURL: b.TermsOfServiceURL,
		PrivacyPolicyURL:  b.PrivacyPolicyURL,
		Flags:             uint32(b.Flags),
		ServerInvite:      nullString(b.ServerInvite),
		DefaultServer:     nullString(b.DefaultServer),
		CreatedAt:         b.CreatedAt,
	}
	if b.BotType != nil {
		row.BotType = sql.NullString{String: string(*b.BotType), Valid: true}
	}
	return row
}

func (r botRow) model() models.Bot {
	b := models.Bot{
		ID:                r.ID,
		Owner:             r.Owner,
		Token:             r.Token,
		Public:            r.Public,
		Discoverable:      r.Discoverable,
		Analytics:         r.Analytics,
		InteractionsURL:   r.InteractionsURL,
		TermsOfServiceURL: r.TermsOfServiceURL,
		PrivacyPolicyURL:  r.PrivacyPolicyURL,
		Flags:             models.BotFlags(r.Flags),
		ServerInvite:      stringPtr(r.ServerInvite),
		DefaultServer:     stringPtr(r.DefaultServer),
		CreatedAt:         r.CreatedAt,
	}
	if r.BotType.Valid {
		t := models.BotType(r.BotType.String)
		b.BotType = &t
	}
	return b
}

type serverRow struct {
	ID                 string    `db:"id"`
	Owner              string    `db:"owner"`
	Name               string    `db:"name"`
	Description        string    `db:"description"`
	Channels           string    `db:"channels"`
	DefaultPermissions int64     `db:"default_permissions"`
	Discoverable       bool      `db:"discoverable"`
	CreatedAt          time.Time `db:"created_at"`
}

func newServerRow(s *models.Server) (serverRow, error) {
	channels := s.Channels
	if channels == nil {
		channels = []string{}
	}
	b, err := json.Marshal(channels)
	if err != nil {
		return serverRow{}, fmt.Errorf("encode server channels: %w", err)
	}
	return serverRow{
		ID:                 s.ID,
		Owner:              s.Owner,
		Name:               s.Name,
		Description:        s.Description,
		Channels:           string(b),
		DefaultPermissions: int64(s.DefaultPermissions),
		Discoverable:       s.Discoverable,
		CreatedAt:          s.CreatedAt,
	}, nil
}

func (r serverRow) model() (*models.Server, error) {
	var channels []string
	if err := json.Unmarshal([]byte(r.Channels), &channels); err != nil {
		return nil, fmt.Errorf("decode channels for server %s: %w", r.ID, err)
	}
	return &models.Server{
		ID:                 r.ID,
		Owner:              r.Owner,
		Name:               r.Name,
		Description:        r.Description,
		Channels:           channels,
		DefaultPermissions: models.Permission(r.DefaultPermissions),
		Discoverable:       r.Discoverable,
		CreatedAt:          r.CreatedAt,
	}, nil
}

type channelRow struct {
	ID          string    `db:"id"`
	Type        string    `db:"channel_type"`
	ServerID    string    `db:"server_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	NSFW        bool      `db:"nsfw"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r channelRow) model() models.Channel {
	return models.Channel{
		ID:          r.ID,
		Type:        models.ChannelType(r.Type),
		ServerID:    r.ServerID,
		Name:        r.Name,
		Description: r.Description,
		NSFW:        r.NSFW,
		CreatedAt:   r.CreatedAt,
	}
}

type inviteRow struct {
	Code      string    `db:"code"`
	Type      string    `db:"invite_type"`
	ServerID  string    `db:"server_id"`
	Creator   string    `db:"creator"`
	ChannelID string    `db:"channel_id"`
	CreatedAt time.Time `db:"created_at"`
}

type memberRow struct {
	ServerID string    `db:"server_id"`
	UserID   string    `db:"user_id"`
	Nickname string    `db:"nickname"`
	JoinedAt time.Time `db:"joined_at"`
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
