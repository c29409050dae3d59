package models

import "time"

type BotType string

const (
	BotTypeCustom BotType = "custom_bot"
	BotTypePrompt BotType = "prompt_bot"
)

// BotFlags is a bitfield of platform-assigned bot badges.
type BotFlags uint32

const (
	BotFlagVerified BotFlags = 1
	BotFlagOfficial BotFlags = 2
)

// Bot is the metadata half of a bot identity. ID always equals the paired
// User's ID.
type Bot struct {
	ID                string    `json:"id"`
	Owner             string    `json:"owner"`
	Token             string    `json:"token"`
	Public            bool      `json:"public"`
	Discoverable      bool      `json:"discoverable"`
	Analytics         bool      `json:"analytics,omitempty"`
	BotType           *BotType  `json:"bot_type,omitempty"`
	InteractionsURL   string    `json:"interactions_url,omitempty"`
	TermsOfServiceURL string    `json:"terms_of_service_url,omitempty"`
	PrivacyPolicyURL  string    `json:"privacy_policy_url,omitempty"`
	Flags             BotFlags  `json:"flags,omitempty"`
	ServerInvite      *string   `json:"server_invite,omitempty"`
	DefaultServer     *string   `json:"default_server,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Visible reports whether the bot is listed publicly or discoverable.
func (b *Bot) Visible() bool {
	return b.Public || b.Discoverable
}

// HasWorkspace reports whether a default workspace was provisioned.
func (b *Bot) HasWorkspace() bool {
	return b.DefaultServer != nil && b.ServerInvite != nil
}

// Type returns the bot type, defaulting to custom.
func (b *Bot) Type() BotType {
	if b.BotType == nil {
		return BotTypeCustom
	}
	return *b.BotType
}

// FieldsBot names a bot field that can be removed.
type FieldsBot string

const (
	FieldToken           FieldsBot = "Token"
	FieldInteractionsURL FieldsBot = "InteractionsURL"
)

// Column returns the storage column cleared when the field is removed.
// Token has none: its removal is a rotation and arrives as a new value.
func (f FieldsBot) Column() string {
	if f == FieldInteractionsURL {
		return "interactions_url"
	}
	return ""
}

// PartialBot is a sparse set of bot field assignments.
type PartialBot struct {
	Token             *string
	Public            *bool
	Discoverable      *bool
	Analytics         *bool
	BotType           *BotType
	InteractionsURL   *string
	TermsOfServiceURL *string
	PrivacyPolicyURL  *string
	Flags             *BotFlags
	ServerInvite      *string
	DefaultServer     *string
}

func (p PartialBot) IsEmpty() bool {
	return p.Token == nil && p.Public == nil && p.Discoverable == nil &&
		p.Analytics == nil && p.BotType == nil && p.InteractionsURL == nil &&
		p.TermsOfServiceURL == nil && p.PrivacyPolicyURL == nil &&
		p.Flags == nil && p.ServerInvite == nil && p.DefaultServer == nil
}

// Apply merges the explicit fields of p onto b. Unset fields are untouched.
func (b *Bot) Apply(p PartialBot) {
	if p.Token != nil {
		b.Token = *p.Token
	}
	if p.Public != nil {
		b.Public = *p.Public
	}
	if p.Discoverable != nil {
		b.Discoverable = *p.Discoverable
	}
	if p.Analytics != nil {
		b.Analytics = *p.Analytics
	}
	if p.BotType != nil {
		t := *p.BotType
		b.BotType = &t
	}
	if p.InteractionsURL != nil {
		b.InteractionsURL = *p.InteractionsURL
	}
	if p.TermsOfServiceURL != nil {
		b.TermsOfServiceURL = *p.TermsOfServiceURL
	}
	if p.PrivacyPolicyURL != nil {
		b.PrivacyPolicyURL = *p.PrivacyPolicyURL
	}
	if p.Flags != nil {
		b.Flags = *p.Flags
	}
	if p.ServerInvite != nil {
		s := *p.ServerInvite
		b.ServerInvite = &s
	}
	if p.DefaultServer != nil {
		s := *p.DefaultServer
		b.DefaultServer = &s
	}
}

// RemoveField resets a single field. Token removal is a rotation, so the
// caller supplies the replacement secret; it is ignored for other fields.
func (b *Bot) RemoveField(f FieldsBot, newToken string) {
	switch f {
	case FieldToken:
		b.Token = newToken
	case FieldInteractionsURL:
		b.InteractionsURL = ""
	}
}

// BotResponse is the bot without its token.
type BotResponse struct {
	ID                string   `json:"id"`
	Owner             string   `json:"owner"`
	Public            bool     `json:"public"`
	Discoverable      bool     `json:"discoverable"`
	Analytics         bool     `json:"analytics,omitempty"`
	BotType           BotType  `json:"bot_type"`
	InteractionsURL   string   `json:"interactions_url,omitempty"`
	TermsOfServiceURL string   `json:"terms_of_service_url,omitempty"`
	PrivacyPolicyURL  string   `json:"privacy_policy_url,omitempty"`
	Flags             BotFlags `json:"flags,omitempty"`
	ServerInvite      *string  `json:"server_invite,omitempty"`
	DefaultServer     *string  `json:"default_server,omitempty"`
}

func (b *Bot) ToResponse() BotResponse {
	return BotResponse{
		ID:                b.ID,
		Owner:             b.Owner,
		Public:            b.Public,
		Discoverable:      b.Discoverable,
		Analytics:         b.Analytics,
		BotType:           b.Type(),
		InteractionsURL:   b.InteractionsURL,
		TermsOfServiceURL: b.TermsOfServiceURL,
		PrivacyPolicyURL:  b.PrivacyPolicyURL,
		Flags:             b.Flags,
		ServerInvite:      b.ServerInvite,
		DefaultServer:     b.DefaultServer,
	}
}

// PublicBot is the directory card shown to anyone.
type PublicBot struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	Description   string    `json:"description,omitempty"`
	BotType       BotType   `json:"bot_type"`
	Model         *BotModel `json:"model,omitempty"`
	ServerInvite  *string   `json:"server_invite,omitempty"`
	DefaultServer *string   `json:"default_server,omitempty"`
}

func NewPublicBot(b *Bot, u *User) PublicBot {
	pb := PublicBot{
		ID:            b.ID,
		Username:      u.Username,
		AvatarURL:     u.AvatarURL,
		Description:   u.DisplayName,
		BotType:       b.Type(),
		ServerInvite:  b.ServerInvite,
		DefaultServer: b.DefaultServer,
	}
	if u.Bot != nil {
		pb.Model = u.Bot.Model
	}
	return pb
}

// BotWithUser is returned wherever the token may be shown to the owner.
type BotWithUser struct {
	Bot  Bot          `json:"bot"`
	User UserResponse `json:"user"`
}

type OwnedBotsResponse struct {
	Bots  []Bot          `json:"bots"`
	Users []UserResponse `json:"users"`
}

type InviteResponse struct {
	Code    string `json:"code"`
	Server  string `json:"server"`
	Channel string `json:"channel"`
}

// DataCreateBot is the body of a create request.
type DataCreateBot struct {
	Name              string    `json:"name" validate:"required,min=2,max=32,username"`
	BotType           *BotType  `json:"bot_type,omitempty" validate:"omitempty,oneof=custom_bot prompt_bot"`
	Model             *BotModel `json:"model,omitempty" validate:"omitempty"`
	Welcome           *string   `json:"welcome,omitempty" validate:"omitempty,max=2000"`
	Public            *bool     `json:"public,omitempty"`
	Discoverable      *bool     `json:"discoverable,omitempty"`
	InteractionsURL   *string   `json:"interactions_url,omitempty" validate:"omitempty,min=1,max=2048"`
	TermsOfServiceURL *string   `json:"terms_of_service_url,omitempty" validate:"omitempty,min=1,max=2048"`
	PrivacyPolicyURL  *string   `json:"privacy_policy_url,omitempty" validate:"omitempty,min=1,max=2048"`
	DefaultServer     *bool     `json:"default_server,omitempty"`
}

// Type returns the requested bot type, defaulting to custom.
func (d *DataCreateBot) Type() BotType {
	if d.BotType == nil {
		return BotTypeCustom
	}
	return *d.BotType
}

// DataEditBot is the body of an edit request.
type DataEditBot struct {
	Name              *string     `json:"name,omitempty" validate:"omitempty,min=2,max=32,username"`
	Public            *bool       `json:"public,omitempty"`
	Discoverable      *bool       `json:"discoverable,omitempty"`
	Analytics         *bool       `json:"analytics,omitempty"`
	InteractionsURL   *string     `json:"interactions_url,omitempty" validate:"omitempty,min=1,max=2048"`
	TermsOfServiceURL *string     `json:"terms_of_service_url,omitempty" validate:"omitempty,min=1,max=2048"`
	PrivacyPolicyURL  *string     `json:"privacy_policy_url,omitempty" validate:"omitempty,min=1,max=2048"`
	Remove            []FieldsBot `json:"remove,omitempty" validate:"omitempty,dive,oneof=Token InteractionsURL"`
}

// Partial converts the assignable fields of an edit into a PartialBot.
func (d *DataEditBot) Partial() PartialBot {
	return PartialBot{
		Public:            d.Public,
		Discoverable:      d.Discoverable,
		Analytics:         d.Analytics,
		InteractionsURL:   d.InteractionsURL,
		TermsOfServiceURL: d.TermsOfServiceURL,
		PrivacyPolicyURL:  d.PrivacyPolicyURL,
	}
}
