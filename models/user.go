package models

import "time"

// UserFlags is a bitfield of account states.
type UserFlags uint32

const (
	UserFlagSuspended UserFlags = 1
	UserFlagDeleted   UserFlags = 2
	UserFlagBanned    UserFlags = 4
	UserFlagSpam      UserFlags = 8
)

type User struct {
	ID            string          `json:"id"`
	Username      string          `json:"username"`
	Discriminator string          `json:"discriminator"`
	DisplayName   string          `json:"display_name,omitempty"`
	PasswordHash  string          `json:"-"`
	AvatarURL     string          `json:"avatar_url,omitempty"`
	Status        string          `json:"status"`
	Flags         UserFlags       `json:"flags,omitempty"`
	Bot           *BotInformation `json:"bot,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IsDeleted reports whether the account has been soft-deleted.
func (u *User) IsDeleted() bool {
	return u.Flags&UserFlagDeleted != 0
}

// IsBot reports whether this user is the identity half of a bot.
func (u *User) IsBot() bool {
	return u.Bot != nil
}

// PartialUser is a sparse set of user field assignments. Nil fields are
// left untouched.
type PartialUser struct {
	Username      *string
	Discriminator *string
	DisplayName   *string
	Status        *string
	Flags         *UserFlags
}

func (p PartialUser) IsEmpty() bool {
	return p.Username == nil && p.Discriminator == nil && p.DisplayName == nil &&
		p.Status == nil && p.Flags == nil
}

// Apply merges the explicit fields of p onto u.
func (u *User) Apply(p PartialUser) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Discriminator != nil {
		u.Discriminator = *p.Discriminator
	}
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	if p.Flags != nil {
		u.Flags = *p.Flags
	}
}

// BotInformation is present on a user iff that user is a bot.
type BotInformation struct {
	OwnerID string    `json:"owner"`
	Model   *BotModel `json:"model,omitempty" validate:"omitempty"`
	Welcome *string   `json:"welcome,omitempty"`
}

// BotModel configures a prompt bot.
type BotModel struct {
	ModelName   string         `json:"model_name" validate:"required,max=128"`
	Prompts     PromptTemplate `json:"prompts"`
	Temperature float32        `json:"temperature" validate:"min=0,max=1"`
}

type PromptTemplate struct {
	SystemPrompt     string `json:"system_prompt"`
	RoleRequirements string `json:"role_requirements,omitempty"`
}

// DefaultBotModel is used for prompt bots created without a model.
func DefaultBotModel() BotModel {
	return BotModel{ModelName: "gpt-3.5-turbo"}
}

type UserResponse struct {
	ID            string          `json:"id"`
	Username      string          `json:"username"`
	Discriminator string          `json:"discriminator"`
	DisplayName   string          `json:"display_name,omitempty"`
	AvatarURL     string          `json:"avatar_url,omitempty"`
	Status        string          `json:"status"`
	Flags         UserFlags       `json:"flags,omitempty"`
	Bot           *BotInformation `json:"bot,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		DisplayName:   u.DisplayName,
		AvatarURL:     u.AvatarURL,
		Status:        u.Status,
		Flags:         u.Flags,
		Bot:           u.Bot,
		CreatedAt:     u.CreatedAt,
	}
}

type RegisterRequest struct {
	Username    string `json:"username" validate:"required,min=2,max=32,username"`
	DisplayName string `json:"display_name" validate:"required,max=32"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Username      string `json:"username" validate:"required"`
	Discriminator string `json:"discriminator,omitempty"`
	Password      string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}
