// Package store persists users, bots and the workspaces provisioned for
// them. Every fetch of an absent record fails with apperr.NotFound and every
// insert of an existing key fails with apperr.Conflict. Only single-row
// writes are atomic.
package store

import (
	"context"

	"botforge/models"
)

// Store is the persistence contract used by the bot lifecycle core.
type Store interface {
	// Users
	InsertUser(ctx context.Context, user *models.User) error
	FetchUser(ctx context.Context, id string) (*models.User, error)
	// FetchUsers returns the users that exist among ids, in request order.
	FetchUsers(ctx context.Context, ids []string) ([]models.User, error)
	FetchUserByUsername(ctx context.Context, username, discriminator string) (*models.User, error)
	// FetchDiscriminators lists discriminators already used with username.
	FetchDiscriminators(ctx context.Context, username string) ([]string, error)
	UpdateUser(ctx context.Context, id string, partial models.PartialUser) error

	// Bots
	InsertBot(ctx context.Context, bot *models.Bot) error
	FetchBot(ctx context.Context, id string) (*models.Bot, error)
	FetchBots(ctx context.Context, ids []string) ([]models.Bot, error)
	FetchBotByToken(ctx context.Context, token string) (*models.Bot, error)
	FetchBotsByOwner(ctx context.Context, owner string) ([]models.Bot, error)
	CountBotsByOwner(ctx context.Context, owner string) (int, error)
	// FetchDiscoverableBots returns every bot that is public or discoverable.
	FetchDiscoverableBots(ctx context.Context) ([]models.Bot, error)
	SearchBotsByType(ctx context.Context, botType models.BotType) ([]models.Bot, error)
	// UpdateBot clears the columns named by remove and then writes partial,
	// in a single statement.
	UpdateBot(ctx context.Context, id string, partial models.PartialBot, remove []models.FieldsBot) error
	DeleteBot(ctx context.Context, id string) error

	// Servers
	InsertServer(ctx context.Context, server *models.Server) error
	FetchServer(ctx context.Context, id string) (*models.Server, error)
	RenameServer(ctx context.Context, id, name string) error

	// Channels
	InsertChannel(ctx context.Context, channel *models.Channel) error
	// FetchChannels returns the channels that exist among ids, in request order.
	FetchChannels(ctx context.Context, ids []string) ([]models.Channel, error)

	// Invites
	InsertInvite(ctx context.Context, invite *models.Invite) error
	FetchInvite(ctx context.Context, code string) (*models.Invite, error)

	// Members
	InsertMember(ctx context.Context, member *models.Member) error
	FetchMember(ctx context.Context, serverID, userID string) (*models.Member, error)
	DeleteMember(ctx context.Context, serverID, userID string) error

	Close() error
}
