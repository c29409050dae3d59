package bots

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"botforge/apperr"
	"botforge/models"
	"botforge/store"
)

// Provisioner creates a bot's default workspace.
type Provisioner struct {
	store  store.Store
	cfg    WorkspaceConfig
	logger *slog.Logger

	newID   func() string
	newCode func(int) (string, error)
}

func NewProvisioner(s store.Store, cfg WorkspaceConfig, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Provisioner{
		store:   s,
		cfg:     cfg,
		logger:  logger.With("component", "provisioner"),
		newID:   NewID,
		newCode: NewInviteCode,
	}
}

// Provision creates the channels, then the server listing them, the owner
// and bot memberships and an invite to the first channel, and finally
// records the invite and server on the bot. The first failing step ends
// the sequence; nothing already written is undone. On success bot is
// updated in place.
func (p *Provisioner) Provision(ctx context.Context, owner *models.User, bot *models.Bot, botUser *models.User) (*models.Workspace, error) {
	if bot.DefaultServer != nil || bot.ServerInvite != nil {
		return nil, apperr.New(apperr.InvalidOperation, "bot already has a default workspace")
	}
	if owner.ID != bot.Owner {
		return nil, apperr.New(apperr.InvalidOperation, "workspace owner must own the bot")
	}
	if len(p.cfg.Channels) == 0 {
		return nil, apperr.New(apperr.InvalidOperation, "no workspace channels configured")
	}

	serverID := p.newID()
	ws := &models.Workspace{}
	created := make([]string, 0, len(p.cfg.Channels))
	log := p.logger.With("bot_id", bot.ID, "owner_id", owner.ID, "server_id", serverID)

	fail := func(step string, err error) (*models.Workspace, error) {
		log.ErrorContext(ctx, "workspace provisioning aborted",
			"step", step, "channel_ids", created, "error", err)
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	now := time.Now().UTC()
	for _, name := range p.cfg.Channels {
		ch := models.Channel{
			ID:        p.newID(),
			Type:      models.ChannelTypeText,
			ServerID:  serverID,
			Name:      name,
			CreatedAt: now,
		}
		if err := p.store.InsertChannel(ctx, &ch); err != nil {
			return fail("insert channel "+name, err)
		}
		created = append(created, ch.ID)
		ws.Channels = append(ws.Channels, ch)
	}

	ws.Server = models.Server{
		ID:                 serverID,
		Owner:              bot.Owner,
		Name:               fmt.Sprintf(p.cfg.ServerNameFormat, botUser.Username),
		Channels:           created,
		DefaultPermissions: models.DefaultPermissionServer,
		CreatedAt:          now,
	}
	if err := p.store.InsertServer(ctx, &ws.Server); err != nil {
		return fail("insert server", err)
	}

	for _, userID := range []string{owner.ID, bot.ID} {
		m := models.Member{ServerID: serverID, UserID: userID, JoinedAt: now}
		if err := p.store.InsertMember(ctx, &m); err != nil {
			return fail("insert member "+userID, err)
		}
	}

	code, err := p.newCode(p.cfg.InviteCodeLength)
	if err != nil {
		return fail("generate invite code", err)
	}
	ws.Invite = models.Invite{
		Code:      code,
		Type:      models.InviteTypeServer,
		ServerID:  serverID,
		Creator:   owner.ID,
		ChannelID: created[0],
		CreatedAt: now,
	}
	if err := p.store.InsertInvite(ctx, &ws.Invite); err != nil {
		return fail("insert invite", err)
	}

	partial := models.PartialBot{ServerInvite: &code, DefaultServer: &serverID}
	if err := p.store.UpdateBot(ctx, bot.ID, partial, nil); err != nil {
		return fail("link workspace to bot", err)
	}
	bot.Apply(partial)

	log.InfoContext(ctx, "workspace provisioned", "invite", code, "channel_ids", created)
	return ws, nil
}
