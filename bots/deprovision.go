package bots

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"botforge/apperr"
	"botforge/models"
	"botforge/store"
)

const deletedSuffix = " (deleted)"

// Deprovisioner removes a bot identity.
type Deprovisioner struct {
	store  store.Store
	events EventPublisher
	logger *slog.Logger
}

func NewDeprovisioner(s store.Store, events EventPublisher, logger *slog.Logger) *Deprovisioner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Deprovisioner{store: s, events: events, logger: logger.With("component", "deprovisioner")}
}

// Delete runs, in order:
//
//  1. mark the paired user deleted (skipped if already marked; failure aborts)
//  2. delete the bot record (NotFound when it is already gone)
//  3. rename the default server and remove the bot's membership
//
// Step 3 failures are logged only. Server and channels are never removed.
func (d *Deprovisioner) Delete(ctx context.Context, bot *models.Bot) error {
	log := d.logger.With("bot_id", bot.ID, "owner_id", bot.Owner)

	user, err := d.store.FetchUser(ctx, bot.ID)
	if err != nil {
		log.ErrorContext(ctx, "fetch bot user", "error", err)
		return apperr.Internal("fetch bot user", err)
	}
	if !user.IsDeleted() {
		flags := user.Flags | models.UserFlagDeleted
		if err := d.store.UpdateUser(ctx, bot.ID, models.PartialUser{Flags: &flags}); err != nil {
			log.ErrorContext(ctx, "mark bot user deleted", "error", err)
			return apperr.Internal("mark bot user deleted", err)
		}
		payload := models.UserUpdatePayload{ID: bot.ID, Flags: flags}
		publish(d.events, bot.Owner, models.WSTypeUserUpdate, payload)
		publish(d.events, bot.ID, models.WSTypeUserUpdate, payload)
	}

	if err := d.store.DeleteBot(ctx, bot.ID); err != nil {
		if apperr.Has(err, apperr.NotFound) {
			return err
		}
		log.ErrorContext(ctx, "bot user marked deleted but bot record remains", "error", err)
		return apperr.Internal("delete bot", err)
	}
	publish(d.events, bot.Owner, models.WSTypeBotDelete, models.BotDeletePayload{ID: bot.ID})

	if bot.DefaultServer != nil {
		d.releaseWorkspace(ctx, log, bot.ID, *bot.DefaultServer)
	}

	log.InfoContext(ctx, "bot deleted")
	return nil
}

func (d *Deprovisioner) releaseWorkspace(ctx context.Context, log *slog.Logger, botID, serverID string) {
	log = log.With("server_id", serverID)

	server, err := d.store.FetchServer(ctx, serverID)
	switch {
	case err != nil:
		log.WarnContext(ctx, "fetch default server", "error", err)
	case !strings.HasSuffix(server.Name, deletedSuffix):
		if err := d.store.RenameServer(ctx, serverID, server.Name+deletedSuffix); err != nil {
			log.WarnContext(ctx, "rename default server", "error", err)
		}
	}

	if err := d.store.DeleteMember(ctx, serverID, botID); err != nil && !apperr.Has(err, apperr.NotFound) {
		log.WarnContext(ctx, "remove bot membership", "error", err)
	}
}
