package bots

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"botforge/apperr"
	"botforge/models"
	"botforge/store"
)

// Deps are the optional collaborators of a Manager. Nil values disable the
// corresponding behaviour.
type Deps struct {
	Logger    *slog.Logger
	Notifier  Notifier
	Restarter Restarter
	Events    EventPublisher
}

// Manager is the entry point for every bot identity mutation.
type Manager struct {
	store  store.Store
	cfg    Config
	logger *slog.Logger

	quota         *QuotaGuard
	unique        *UniquenessGuard
	provisioner   *Provisioner
	deprovisioner *Deprovisioner

	notifier  Notifier
	restarter Restarter
	events    EventPublisher

	newID    func() string
	newToken func() (string, error)
}

func NewManager(s store.Store, cfg Config, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		store:         s,
		cfg:           cfg,
		logger:        logger.With("component", "bots"),
		quota:         NewQuotaGuard(s, cfg.MaxBotsPerOwner),
		unique:        NewUniquenessGuard(s),
		provisioner:   NewProvisioner(s, cfg.Workspace, logger),
		deprovisioner: NewDeprovisioner(s, deps.Events, logger),
		notifier:      deps.Notifier,
		restarter:     deps.Restarter,
		events:        deps.Events,
		newID:         NewID,
		newToken:      NewToken,
	}
}

// Create mints a new bot identity owned by owner. When provisioning the
// default workspace fails the created account is still returned, together
// with an InternalError.
func (m *Manager) Create(ctx context.Context, owner *models.User, data models.DataCreateBot) (*Account, error) {
	if owner.IsBot() {
		return nil, apperr.New(apperr.IsBot, "bots cannot create bots")
	}
	data.Name = strings.TrimSpace(data.Name)
	if err := models.Validate(&data); err != nil {
		return nil, err
	}
	name, err := NormalizeUsername(data.Name)
	if err != nil {
		return nil, err
	}

	if err := m.quota.Check(ctx, owner.ID); err != nil {
		return nil, err
	}
	if boolValue(data.Public) || boolValue(data.Discoverable) {
		if err := m.unique.Check(ctx, name, ""); err != nil {
			return nil, err
		}
	}

	discriminator, err := FindDiscriminator(ctx, m.store, name, "")
	if err != nil {
		return nil, err
	}

	botType := data.Type()
	info := &models.BotInformation{OwnerID: owner.ID, Model: data.Model, Welcome: data.Welcome}
	if botType == models.BotTypePrompt && info.Model == nil {
		model := models.DefaultBotModel()
		info.Model = &model
	}

	id := m.newID()
	now := time.Now().UTC()
	log := m.logger.With("bot_id", id, "owner_id", owner.ID)

	user := models.User{
		ID:            id,
		Username:      name,
		Discriminator: discriminator,
		Status:        "offline",
		Bot:           info,
		CreatedAt:     now,
	}
	if err := m.store.InsertUser(ctx, &user); err != nil {
		return nil, err
	}

	token, err := m.newToken()
	if err != nil {
		log.ErrorContext(ctx, "generate bot token after user insert", "error", err)
		return nil, apperr.Internal("generate bot token", err)
	}
	bot := models.Bot{ID: id, Owner: owner.ID, Token: token, CreatedAt: now}
	bot.Apply(models.PartialBot{
		Public:            data.Public,
		Discoverable:      data.Discoverable,
		BotType:           &botType,
		InteractionsURL:   data.InteractionsURL,
		TermsOfServiceURL: data.TermsOfServiceURL,
		PrivacyPolicyURL:  data.PrivacyPolicyURL,
	})
	if err := m.store.InsertBot(ctx, &bot); err != nil {
		log.ErrorContext(ctx, "insert bot after user insert", "error", err)
		if apperr.Has(err, apperr.Conflict) {
			return nil, err
		}
		return nil, apperr.Internal("insert bot", err)
	}
	log.InfoContext(ctx, "bot created", "username", name, "bot_type", botType)

	account := &Account{Bot: bot, User: user}
	publish(m.events, owner.ID, models.WSTypeBotCreate, bot.ToResponse())

	if m.wantsWorkspace(&data) {
		ws, err := m.provisioner.Provision(ctx, owner, &account.Bot, &account.User)
		if err != nil {
			return account, apperr.Internal("provision default workspace", err)
		}
		account.Workspace = ws
		publish(m.events, owner.ID, models.WSTypeServerCreate, ws.Server)
	}

	if botType == models.BotTypePrompt {
		m.notify(ctx, account)
	}
	return account, nil
}

func (m *Manager) wantsWorkspace(data *models.DataCreateBot) bool {
	if !m.cfg.Workspace.Enabled {
		return false
	}
	if data.DefaultServer != nil {
		return *data.DefaultServer
	}
	return data.Type() == models.BotTypePrompt
}

// notify tells the notifier about a new prompt bot without blocking the
// caller or inheriting its cancellation.
func (m *Manager) notify(ctx context.Context, account *Account) {
	if m.notifier == nil {
		return
	}
	bot, user := account.Bot, account.User
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, m.cfg.NotifyTimeout)
		defer cancel()
		if err := m.notifier.BotCreated(ctx, &bot, &user); err != nil {
			m.logger.WarnContext(ctx, "notify bot service", "bot_id", bot.ID, "error", err)
		}
	}()
}

// Update removes the fields in remove, then merges partial. If the result
// is public or discoverable the uniqueness guard runs before the write.
// On success bot reflects the stored record.
func (m *Manager) Update(ctx context.Context, bot *models.Bot, partial models.PartialBot, remove []models.FieldsBot) error {
	next, partial, err := m.prepare(bot, partial, remove)
	if err != nil {
		return err
	}
	if next.Visible() {
		user, err := m.store.FetchUser(ctx, bot.ID)
		if err != nil {
			return apperr.Internal("fetch bot user", err)
		}
		if err := m.unique.Check(ctx, user.Username, bot.ID); err != nil {
			return err
		}
	}
	return m.commit(ctx, bot, next, partial, remove)
}

// prepare turns a Token removal into a rotation and returns the bot as it
// will look after the write.
func (m *Manager) prepare(bot *models.Bot, partial models.PartialBot, remove []models.FieldsBot) (models.Bot, models.PartialBot, error) {
	next := *bot
	for _, f := range remove {
		if f == models.FieldToken && partial.Token == nil {
			token, err := m.newToken()
			if err != nil {
				return next, partial, apperr.Internal("generate bot token", err)
			}
			partial.Token = &token
		}
		next.RemoveField(f, bot.Token)
	}
	next.Apply(partial)
	return next, partial, nil
}

func (m *Manager) commit(ctx context.Context, bot *models.Bot, next models.Bot, partial models.PartialBot, remove []models.FieldsBot) error {
	if partial.IsEmpty() && len(remove) == 0 {
		return nil
	}
	if err := m.store.UpdateBot(ctx, bot.ID, partial, remove); err != nil {
		if apperr.Has(err, apperr.NotFound) {
			return err
		}
		return apperr.Internal("update bot", err)
	}
	*bot = next
	publish(m.events, bot.Owner, models.WSTypeBotUpdate, bot.ToResponse())
	return nil
}

// Edit applies an owner's edit request. Bots the caller does not own are
// reported as NotFound. The response never carries the token.
func (m *Manager) Edit(ctx context.Context, owner *models.User, botID string, data models.DataEditBot) (*models.BotResponse, error) {
	if data.Name != nil {
		trimmed := strings.TrimSpace(*data.Name)
		data.Name = &trimmed
	}
	if err := models.Validate(&data); err != nil {
		return nil, err
	}
	bot, user, err := m.fetchOwned(ctx, owner, botID)
	if err != nil {
		return nil, err
	}

	name := user.Username
	if data.Name != nil {
		if name, err = NormalizeUsername(*data.Name); err != nil {
			return nil, err
		}
	}

	next, partial, err := m.prepare(bot, data.Partial(), data.Remove)
	if err != nil {
		return nil, err
	}
	if next.Visible() {
		if err := m.unique.Check(ctx, name, bot.ID); err != nil {
			return nil, err
		}
	}

	if name != user.Username {
		if err := m.rename(ctx, user, name); err != nil {
			return nil, err
		}
	}
	if err := m.commit(ctx, bot, next, partial, data.Remove); err != nil {
		return nil, err
	}

	resp := bot.ToResponse()
	return &resp, nil
}

func (m *Manager) rename(ctx context.Context, user *models.User, name string) error {
	discriminator, err := FindDiscriminator(ctx, m.store, name, user.Discriminator)
	if err != nil {
		return err
	}
	partial := models.PartialUser{Username: &name, Discriminator: &discriminator}
	if err := m.store.UpdateUser(ctx, user.ID, partial); err != nil {
		if apperr.Has(err, apperr.Conflict) {
			return apperr.New(apperr.UsernameTaken, "username is taken")
		}
		return apperr.Internal("rename bot user", err)
	}
	user.Apply(partial)
	return nil
}

// Delete removes a bot identity. It is safe to repeat: a second call on the
// same bot fails with NotFound and changes nothing.
func (m *Manager) Delete(ctx context.Context, bot *models.Bot) error {
	return m.deprovisioner.Delete(ctx, bot)
}

// DeleteOwned deletes botID if owner owns it.
func (m *Manager) DeleteOwned(ctx context.Context, owner *models.User, botID string) error {
	bot, err := m.store.FetchBot(ctx, botID)
	if err != nil {
		return err
	}
	if bot.Owner != owner.ID {
		return apperr.New(apperr.NotFound, "bot not found")
	}
	return m.Delete(ctx, bot)
}

// ProvisionWorkspace provisions the default workspace for a bot that has
// none, for example after a failed attempt during Create.
func (m *Manager) ProvisionWorkspace(ctx context.Context, owner *models.User, botID string) (*models.Workspace, error) {
	bot, user, err := m.fetchOwned(ctx, owner, botID)
	if err != nil {
		return nil, err
	}
	ws, err := m.provisioner.Provision(ctx, owner, bot, user)
	if err != nil {
		if apperr.Has(err, apperr.InvalidOperation) {
			return nil, err
		}
		return nil, apperr.Internal("provision default workspace", err)
	}
	publish(m.events, owner.ID, models.WSTypeServerCreate, ws.Server)
	return ws, nil
}

// Start asks the bot service to (re)start a prompt bot and returns the
// service's reply.
func (m *Manager) Start(ctx context.Context, owner *models.User, botID string) (json.RawMessage, error) {
	if owner.IsBot() {
		return nil, apperr.New(apperr.IsBot, "bots cannot start bots")
	}
	if m.restarter == nil {
		return nil, apperr.New(apperr.InvalidOperation, "bot service is not configured")
	}
	bot, err := m.store.FetchBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.Owner != owner.ID {
		return nil, apperr.New(apperr.NotFound, "bot not found")
	}
	if bot.Type() != models.BotTypePrompt {
		return nil, apperr.New(apperr.InvalidOperation, "only prompt bots can be started")
	}
	reply, err := m.restarter.Restart(ctx, bot.Token)
	if err != nil {
		m.logger.ErrorContext(ctx, "restart prompt bot", "bot_id", bot.ID, "error", err)
		return nil, apperr.Internal("restart bot", err)
	}
	return reply, nil
}

// fetchOwned loads a bot and its user concurrently and hides bots owned by
// someone else.
func (m *Manager) fetchOwned(ctx context.Context, owner *models.User, botID string) (*models.Bot, *models.User, error) {
	bot, user, err := m.fetchPair(ctx, botID)
	if err != nil {
		return nil, nil, err
	}
	if bot.Owner != owner.ID {
		return nil, nil, apperr.New(apperr.NotFound, "bot not found")
	}
	return bot, user, nil
}

func (m *Manager) fetchPair(ctx context.Context, botID string) (*models.Bot, *models.User, error) {
	var bot *models.Bot
	var user *models.User

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bot, err = m.store.FetchBot(gctx, botID)
		return err
	})
	g.Go(func() error {
		var err error
		user, err = m.store.FetchUser(gctx, botID)
		return err
	})
	if err := g.Wait(); err != nil {
		if apperr.Has(err, apperr.NotFound) {
			return nil, nil, apperr.New(apperr.NotFound, "bot not found")
		}
		return nil, nil, err
	}
	return bot, user, nil
}

// Fetch returns an owned bot with its user, token included.
func (m *Manager) Fetch(ctx context.Context, owner *models.User, botID string) (*models.BotWithUser, error) {
	bot, user, err := m.fetchOwned(ctx, owner, botID)
	if err != nil {
		return nil, err
	}
	return &models.BotWithUser{Bot: *bot, User: user.ToResponse()}, nil
}

// FetchOwned lists the caller's bots and their users, both sorted by id.
func (m *Manager) FetchOwned(ctx context.Context, owner *models.User) (*models.OwnedBotsResponse, error) {
	bots, err := m.store.FetchBotsByOwner(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(bots))
	for i, b := range bots {
		ids[i] = b.ID
	}
	users, err := m.store.FetchUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	sort.Slice(bots, func(i, j int) bool { return bots[i].ID < bots[j].ID })
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	resp := &models.OwnedBotsResponse{Bots: bots, Users: make([]models.UserResponse, len(users))}
	for i := range users {
		resp.Users[i] = users[i].ToResponse()
	}
	return resp, nil
}

// FetchPublic returns the directory card for a bot. Private bots are only
// visible to their owner.
func (m *Manager) FetchPublic(ctx context.Context, caller *models.User, botID string) (*models.PublicBot, error) {
	bot, user, err := m.fetchPair(ctx, botID)
	if err != nil {
		return nil, err
	}
	if !bot.Public && bot.Owner != caller.ID {
		return nil, apperr.New(apperr.NotFound, "bot not found")
	}
	pb := models.NewPublicBot(bot, user)
	return &pb, nil
}

// Invite returns the invite to a bot's default workspace.
func (m *Manager) Invite(ctx context.Context, caller *models.User, botID string) (*models.InviteResponse, error) {
	bot, err := m.store.FetchBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	if !bot.Visible() && bot.Owner != caller.ID {
		return nil, apperr.New(apperr.NotFound, "bot not found")
	}
	if !bot.HasWorkspace() {
		return nil, apperr.New(apperr.NotFound, "bot has no default workspace")
	}
	inv, err := m.store.FetchInvite(ctx, *bot.ServerInvite)
	if err != nil {
		return nil, err
	}
	return &models.InviteResponse{Code: inv.Code, Server: inv.ServerID, Channel: inv.ChannelID}, nil
}

// FetchDiscoverable lists every public or discoverable bot.
func (m *Manager) FetchDiscoverable(ctx context.Context) ([]models.PublicBot, error) {
	bots, err := m.store.FetchDiscoverableBots(ctx)
	if err != nil {
		return nil, err
	}
	return m.cards(ctx, bots)
}

// SearchByType lists visible bots of the given type.
func (m *Manager) SearchByType(ctx context.Context, botType models.BotType) ([]models.PublicBot, error) {
	if botType != models.BotTypeCustom && botType != models.BotTypePrompt {
		return nil, apperr.New(apperr.ValidationFailed, "unknown bot type "+string(botType))
	}
	bots, err := m.store.SearchBotsByType(ctx, botType)
	if err != nil {
		return nil, err
	}
	visible := bots[:0]
	for _, b := range bots {
		if b.Visible() {
			visible = append(visible, b)
		}
	}
	return m.cards(ctx, visible)
}

func (m *Manager) cards(ctx context.Context, bots []models.Bot) ([]models.PublicBot, error) {
	ids := make([]string, len(bots))
	for i, b := range bots {
		ids[i] = b.ID
	}
	users, err := m.store.FetchUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	out := make([]models.PublicBot, 0, len(bots))
	for i := range bots {
		u, ok := byID[bots[i].ID]
		if !ok || u.IsDeleted() {
			continue
		}
		out = append(out, models.NewPublicBot(&bots[i], u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Authenticate resolves a bot token to the bot's user.
func (m *Manager) Authenticate(ctx context.Context, token string) (*models.User, error) {
	bot, err := m.store.FetchBotByToken(ctx, token)
	if err != nil {
		if apperr.Has(err, apperr.NotFound) {
			return nil, apperr.New(apperr.Unauthorized, "invalid bot token")
		}
		return nil, err
	}
	user, err := m.store.FetchUser(ctx, bot.ID)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted() {
		return nil, apperr.New(apperr.Unauthorized, "bot has been deleted")
	}
	return user, nil
}

func boolValue(b *bool) bool {
	return b != nil && *b
}
