package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"botforge/apperr"
	"botforge/migrations"
	"botforge/models"
)

const (
	userColumns    = "id, username, discriminator, display_name, password_hash, avatar_url, status, flags, bot_owner, bot_model, bot_welcome, created_at"
	botColumns     = "id, owner, token, public, discoverable, analytics, bot_type, interactions_url, terms_of_service_url, privacy_policy_url, flags, server_invite, default_server, created_at"
	serverColumns  = "id, owner, name, description, channels, default_permissions, discoverable, created_at"
	channelColumns = "id, channel_type, server_id, name, description, nsfw, created_at"
)

// SQLite is the durable Store.
type SQLite struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens the database at path and applies the embedded migrations.
func NewSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "store")

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	// SQLite serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := applyMigrations(db.DB, logger); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("close database after migration failure", "error", closeErr)
		}
		return nil, err
	}

	logger.Info("database ready", "path", path)
	return &SQLite{db: db, logger: logger}, nil
}

func applyMigrations(db *sql.DB, logger *slog.Logger) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("no migrations to apply")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// classify maps a driver error onto the apperr taxonomy.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.NotFound, what+" not found")
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return apperr.Wrap(apperr.Conflict, what+" already exists", err)
		}
	}
	return apperr.Internal(what, err)
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal(what, err)
	}
	if n == 0 {
		return apperr.New(apperr.NotFound, what+" not found")
	}
	return nil
}

func now(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// Users

func (s *SQLite) InsertUser(ctx context.Context, user *models.User) error {
	user.CreatedAt = now(user.CreatedAt)
	row, err := newUserRow(user)
	if err != nil {
		return apperr.Internal("insert user", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :username, :discriminator, :display_name, :password_hash, :avatar_url, :status, :flags, :bot_owner, :bot_model, :bot_welcome, :created_at)
	`, row)
	if err != nil {
		s.logger.ErrorContext(ctx, "insert user", "user_id", user.ID, "error", err)
		return classify(err, "user")
	}
	return nil
}

func (s *SQLite) FetchUser(ctx context.Context, id string) (*models.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, classify(err, "user")
	}
	return row.model()
}

func (s *SQLite) FetchUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, apperr.Internal("fetch users", err)
	}
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, classify(err, "users")
	}

	byID := make(map[string]*models.User, len(rows))
	for _, r := range rows {
		u, err := r.model()
		if err != nil {
			return nil, apperr.Internal("fetch users", err)
		}
		byID[u.ID] = u
	}
	users := make([]models.User, 0, len(rows))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, *u)
			delete(byID, id)
		}
	}
	return users, nil
}

func (s *SQLite) FetchUserByUsername(ctx context.Context, username, discriminator string) (*models.User, error) {
	var row userRow
	var err error
	if discriminator == "" {
		err = s.db.GetContext(ctx, &row, `
			SELECT `+userColumns+` FROM users WHERE username = ?
			ORDER BY created_at, id LIMIT 1
		`, username)
	} else {
		err = s.db.GetContext(ctx, &row, `
			SELECT `+userColumns+` FROM users WHERE username = ? AND discriminator = ?
		`, username, discriminator)
	}
	if err != nil {
		return nil, classify(err, "user")
	}
	return row.model()
}

func (s *SQLite) FetchDiscriminators(ctx context.Context, username string) ([]string, error) {
	var out []string
	if err := s.db.SelectContext(ctx, &out, `SELECT discriminator FROM users WHERE username = ?`, username); err != nil {
		return nil, classify(err, "discriminators")
	}
	return out, nil
}

func (s *SQLite) UpdateUser(ctx context.Context, id string, partial models.PartialUser) error {
	var updates []string
	var args []interface{}

	if partial.Username != nil {
		updates = append(updates, "username = ?")
		args = append(args, *partial.Username)
	}
	if partial.Discriminator != nil {
		updates = append(updates, "discriminator = ?")
		args = append(args, *partial.Discriminator)
	}
	if partial.DisplayName != nil {
		updates = append(updates, "display_name = ?")
		args = append(args, *partial.DisplayName)
	}
	if partial.Status != nil {
		updates = append(updates, "status = ?")
		args = append(args, *partial.Status)
	}
	if partial.Flags != nil {
		updates = append(updates, "flags = ?")
		args = append(args, uint32(*partial.Flags))
	}

	if len(updates) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE users SET "+strings.Join(updates, ", ")+" WHERE id = ?", args...)
	if err != nil {
		s.logger.ErrorContext(ctx, "update user", "user_id", id, "error", err)
		return classify(err, "user")
	}
	return expectOne(res, "user")
}

// Bots

func (s *SQLite) InsertBot(ctx context.Context, bot *models.Bot) error {
	bot.CreatedAt = now(bot.CreatedAt)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO bots (`+botColumns+`)
		VALUES (:id, :owner, :token, :public, :discoverable, :analytics, :bot_type, :interactions_url, :terms_of_service_url, :privacy_policy_url, :flags, :server_invite, :default_server, :created_at)
	`, newBotRow(bot))
	if err != nil {
		s.logger.ErrorContext(ctx, "insert bot", "bot_id", bot.ID, "error", err)
		return classify(err, "bot")
	}
	return nil
}

func (s *SQLite) fetchBotWhere(ctx context.Context, where string, arg interface{}) (*models.Bot, error) {
	var row botRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+botColumns+` FROM bots WHERE `+where, arg); err != nil {
		return nil, classify(err, "bot")
	}
	b := row.model()
	return &b, nil
}

func (s *SQLite) FetchBot(ctx context.Context, id string) (*models.Bot, error) {
	return s.fetchBotWhere(ctx, "id = ?", id)
}

func (s *SQLite) FetchBotByToken(ctx context.Context, token string) (*models.Bot, error) {
	return s.fetchBotWhere(ctx, "token = ?", token)
}

func (s *SQLite) selectBots(ctx context.Context, query string, args ...interface{}) ([]models.Bot, error) {
	var rows []botRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classify(err, "bots")
	}
	bots := make([]models.Bot, len(rows))
	for i, r := range rows {
		bots[i] = r.model()
	}
	return bots, nil
}

func (s *SQLite) FetchBots(ctx context.Context, ids []string) ([]models.Bot, error) {
	if len(ids) == 0 {
		return []models.Bot{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+botColumns+` FROM bots WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, apperr.Internal("fetch bots", err)
	}
	return s.selectBots(ctx, s.db.Rebind(query), args...)
}

func (s *SQLite) FetchBotsByOwner(ctx context.Context, owner string) ([]models.Bot, error) {
	return s.selectBots(ctx, `SELECT `+botColumns+` FROM bots WHERE owner = ? ORDER BY id`, owner)
}

func (s *SQLite) CountBotsByOwner(ctx context.Context, owner string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM bots WHERE owner = ?`, owner); err != nil {
		return 0, classify(err, "bots")
	}
	return n, nil
}

func (s *SQLite) FetchDiscoverableBots(ctx context.Context) ([]models.Bot, error) {
	return s.selectBots(ctx, `SELECT `+botColumns+` FROM bots WHERE public = TRUE OR discoverable = TRUE ORDER BY id`)
}

func (s *SQLite) SearchBotsByType(ctx context.Context, botType models.BotType) ([]models.Bot, error) {
	if botType == models.BotTypeCustom {
		return s.selectBots(ctx, `SELECT `+botColumns+` FROM bots WHERE bot_type = ? OR bot_type IS NULL ORDER BY id`, string(botType))
	}
	return s.selectBots(ctx, `SELECT `+botColumns+` FROM bots WHERE bot_type = ? ORDER BY id`, string(botType))
}

func (s *SQLite) UpdateBot(ctx context.Context, id string, partial models.PartialBot, remove []models.FieldsBot) error {
	set := newAssignments()

	for _, f := range remove {
		if col := f.Column(); col != "" {
			set.add(col, "")
		}
	}
	if partial.Token != nil {
		set.add("token", *partial.Token)
	}
	if partial.Public != nil {
		set.add("public", *partial.Public)
	}
	if partial.Discoverable != nil {
		set.add("discoverable", *partial.Discoverable)
	}
	if partial.Analytics != nil {
		set.add("analytics", *partial.Analytics)
	}
	if partial.BotType != nil {
		set.add("bot_type", string(*partial.BotType))
	}
	if partial.InteractionsURL != nil {
		set.add("interactions_url", *partial.InteractionsURL)
	}
	if partial.TermsOfServiceURL != nil {
		set.add("terms_of_service_url", *partial.TermsOfServiceURL)
	}
	if partial.PrivacyPolicyURL != nil {
		set.add("privacy_policy_url", *partial.PrivacyPolicyURL)
	}
	if partial.Flags != nil {
		set.add("flags", uint32(*partial.Flags))
	}
	if partial.ServerInvite != nil {
		set.add("server_invite", *partial.ServerInvite)
	}
	if partial.DefaultServer != nil {
		set.add("default_server", *partial.DefaultServer)
	}

	if set.empty() {
		return nil
	}
	clause, args := set.build()
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE bots SET "+clause+" WHERE id = ?", args...)
	if err != nil {
		s.logger.ErrorContext(ctx, "update bot", "bot_id", id, "error", err)
		return classify(err, "bot")
	}
	return expectOne(res, "bot")
}

func (s *SQLite) DeleteBot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bots WHERE id = ?`, id)
	if err != nil {
		return classify(err, "bot")
	}
	return expectOne(res, "bot")
}

// Servers

func (s *SQLite) InsertServer(ctx context.Context, server *models.Server) error {
	server.CreatedAt = now(server.CreatedAt)
	row, err := newServerRow(server)
	if err != nil {
		return apperr.Internal("insert server", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO servers (`+serverColumns+`)
		VALUES (:id, :owner, :name, :description, :channels, :default_permissions, :discoverable, :created_at)
	`, row)
	if err != nil {
		s.logger.ErrorContext(ctx, "insert server", "server_id", server.ID, "error", err)
		return classify(err, "server")
	}
	return nil
}

func (s *SQLite) FetchServer(ctx context.Context, id string) (*models.Server, error) {
	var row serverRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+serverColumns+` FROM servers WHERE id = ?`, id); err != nil {
		return nil, classify(err, "server")
	}
	return row.model()
}

func (s *SQLite) RenameServer(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE servers SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return classify(err, "server")
	}
	return expectOne(res, "server")
}

// Channels

func (s *SQLite) InsertChannel(ctx context.Context, channel *models.Channel) error {
	channel.CreatedAt = now(channel.CreatedAt)
	row := channelRow{
		ID:          channel.ID,
		Type:        string(channel.Type),
		ServerID:    channel.ServerID,
		Name:        channel.Name,
		Description: channel.Description,
		NSFW:        channel.NSFW,
		CreatedAt:   channel.CreatedAt,
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO channels (`+channelColumns+`)
		VALUES (:id, :channel_type, :server_id, :name, :description, :nsfw, :created_at)
	`, row)
	if err != nil {
		s.logger.ErrorContext(ctx, "insert channel", "channel_id", channel.ID, "error", err)
		return classify(err, "channel")
	}
	return nil
}

func (s *SQLite) FetchChannels(ctx context.Context, ids []string) ([]models.Channel, error) {
	if len(ids) == 0 {
		return []models.Channel{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+channelColumns+` FROM channels WHERE id IN (?)`, ids)
	if err != nil {
		return nil, apperr.Internal("fetch channels", err)
	}
	var rows []channelRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, classify(err, "channels")
	}

	byID := make(map[string]channelRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	channels := make([]models.Channel, 0, len(rows))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			channels = append(channels, r.model())
		}
	}
	return channels, nil
}

// Invites

func (s *SQLite) InsertInvite(ctx context.Context, invite *models.Invite) error {
	invite.CreatedAt = now(invite.CreatedAt)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO invites (code, invite_type, server_id, creator, channel_id, created_at)
		VALUES (:code, :invite_type, :server_id, :creator, :channel_id, :created_at)
	`, inviteRow{
		Code:      invite.Code,
		Type:      string(invite.Type),
		ServerID:  invite.ServerID,
		Creator:   invite.Creator,
		ChannelID: invite.ChannelID,
		CreatedAt: invite.CreatedAt,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "insert invite", "code", invite.Code, "error", err)
		return classify(err, "invite")
	}
	return nil
}

func (s *SQLite) FetchInvite(ctx context.Context, code string) (*models.Invite, error) {
	var row inviteRow
	err := s.db.GetContext(ctx, &row, `
		SELECT code, invite_type, server_id, creator, channel_id, created_at
		FROM invites WHERE code = ?
	`, code)
	if err != nil {
		return nil, classify(err, "invite")
	}
	return &models.Invite{
		Code:      row.Code,
		Type:      models.InviteType(row.Type),
		ServerID:  row.ServerID,
		Creator:   row.Creator,
		ChannelID: row.ChannelID,
		CreatedAt: row.CreatedAt,
	}, nil
}

// Members

func (s *SQLite) InsertMember(ctx context.Context, member *models.Member) error {
	member.JoinedAt = now(member.JoinedAt)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO members (server_id, user_id, nickname, joined_at)
		VALUES (:server_id, :user_id, :nickname, :joined_at)
	`, memberRow{
		ServerID: member.ServerID,
		UserID:   member.UserID,
		Nickname: member.Nickname,
		JoinedAt: member.JoinedAt,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "insert member", "server_id", member.ServerID, "user_id", member.UserID, "error", err)
		return classify(err, "member")
	}
	return nil
}

func (s *SQLite) FetchMember(ctx context.Context, serverID, userID string) (*models.Member, error) {
	var row memberRow
	err := s.db.GetContext(ctx, &row, `
		SELECT server_id, user_id, nickname, joined_at
		FROM members WHERE server_id = ? AND user_id = ?
	`, serverID, userID)
	if err != nil {
		return nil, classify(err, "member")
	}
	return &models.Member{
		ServerID: row.ServerID,
		UserID:   row.UserID,
		Nickname: row.Nickname,
		JoinedAt: row.JoinedAt,
	}, nil
}

func (s *SQLite) DeleteMember(ctx context.Context, serverID, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE server_id = ? AND user_id = ?`, serverID, userID)
	if err != nil {
		return classify(err, "member")
	}
	return expectOne(res, "member")
}

// assignments is an ordered SET list where a later assignment to the same
// column replaces the earlier one.
type assignments struct {
	cols []string
	vals map[string]interface{}
}

func newAssignments() *assignments {
	return &assignments{vals: make(map[string]interface{})}
}

func (a *assignments) add(col string, val interface{}) {
	if _, ok := a.vals[col]; !ok {
		a.cols = append(a.cols, col)
	}
	a.vals[col] = val
}

func (a *assignments) empty() bool {
	return len(a.cols) == 0
}

func (a *assignments) build() (string, []interface{}) {
	parts := make([]string, len(a.cols))
	args := make([]interface{}, len(a.cols))
	for i, col := range a.cols {
		parts[i] = col + " = ?"
		args[i] = a.vals[col]
	}
	return strings.Join(parts, ", "), args
}
