package store

import (
	"context"
	"sort"
	"sync"

	"botforge/apperr"
	"botforge/models"
)

// Memory is an in-process Store holding copies of every record. It follows
// the same contract as SQLite and is what the core's tests run against.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]models.User
	bots     map[string]models.Bot
	servers  map[string]models.Server
	channels map[string]models.Channel
	invites  map[string]models.Invite
	members  map[memberKey]models.Member
}

type memberKey struct {
	server string
	user   string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]models.User),
		bots:     make(map[string]models.Bot),
		servers:  make(map[string]models.Server),
		channels: make(map[string]models.Channel),
		invites:  make(map[string]models.Invite),
		members:  make(map[memberKey]models.Member),
	}
}

func (m *Memory) Close() error { return nil }

func notFound(what string) error {
	return apperr.New(apperr.NotFound, what+" not found")
}

func conflict(what string) error {
	return apperr.New(apperr.Conflict, what+" already exists")
}

func copyUser(u models.User) models.User {
	if u.Bot != nil {
		info := *u.Bot
		if info.Model != nil {
			model := *info.Model
			info.Model = &model
		}
		if info.Welcome != nil {
			w := *info.Welcome
			info.Welcome = &w
		}
		u.Bot = &info
	}
	return u
}

func copyBot(b models.Bot) models.Bot {
	clean := models.Bot{
		ID:                b.ID,
		Owner:             b.Owner,
		Token:             b.Token,
		Public:            b.Public,
		Discoverable:      b.Discoverable,
		Analytics:         b.Analytics,
		InteractionsURL:   b.InteractionsURL,
		TermsOfServiceURL: b.TermsOfServiceURL,
		PrivacyPolicyURL:  b.PrivacyPolicyURL,
		Flags:             b.Flags,
		CreatedAt:         b.CreatedAt,
	}
	clean.Apply(models.PartialBot{
		BotType:       b.BotType,
		ServerInvite:  b.ServerInvite,
		DefaultServer: b.DefaultServer,
	})
	return clean
}

func copyServer(s models.Server) models.Server {
	s.Channels = append([]string(nil), s.Channels...)
	return s
}

// Users

func (m *Memory) InsertUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; ok {
		return conflict("user")
	}
	for _, u := range m.users {
		if u.Username == user.Username && u.Discriminator == user.Discriminator {
			return conflict("user")
		}
	}
	user.CreatedAt = now(user.CreatedAt)
	m.users[user.ID] = copyUser(*user)
	return nil
}

func (m *Memory) FetchUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, notFound("user")
	}
	u = copyUser(u)
	return &u, nil
}

func (m *Memory) FetchUsers(_ context.Context, ids []string) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool, len(ids))
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok && !seen[id] {
			seen[id] = true
			users = append(users, copyUser(u))
		}
	}
	return users, nil
}

func (m *Memory) FetchUserByUsername(_ context.Context, username, discriminator string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *models.User
	for _, u := range m.users {
		if u.Username != username {
			continue
		}
		if discriminator != "" && u.Discriminator != discriminator {
			continue
		}
		if found == nil || u.CreatedAt.Before(found.CreatedAt) ||
			(u.CreatedAt.Equal(found.CreatedAt) && u.ID < found.ID) {
			c := copyUser(u)
			found = &c
		}
	}
	if found == nil {
		return nil, notFound("user")
	}
	return found, nil
}

func (m *Memory) FetchDiscriminators(_ context.Context, username string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for _, u := range m.users {
		if u.Username == username {
			out = append(out, u.Discriminator)
		}
	}
	return out, nil
}

func (m *Memory) UpdateUser(_ context.Context, id string, partial models.PartialUser) error {
	if partial.IsEmpty() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return notFound("user")
	}
	u.Apply(partial)
	for otherID, other := range m.users {
		if otherID != id && other.Username == u.Username && other.Discriminator == u.Discriminator {
			return conflict("user")
		}
	}
	m.users[id] = u
	return nil
}

// Bots

func (m *Memory) InsertBot(_ context.Context, bot *models.Bot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bots[bot.ID]; ok {
		return conflict("bot")
	}
	for _, b := range m.bots {
		if b.Token == bot.Token {
			return conflict("bot")
		}
	}
	bot.CreatedAt = now(bot.CreatedAt)
	m.bots[bot.ID] = copyBot(*bot)
	return nil
}

func (m *Memory) FetchBot(_ context.Context, id string) (*models.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bots[id]
	if !ok {
		return nil, notFound("bot")
	}
	b = copyBot(b)
	return &b, nil
}

func (m *Memory) FetchBotByToken(_ context.Context, token string) (*models.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.bots {
		if b.Token == token {
			b = copyBot(b)
			return &b, nil
		}
	}
	return nil, notFound("bot")
}

// filterBots returns copies of the bots matching keep, ordered by id.
func (m *Memory) filterBots(keep func(models.Bot) bool) []models.Bot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Bot{}
	for _, b := range m.bots {
		if keep(b) {
			out = append(out, copyBot(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) FetchBots(_ context.Context, ids []string) ([]models.Bot, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return m.filterBots(func(b models.Bot) bool { return want[b.ID] }), nil
}

func (m *Memory) FetchBotsByOwner(_ context.Context, owner string) ([]models.Bot, error) {
	return m.filterBots(func(b models.Bot) bool { return b.Owner == owner }), nil
}

func (m *Memory) CountBotsByOwner(ctx context.Context, owner string) (int, error) {
	bots, err := m.FetchBotsByOwner(ctx, owner)
	return len(bots), err
}

func (m *Memory) FetchDiscoverableBots(_ context.Context) ([]models.Bot, error) {
	return m.filterBots(func(b models.Bot) bool { return b.Visible() }), nil
}

func (m *Memory) SearchBotsByType(_ context.Context, botType models.BotType) ([]models.Bot, error) {
	return m.filterBots(func(b models.Bot) bool { return b.Type() == botType }), nil
}

func (m *Memory) UpdateBot(_ context.Context, id string, partial models.PartialBot, remove []models.FieldsBot) error {
	if partial.IsEmpty() && len(remove) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bots[id]
	if !ok {
		return notFound("bot")
	}
	for _, f := range remove {
		if f.Column() != "" {
			b.RemoveField(f, b.Token)
		}
	}
	b.Apply(partial)
	if partial.Token != nil {
		for otherID, other := range m.bots {
			if otherID != id && other.Token == b.Token {
				return conflict("bot")
			}
		}
	}
	m.bots[id] = b
	return nil
}

func (m *Memory) DeleteBot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bots[id]; !ok {
		return notFound("bot")
	}
	delete(m.bots, id)
	return nil
}

// Servers

func (m *Memory) InsertServer(_ context.Context, server *models.Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.servers[server.ID]; ok {
		return conflict("server")
	}
	server.CreatedAt = now(server.CreatedAt)
	m.servers[server.ID] = copyServer(*server)
	return nil
}

func (m *Memory) FetchServer(_ context.Context, id string) (*models.Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.servers[id]
	if !ok {
		return nil, notFound("server")
	}
	s = copyServer(s)
	return &s, nil
}

func (m *Memory) RenameServer(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.servers[id]
	if !ok {
		return notFound("server")
	}
	s.Name = name
	m.servers[id] = s
	return nil
}

// Channels

func (m *Memory) InsertChannel(_ context.Context, channel *models.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.channels[channel.ID]; ok {
		return conflict("channel")
	}
	channel.CreatedAt = now(channel.CreatedAt)
	m.channels[channel.ID] = *channel
	return nil
}

func (m *Memory) FetchChannels(_ context.Context, ids []string) ([]models.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Channel, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.channels[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Invites

func (m *Memory) InsertInvite(_ context.Context, invite *models.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.invites[invite.Code]; ok {
		return conflict("invite")
	}
	invite.CreatedAt = now(invite.CreatedAt)
	m.invites[invite.Code] = *invite
	return nil
}

func (m *Memory) FetchInvite(_ context.Context, code string) (*models.Invite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invites[code]
	if !ok {
		return nil, notFound("invite")
	}
	return &inv, nil
}

// Members

func (m *Memory) InsertMember(_ context.Context, member *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memberKey{member.ServerID, member.UserID}
	if _, ok := m.members[key]; ok {
		return conflict("member")
	}
	member.JoinedAt = now(member.JoinedAt)
	m.members[key] = *member
	return nil
}

func (m *Memory) FetchMember(_ context.Context, serverID, userID string) (*models.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mem, ok := m.members[memberKey{serverID, userID}]
	if !ok {
		return nil, notFound("member")
	}
	return &mem, nil
}

func (m *Memory) DeleteMember(_ context.Context, serverID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memberKey{serverID, userID}
	if _, ok := m.members[key]; !ok {
		return notFound("member")
	}
	delete(m.members, key)
	return nil
}
