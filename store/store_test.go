package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"botforge/apperr"
	"botforge/models"
)

func newTestStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "botforge.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func seedBot(t *testing.T, ctx context.Context, s Store, id, owner, username string) *models.Bot {
	t.Helper()

	welcome := "hello"
	user := &models.User{
		ID:            id,
		Username:      username,
		Discriminator: "0001",
		Status:        "offline",
		Bot: &models.BotInformation{
			OwnerID: owner,
			Model:   &models.BotModel{ModelName: "gpt-3.5-turbo", Temperature: 0.5},
			Welcome: &welcome,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.InsertUser(ctx, user); err != nil {
		t.Fatalf("InsertUser() error = %v", err)
	}
	bot := &models.Bot{ID: id, Owner: owner, Token: "token-" + id, InteractionsURL: "https://example.com/hook"}
	if err := s.InsertBot(ctx, bot); err != nil {
		t.Fatalf("InsertBot() error = %v", err)
	}
	return bot
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	for name, s := range newTestStores(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			t.Run("users", func(t *testing.T) {
				seedBot(t, ctx, s, "u-01", "owner-1", "helper")

				u, err := s.FetchUser(ctx, "u-01")
				if err != nil {
					t.Fatalf("FetchUser() error = %v", err)
				}
				if u.Bot == nil || u.Bot.OwnerID != "owner-1" {
					t.Fatalf("FetchUser().Bot = %+v, want owner-1", u.Bot)
				}
				if u.Bot.Model == nil || u.Bot.Model.Temperature != 0.5 {
					t.Errorf("FetchUser().Bot.Model = %+v", u.Bot.Model)
				}
				if u.Bot.Welcome == nil || *u.Bot.Welcome != "hello" {
					t.Errorf("FetchUser().Bot.Welcome = %v", u.Bot.Welcome)
				}

				if _, err := s.FetchUser(ctx, "missing"); !apperr.Has(err, apperr.NotFound) {
					t.Errorf("FetchUser(missing) error = %v, want NotFound", err)
				}

				dup := &models.User{ID: "u-01", Username: "other", Discriminator: "0002"}
				if err := s.InsertUser(ctx, dup); !apperr.Has(err, apperr.Conflict) {
					t.Errorf("InsertUser(duplicate id) error = %v, want Conflict", err)
				}

				flags := models.UserFlagDeleted
				if err := s.UpdateUser(ctx, "u-01", models.PartialUser{Flags: &flags}); err != nil {
					t.Fatalf("UpdateUser() error = %v", err)
				}
				u, _ = s.FetchUser(ctx, "u-01")
				if !u.IsDeleted() {
					t.Errorf("user flags = %d, want deleted", u.Flags)
				}
				if err := s.UpdateUser(ctx, "missing", models.PartialUser{Flags: &flags}); !apperr.Has(err, apperr.NotFound) {
					t.Errorf("UpdateUser(missing) error = %v, want NotFound", err)
				}

				discs, err := s.FetchDiscriminators(ctx, "helper")
				if err != nil || len(discs) != 1 || discs[0] != "0001" {
					t.Errorf("FetchDiscriminators() = %v, %v", discs, err)
				}

				users, err := s.FetchUsers(ctx, []string{"missing", "u-01"})
				if err != nil || len(users) != 1 || users[0].ID != "u-01" {
					t.Errorf("FetchUsers() = %v, %v", users, err)
				}
			})

			t.Run("bots", func(t *testing.T) {
				seedBot(t, ctx, s, "b-01", "owner-2", "alpha")
				seedBot(t, ctx, s, "b-02", "owner-2", "beta")

				n, err := s.CountBotsByOwner(ctx, "owner-2")
				if err != nil || n != 2 {
					t.Fatalf("CountBotsByOwner() = %d, %v, want 2", n, err)
				}

				if err := s.UpdateBot(ctx, "b-01", models.PartialBot{Public: boolPtr(true)}, []models.FieldsBot{models.FieldInteractionsURL}); err != nil {
					t.Fatalf("UpdateBot() error = %v", err)
				}
				b, err := s.FetchBot(ctx, "b-01")
				if err != nil {
					t.Fatalf("FetchBot() error = %v", err)
				}
				if !b.Public || b.InteractionsURL != "" {
					t.Errorf("FetchBot() = %+v, want public with cleared interactions url", b)
				}

				// A value in partial wins over a removal of the same column.
				if err := s.UpdateBot(ctx, "b-02", models.PartialBot{InteractionsURL: strPtr("https://new")}, []models.FieldsBot{models.FieldInteractionsURL}); err != nil {
					t.Fatalf("UpdateBot() error = %v", err)
				}
				b, _ = s.FetchBot(ctx, "b-02")
				if b.InteractionsURL != "https://new" {
					t.Errorf("InteractionsURL = %q, want https://new", b.InteractionsURL)
				}

				visible, err := s.FetchDiscoverableBots(ctx)
				if err != nil {
					t.Fatalf("FetchDiscoverableBots() error = %v", err)
				}
				found := false
				for _, v := range visible {
					if v.ID == "b-02" {
						t.Errorf("private bot b-02 listed as discoverable")
					}
					if v.ID == "b-01" {
						found = true
					}
				}
				if !found {
					t.Errorf("public bot b-01 missing from discoverable list")
				}

				byToken, err := s.FetchBotByToken(ctx, "token-b-02")
				if err != nil || byToken.ID != "b-02" {
					t.Errorf("FetchBotByToken() = %v, %v", byToken, err)
				}

				custom, err := s.SearchBotsByType(ctx, models.BotTypeCustom)
				if err != nil || len(custom) < 2 {
					t.Errorf("SearchBotsByType(custom) = %d bots, %v", len(custom), err)
				}

				if err := s.DeleteBot(ctx, "b-02"); err != nil {
					t.Fatalf("DeleteBot() error = %v", err)
				}
				if err := s.DeleteBot(ctx, "b-02"); !apperr.Has(err, apperr.NotFound) {
					t.Errorf("second DeleteBot() error = %v, want NotFound", err)
				}
				if _, err := s.FetchBot(ctx, "b-02"); !apperr.Has(err, apperr.NotFound) {
					t.Errorf("FetchBot(deleted) error = %v, want NotFound", err)
				}
			})

			t.Run("workspace", func(t *testing.T) {
				ch := []string{"c-1", "c-2"}
				for _, id := range ch {
					if err := s.InsertChannel(ctx, &models.Channel{ID: id, Type: models.ChannelTypeText, ServerID: "s-1", Name: id}); err != nil {
						t.Fatalf("InsertChannel() error = %v", err)
					}
				}
				server := &models.Server{ID: "s-1", Owner: "owner-3", Name: "home", Channels: ch, DefaultPermissions: models.DefaultPermissionServer}
				if err := s.InsertServer(ctx, server); err != nil {
					t.Fatalf("InsertServer() error = %v", err)
				}
				if err := s.InsertMember(ctx, &models.Member{ServerID: "s-1", UserID: "owner-3"}); err != nil {
					t.Fatalf("InsertMember() error = %v", err)
				}
				if err := s.InsertMember(ctx, &models.Member{ServerID: "s-1", UserID: "owner-3"}); !apperr.Has(err, apperr.Conflict) {
					t.Errorf("duplicate InsertMember() error = %v, want Conflict", err)
				}
				if err := s.InsertInvite(ctx, &models.Invite{Code: "abcd1234", Type: models.InviteTypeServer, ServerID: "s-1", Creator: "owner-3", ChannelID: "c-1"}); err != nil {
					t.Fatalf("InsertInvite() error = %v", err)
				}

				got, err := s.FetchServer(ctx, "s-1")
				if err != nil {
					t.Fatalf("FetchServer() error = %v", err)
				}
				if len(got.Channels) != 2 || got.Channels[0] != "c-1" {
					t.Errorf("server channels = %v", got.Channels)
				}
				if got.DefaultPermissions != models.DefaultPermissionServer {
					t.Errorf("DefaultPermissions = %d", got.DefaultPermissions)
				}

				chans, err := s.FetchChannels(ctx, []string{"c-2", "c-1"})
				if err != nil || len(chans) != 2 || chans[0].ID != "c-2" {
					t.Errorf("FetchChannels() = %v, %v", chans, err)
				}

				inv, err := s.FetchInvite(ctx, "abcd1234")
				if err != nil || inv.ChannelID != "c-1" {
					t.Errorf("FetchInvite() = %v, %v", inv, err)
				}

				if err := s.RenameServer(ctx, "s-1", "home (deleted)"); err != nil {
					t.Fatalf("RenameServer() error = %v", err)
				}
				if err := s.RenameServer(ctx, "missing", "x"); !apperr.Has(err, apperr.NotFound) {
					t.Errorf("RenameServer(missing) error = %v, want NotFound", err)
				}
				if err := s.DeleteMember(ctx, "s-1", "owner-3"); err != nil {
					t.Fatalf("DeleteMember() error = %v", err)
				}
				if _, err := s.FetchMember(ctx, "s-1", "owner-3"); !apperr.Has(err, apperr.NotFound) {
					t.Errorf("FetchMember(deleted) error = %v, want NotFound", err)
				}
			})
		})
	}
}

func TestAssignments(t *testing.T) {
	t.Parallel()

	a := newAssignments()
	a.add("interactions_url", "")
	a.add("public", true)
	a.add("interactions_url", "https://x")

	clause, args := a.build()
	if clause != "interactions_url = ?, public = ?" {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 2 || args[0] != "https://x" || args[1] != true {
		t.Errorf("args = %v", args)
	}
}
