package bots

import (
	"context"

	"botforge/apperr"
	"botforge/store"
)

// UniquenessGuard keeps the usernames of public and discoverable bots
// distinct. It reads and then decides; two concurrent writers converging on
// one name can both pass.
type UniquenessGuard struct {
	store store.Store
}

func NewUniquenessGuard(s store.Store) *UniquenessGuard {
	return &UniquenessGuard{store: s}
}

// Check fails with DuplicatePublicBotName if a visible bot other than
// excludingBotID is named candidate. Comparison is exact.
func (g *UniquenessGuard) Check(ctx context.Context, candidate, excludingBotID string) error {
	bots, err := g.store.FetchDiscoverableBots(ctx)
	if err != nil {
		return apperr.Internal("fetch discoverable bots", err)
	}

	ids := make([]string, 0, len(bots))
	for _, b := range bots {
		if b.ID != excludingBotID {
			ids = append(ids, b.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	users, err := g.store.FetchUsers(ctx, ids)
	if err != nil {
		return apperr.Internal("fetch bot users", err)
	}
	for _, u := range users {
		if u.Username == candidate {
			return apperr.New(apperr.DuplicatePublicBotName, "a public bot named "+candidate+" already exists")
		}
	}
	return nil
}

// QuotaGuard bounds the number of bots one owner holds. Like the
// uniqueness check it is not atomic with the insert that follows it.
type QuotaGuard struct {
	store store.Store
	limit int
}

func NewQuotaGuard(s store.Store, limit int) *QuotaGuard {
	return &QuotaGuard{store: s, limit: limit}
}

func (g *QuotaGuard) Check(ctx context.Context, ownerID string) error {
	n, err := g.store.CountBotsByOwner(ctx, ownerID)
	if err != nil {
		return apperr.Internal("count owned bots", err)
	}
	if n >= g.limit {
		return apperr.New(apperr.ReachedMaximumBots, "bot limit reached")
	}
	return nil
}
