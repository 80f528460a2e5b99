package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/repository"
)

// nameResolver maps user ids to display names for search documents
type nameResolver struct {
	users repository.UserRepository
	cache *expirable.LRU[int64, string]
	log   zerolog.Logger
}

func newNameResolver(users repository.UserRepository, size int, ttl time.Duration, log zerolog.Logger) *nameResolver {
	if size <= 0 {
		size = 1024
	}
	return &nameResolver{
		users: users,
		cache: expirable.NewLRU[int64, string](size, nil, ttl),
		log:   log,
	}
}

// remember records the actor's own name, which the caller context already carries
func (r *nameResolver) remember(actor models.Actor) {
	if actor.Username != "" {
		r.cache.Add(actor.ID, actor.Username)
	}
}

// name returns the user's display name. An unknown user yields "" so a
// missing name never blocks indexing.
func (r *nameResolver) name(ctx context.Context, id int64) string {
	if id == 0 {
		return ""
	}
	if name, ok := r.cache.Get(id); ok {
		return name
	}
	user, err := r.users.GetByID(ctx, id)
	if err != nil {
		r.log.Warn().Err(err).Int64("user_id", id).Msg("Failed to resolve user display name")
		return ""
	}
	r.cache.Add(id, user.Username)
	return user.Username
}
