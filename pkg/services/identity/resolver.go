package identity

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/de-tools/billing-extract/pkg/models/domain"
)

// ErrNotFound is returned by a Directory when the id does not exist.
var ErrNotFound = errors.New("identity not found")

// Directory is the identity-service boundary.
type Directory interface {
	GetProject(ctx context.Context, id string) (domain.IdentityEntry, error)
	GetUser(ctx context.Context, id string) (domain.IdentityEntry, error)
}

// Resolver caches directory lookups for the lifetime of one run. Identity
// is assumed stable within one short processing window, so entries are
// never invalidated mid-run. Misses are cached too, to bound API calls.
//
// A Resolver is owned by exactly one run and discarded afterwards.
type Resolver struct {
	dir      Directory
	projects map[string]*domain.IdentityEntry
	users    map[string]*domain.IdentityEntry
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{
		dir:      dir,
		projects: make(map[string]*domain.IdentityEntry),
		users:    make(map[string]*domain.IdentityEntry),
	}
}

// ResolveProject returns the project entry and true, or false when the
// project is unknown. Lookup failures degrade to unknown, never abort.
func (r *Resolver) ResolveProject(ctx context.Context, id string) (domain.IdentityEntry, bool) {
	return r.resolve(ctx, id, r.projects, r.dir.GetProject, "project")
}

// ResolveUser is the user counterpart of ResolveProject.
func (r *Resolver) ResolveUser(ctx context.Context, id string) (domain.IdentityEntry, bool) {
	return r.resolve(ctx, id, r.users, r.dir.GetUser, "user")
}

func (r *Resolver) resolve(
	ctx context.Context,
	id string,
	cache map[string]*domain.IdentityEntry,
	lookup func(context.Context, string) (domain.IdentityEntry, error),
	kind string,
) (domain.IdentityEntry, bool) {
	if entry, ok := cache[id]; ok {
		if entry == nil {
			return domain.IdentityEntry{}, false
		}
		return *entry, true
	}

	entry, err := lookup(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			zerolog.Ctx(ctx).Warn().Err(err).Str(kind+"_id", id).
				Msg("identity lookup failed, treating as unknown")
		}
		cache[id] = nil
		return domain.IdentityEntry{}, false
	}

	cache[id] = &entry
	return entry, true
}
