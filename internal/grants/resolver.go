package grants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/charlesng35/scopegrant/internal/models"
)

// EntityResolver loads the concrete entities behind a batch of identifiers of
// one principal type. Identifiers with no backing entity are simply omitted
// from the result; dangling references are the upstream owner's gap, not an
// error here.
type EntityResolver func(ctx context.Context, ids []string) (map[string]any, error)

// ResolverRegistry maps principal type discriminators to entity resolvers.
// Resolution batches by type so the number of lookups is bounded by the
// number of distinct principal types present, not the number of principals.
type ResolverRegistry struct {
	mu        sync.RWMutex
	resolvers map[string]EntityResolver
}

// NewResolverRegistry constructs an empty resolver registry.
func NewResolverRegistry() *ResolverRegistry {
	return &ResolverRegistry{resolvers: make(map[string]EntityResolver)}
}

// Register installs a resolver for the given type discriminator.
func (r *ResolverRegistry) Register(principalType string, resolver EntityResolver) error {
	principalType = strings.TrimSpace(principalType)
	if principalType == "" {
		return errors.New("grants: principal type is required")
	}
	if resolver == nil {
		return errors.New("grants: resolver is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resolvers[principalType]; exists {
		return fmt.Errorf("grants: resolver already registered for %q", principalType)
	}
	r.resolvers[principalType] = resolver
	return nil
}

// ResolvePrincipals turns references into live entities, one resolver call per
// distinct type. References of unregistered types, and identifiers the
// resolver cannot find, are dropped from the result. Resolver failures are
// aggregated so one broken type does not mask the others.
func (r *ResolverRegistry) ResolvePrincipals(ctx context.Context, refs []PrincipalRef) (map[PrincipalRef]any, error) {
	if len(refs) == 0 {
		return map[PrincipalRef]any{}, nil
	}

	byType := make(map[string][]string)
	for _, ref := range refs {
		if ref.Type == "" || ref.ID == "" {
			continue
		}
		byType[ref.Type] = append(byType[ref.Type], ref.ID)
	}

	resolved := make(map[PrincipalRef]any)
	var errs error

	for principalType, ids := range byType {
		r.mu.RLock()
		resolver, ok := r.resolvers[principalType]
		r.mu.RUnlock()
		if !ok {
			continue
		}

		entities, err := resolver(ctx, dedupe(ids))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("grants: resolve %s principals: %w", principalType, err))
			continue
		}
		for id, entity := range entities {
			resolved[PrincipalRef{Type: principalType, ID: id}] = entity
		}
	}

	return resolved, errs
}

// UserResolver resolves user principals from the shared database.
func UserResolver(db *gorm.DB) EntityResolver {
	return func(ctx context.Context, ids []string) (map[string]any, error) {
		var users []models.User
		if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, err
		}
		out := make(map[string]any, len(users))
		for i := range users {
			out[users[i].ID] = &users[i]
		}
		return out, nil
	}
}

// TeamResolver resolves team principals from the shared database.
func TeamResolver(db *gorm.DB) EntityResolver {
	return func(ctx context.Context, ids []string) (map[string]any, error) {
		var teams []models.Team
		if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&teams).Error; err != nil {
			return nil, err
		}
		out := make(map[string]any, len(teams))
		for i := range teams {
			out[teams[i].ID] = &teams[i]
		}
		return out, nil
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
