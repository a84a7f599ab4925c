package grants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/charlesng35/scopegrant/internal/auditctx"
	"github.com/charlesng35/scopegrant/internal/models"
	"github.com/charlesng35/scopegrant/internal/registry"
)

// GrantOption customises a single grant or sync operation.
type GrantOption func(*grantOptions)

type grantOptions struct {
	grantedBy *string
	expiresAt *time.Time
	metadata  map[string]any
}

// WithGrantedBy attributes the grant to an explicit acting principal,
// overriding any actor carried in the context.
func WithGrantedBy(principalID string) GrantOption {
	return func(o *grantOptions) {
		if principalID != "" {
			id := principalID
			o.grantedBy = &id
		}
	}
}

// WithExpiry makes the grant lapse at the given instant.
func WithExpiry(t time.Time) GrantOption {
	return func(o *grantOptions) {
		exp := t.UTC().Truncate(time.Second)
		o.expiresAt = &exp
	}
}

// WithMetadata attaches caller-defined metadata to the grant row.
func WithMetadata(metadata map[string]any) GrantOption {
	return func(o *grantOptions) {
		if len(metadata) > 0 {
			o.metadata = metadata
		}
	}
}

// Mutator creates, removes and reconciles grant rows. Each public method is
// an independent transaction; no cross-call atomicity is promised, and a
// grant racing a revoke on the same key resolves to last-committed-wins.
type Mutator struct {
	store    *Store
	registry registry.Registry
	cfg      Config
}

// NewMutator constructs a mutator over the grant store and registry lookups.
func NewMutator(store *Store, reg registry.Registry, cfg Config) (*Mutator, error) {
	if store == nil {
		return nil, errors.New("grants: store is required")
	}
	if reg == nil {
		return nil, errors.New("grants: registry is required")
	}
	return &Mutator{store: store, registry: reg, cfg: cfg}, nil
}

// GrantPermission grants the named permission to the principal for the
// resource. An unresolvable name is a deliberate no-op so that callers
// referencing not-yet-registered permissions do not fail. Re-granting an
// already-held permission refreshes attribution instead of duplicating rows.
func (m *Mutator) GrantPermission(ctx context.Context, principal Principal, resource Resource, permissionName string, opts ...GrantOption) error {
	pref, rref, err := m.mutationRefs(principal, resource)
	if err != nil {
		return err
	}

	perm, err := m.registry.LookupPermissionByName(ctx, permissionName)
	if err != nil {
		return err
	}
	if perm == nil {
		return nil
	}

	return m.insertGrant(ctx, pref, rref, &perm.ID, nil, applyOptions(ctx, opts))
}

// RevokePermission removes the direct permission grant, if present. Revoking
// an ungranted or unknown permission is a no-op.
func (m *Mutator) RevokePermission(ctx context.Context, principal Principal, resource Resource, permissionName string) error {
	pref, rref, err := m.mutationRefs(principal, resource)
	if err != nil {
		return err
	}

	perm, err := m.registry.LookupPermissionByName(ctx, permissionName)
	if err != nil {
		return err
	}
	if perm == nil {
		return nil
	}

	_, err = m.store.DeleteMatching(ctx, Filter{
		Principal:    &pref,
		Resource:     &rref,
		PermissionID: perm.ID,
	})
	return err
}

// SyncPermissions reconciles the principal's direct permission grants on the
// resource to exactly the named set. Unresolvable names are dropped from the
// target. Role rows for the same pair are untouched. The whole reconciliation
// runs inside one transaction so a failure leaves no partial application.
func (m *Mutator) SyncPermissions(ctx context.Context, principal Principal, resource Resource, permissionNames []string, opts ...GrantOption) error {
	pref, rref, err := m.mutationRefs(principal, resource)
	if err != nil {
		return err
	}

	target := make(map[string]struct{})
	for _, name := range permissionNames {
		perm, err := m.registry.LookupPermissionByName(ctx, name)
		if err != nil {
			return err
		}
		if perm == nil {
			continue
		}
		target[perm.ID] = struct{}{}
	}

	options := applyOptions(ctx, opts)

	return m.store.Transaction(ctx, func(tx *Store) error {
		current, err := tx.FindMatching(ctx, Filter{
			Principal:        &pref,
			Resource:         &rref,
			PermissionGrants: true,
			IncludeExpired:   true,
		})
		if err != nil {
			return err
		}

		held := make(map[string]struct{}, len(current))
		for _, row := range current {
			if !row.IsPermissionGrant() {
				continue
			}
			id := *row.PermissionID
			if _, keep := target[id]; !keep {
				if _, err := tx.DeleteMatching(ctx, Filter{
					Principal:    &pref,
					Resource:     &rref,
					PermissionID: id,
				}); err != nil {
					return err
				}
				continue
			}
			held[id] = struct{}{}
		}

		for id := range target {
			if _, ok := held[id]; ok {
				continue
			}
			permID := id
			if err := txInsertGrant(ctx, tx, pref, rref, &permID, nil, options); err != nil {
				return err
			}
		}
		return nil
	})
}

// AssignRole grants the named role to the principal for the resource.
// Unresolvable role names are a no-op, mirroring GrantPermission.
func (m *Mutator) AssignRole(ctx context.Context, principal Principal, resource Resource, roleName string, opts ...GrantOption) error {
	pref, rref, err := m.mutationRefs(principal, resource)
	if err != nil {
		return err
	}

	role, err := m.registry.LookupRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	if role == nil {
		return nil
	}

	return m.insertGrant(ctx, pref, rref, nil, &role.ID, applyOptions(ctx, opts))
}

// RemoveRole removes the role grant, if present. Idempotent.
func (m *Mutator) RemoveRole(ctx context.Context, principal Principal, resource Resource, roleName string) error {
	pref, rref, err := m.mutationRefs(principal, resource)
	if err != nil {
		return err
	}

	role, err := m.registry.LookupRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	if role == nil {
		return nil
	}

	_, err = m.store.DeleteMatching(ctx, Filter{
		Principal: &pref,
		Resource:  &rref,
		RoleID:    role.ID,
	})
	return err
}

// SyncRoles reconciles the principal's role grants on the resource to exactly
// the named set, leaving permission rows alone.
func (m *Mutator) SyncRoles(ctx context.Context, principal Principal, resource Resource, roleNames []string, opts ...GrantOption) error {
	pref, rref, err := m.mutationRefs(principal, resource)
	if err != nil {
		return err
	}

	target := make(map[string]struct{})
	for _, name := range roleNames {
		role, err := m.registry.LookupRoleByName(ctx, name)
		if err != nil {
			return err
		}
		if role == nil {
			continue
		}
		target[role.ID] = struct{}{}
	}

	options := applyOptions(ctx, opts)

	return m.store.Transaction(ctx, func(tx *Store) error {
		current, err := tx.FindMatching(ctx, Filter{
			Principal:      &pref,
			Resource:       &rref,
			RoleGrants:     true,
			IncludeExpired: true,
		})
		if err != nil {
			return err
		}

		held := make(map[string]struct{}, len(current))
		for _, row := range current {
			if !row.IsRoleGrant() {
				continue
			}
			id := *row.RoleID
			if _, keep := target[id]; !keep {
				if _, err := tx.DeleteMatching(ctx, Filter{
					Principal: &pref,
					Resource:  &rref,
					RoleID:    id,
				}); err != nil {
					return err
				}
				continue
			}
			held[id] = struct{}{}
		}

		for id := range target {
			if _, ok := held[id]; ok {
				continue
			}
			roleID := id
			if err := txInsertGrant(ctx, tx, pref, rref, nil, &roleID, options); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Mutator) mutationRefs(principal Principal, resource Resource) (PrincipalRef, ResourceRef, error) {
	pref, rref, err := checkRefs(principal, resource)
	if err != nil {
		return PrincipalRef{}, ResourceRef{}, err
	}
	if err := m.cfg.validateRefs(pref, rref); err != nil {
		return PrincipalRef{}, ResourceRef{}, err
	}
	return pref, rref, nil
}

func (m *Mutator) insertGrant(ctx context.Context, pref PrincipalRef, rref ResourceRef, permissionID, roleID *string, options grantOptions) error {
	return txInsertGrant(ctx, m.store, pref, rref, permissionID, roleID, options)
}

func txInsertGrant(ctx context.Context, store *Store, pref PrincipalRef, rref ResourceRef, permissionID, roleID *string, options grantOptions) error {
	record := &models.GrantRecord{
		PrincipalType: pref.Type,
		PrincipalID:   pref.ID,
		ResourceType:  rref.Type,
		ResourceID:    rref.ID,
		PermissionID:  permissionID,
		RoleID:        roleID,
		GrantedByID:   options.grantedBy,
		ExpiresAt:     options.expiresAt,
	}

	if len(options.metadata) > 0 {
		raw, err := json.Marshal(options.metadata)
		if err != nil {
			return fmt.Errorf("grants: metadata must be JSON serialisable: %w", err)
		}
		record.Metadata = datatypes.JSON(raw)
	}

	existing, created, err := store.InsertIfAbsent(ctx, record)
	if err != nil {
		return err
	}
	if created {
		return nil
	}

	// Idempotent re-grant: refresh attribution, and revive the row when the
	// previous grant had already lapsed.
	updates := map[string]any{}
	if options.grantedBy != nil {
		updates["granted_by_id"] = options.grantedBy
	}
	if options.expiresAt != nil || existing.Expired(time.Now()) {
		updates["expires_at"] = options.expiresAt
	}
	if len(record.Metadata) > 0 {
		updates["metadata"] = record.Metadata
	}
	return store.UpdateAttribution(ctx, existing.ID, updates)
}

// applyOptions folds the option list, defaulting attribution to the acting
// principal carried in the context when no explicit grantor is supplied.
func applyOptions(ctx context.Context, opts []GrantOption) grantOptions {
	var options grantOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	if options.grantedBy == nil {
		if actor, ok := auditctx.FromContext(ctx); ok && actor.PrincipalID != "" {
			id := actor.PrincipalID
			options.grantedBy = &id
		}
	}
	return options
}
