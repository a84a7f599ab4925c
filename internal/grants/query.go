package grants

import (
	"context"
	"errors"
	"sort"

	"github.com/charlesng35/scopegrant/internal/models"
	"github.com/charlesng35/scopegrant/internal/registry"
)

// Query provides resource-centric and principal-centric enumeration over
// grant rows.
type Query struct {
	store *Store
}

// NewQuery constructs a bulk query API over the grant store.
func NewQuery(store *Store) (*Query, error) {
	if store == nil {
		return nil, errors.New("grants: store is required")
	}
	return &Query{store: store}, nil
}

// PermissionsForResource returns the permissions directly granted to the
// principal for the resource. Role-derived permissions are deliberately not
// reflected here; they are visible only through Checker.HasPermission.
func (q *Query) PermissionsForResource(ctx context.Context, principal Principal, resource Resource) ([]registry.PermissionRef, error) {
	pref, rref, err := checkRefs(principal, resource)
	if err != nil {
		return nil, err
	}

	rows, err := q.store.FindMatching(ctx, Filter{
		Principal:        &pref,
		Resource:         &rref,
		PermissionGrants: true,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.IsPermissionGrant() {
			ids = append(ids, *row.PermissionID)
		}
	}
	if len(ids) == 0 {
		return []registry.PermissionRef{}, nil
	}

	var perms []models.Permission
	err = q.store.db.WithContext(ctx).
		Select("id", "name").
		Where("id IN ?", ids).
		Find(&perms).Error
	if err != nil {
		return nil, classifyStoreError("grants: load permission names", err)
	}

	refs := make([]registry.PermissionRef, 0, len(perms))
	for _, perm := range perms {
		refs = append(refs, registry.PermissionRef{ID: perm.ID, Name: perm.Name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// RolesForResource returns the roles granted to the principal for the resource.
func (q *Query) RolesForResource(ctx context.Context, principal Principal, resource Resource) ([]registry.RoleRef, error) {
	pref, rref, err := checkRefs(principal, resource)
	if err != nil {
		return nil, err
	}

	rows, err := q.store.FindMatching(ctx, Filter{
		Principal:  &pref,
		Resource:   &rref,
		RoleGrants: true,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.IsRoleGrant() {
			ids = append(ids, *row.RoleID)
		}
	}
	if len(ids) == 0 {
		return []registry.RoleRef{}, nil
	}

	var roles []models.Role
	err = q.store.db.WithContext(ctx).
		Select("id", "name").
		Where("id IN ?", ids).
		Find(&roles).Error
	if err != nil {
		return nil, classifyStoreError("grants: load role names", err)
	}

	refs := make([]registry.RoleRef, 0, len(roles))
	for _, role := range roles {
		refs = append(refs, registry.RoleRef{ID: role.ID, Name: role.Name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// AssignedPrincipals enumerates the distinct principals holding any grant on
// the resource. Supplying candidates intersects against that set inside the
// query itself, keeping the work proportional to the candidate list.
func (q *Query) AssignedPrincipals(ctx context.Context, resource Resource, candidates ...PrincipalRef) ([]PrincipalRef, error) {
	rref, err := validateResource(resource)
	if err != nil {
		return nil, err
	}
	return q.store.DistinctPrincipals(ctx, rref, candidates)
}

// IsPrincipalAssigned reports whether any grant row, permission or role,
// exists for the pair.
func (q *Query) IsPrincipalAssigned(ctx context.Context, principal Principal, resource Resource) (bool, error) {
	pref, rref, err := checkRefs(principal, resource)
	if err != nil {
		return false, err
	}
	return q.store.ExistsMatching(ctx, Filter{
		Principal: &pref,
		Resource:  &rref,
	})
}

// HasAllAssigned reports whether every listed principal holds a grant on the
// resource. An empty list is vacuously true.
func (q *Query) HasAllAssigned(ctx context.Context, principals []PrincipalRef, resource Resource) (bool, error) {
	if len(principals) == 0 {
		return true, nil
	}

	assigned, err := q.AssignedPrincipals(ctx, resource, principals...)
	if err != nil {
		return false, err
	}

	present := make(map[PrincipalRef]struct{}, len(assigned))
	for _, ref := range assigned {
		present[ref] = struct{}{}
	}
	for _, ref := range principals {
		if _, ok := present[ref]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// HasAnyAssigned reports whether at least one listed principal holds a grant
// on the resource. An empty list answers false.
func (q *Query) HasAnyAssigned(ctx context.Context, principals []PrincipalRef, resource Resource) (bool, error) {
	if len(principals) == 0 {
		return false, nil
	}

	assigned, err := q.AssignedPrincipals(ctx, resource, principals...)
	if err != nil {
		return false, err
	}
	return len(assigned) > 0, nil
}
