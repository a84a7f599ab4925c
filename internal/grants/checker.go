package grants

import (
	"context"
	"errors"

	"github.com/charlesng35/scopegrant/internal/registry"
)

// Checker answers scoped permission and role questions for a (principal,
// resource) pair. It holds no state across calls; every decision re-queries
// the store, so callers needing speed must cache externally and invalidate on
// mutation.
//
// A denial is always a false return value. Errors are reserved for registry
// or store failures, never for "permission denied".
type Checker struct {
	store    *Store
	registry registry.Registry
}

// NewChecker constructs a checker over the grant store and registry lookups.
func NewChecker(store *Store, reg registry.Registry) (*Checker, error) {
	if store == nil {
		return nil, errors.New("grants: store is required")
	}
	if reg == nil {
		return nil, errors.New("grants: registry is required")
	}
	return &Checker{store: store, registry: reg}, nil
}

// HasPermission reports whether the principal may exercise the named
// permission on the resource, either through a direct grant or through any
// role granted for the same resource. Grants are strictly additive; there is
// no deny concept. An unknown permission name simply grants nothing.
func (c *Checker) HasPermission(ctx context.Context, principal Principal, resource Resource, permissionName string) (bool, error) {
	pref, rref, err := checkRefs(principal, resource)
	if err != nil {
		return false, err
	}

	perm, err := c.registry.LookupPermissionByName(ctx, permissionName)
	if err != nil {
		return false, err
	}
	if perm == nil {
		return false, nil
	}

	direct, err := c.store.ExistsMatching(ctx, Filter{
		Principal:    &pref,
		Resource:     &rref,
		PermissionID: perm.ID,
	})
	if err != nil {
		return false, err
	}
	if direct {
		return true, nil
	}

	roleRows, err := c.store.FindMatching(ctx, Filter{
		Principal:  &pref,
		Resource:   &rref,
		RoleGrants: true,
	})
	if err != nil {
		return false, err
	}

	for _, row := range roleRows {
		if !row.IsRoleGrant() {
			continue
		}
		ok, err := c.registry.RoleHasPermission(ctx, *row.RoleID, perm.ID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	return false, nil
}

// HasAnyPermission short-circuits over HasPermission for each name. An empty
// list answers false: nothing can be "any-true" of zero permissions.
func (c *Checker) HasAnyPermission(ctx context.Context, principal Principal, resource Resource, permissionNames []string) (bool, error) {
	for _, name := range permissionNames {
		ok, err := c.HasPermission(ctx, principal, resource, name)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions requires every name to resolve in the registry and every
// resolved permission to be granted. A single unresolvable name fails the
// whole check: the caller's intent list contains something the system cannot
// even verify. An empty list is vacuously true.
func (c *Checker) HasAllPermissions(ctx context.Context, principal Principal, resource Resource, permissionNames []string) (bool, error) {
	for _, name := range permissionNames {
		perm, err := c.registry.LookupPermissionByName(ctx, name)
		if err != nil {
			return false, err
		}
		if perm == nil {
			return false, nil
		}

		ok, err := c.HasPermission(ctx, principal, resource, name)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// HasRole reports whether the principal holds the named role for the resource.
// Direct lookup only; no indirection of any kind.
func (c *Checker) HasRole(ctx context.Context, principal Principal, resource Resource, roleName string) (bool, error) {
	pref, rref, err := checkRefs(principal, resource)
	if err != nil {
		return false, err
	}

	role, err := c.registry.LookupRoleByName(ctx, roleName)
	if err != nil {
		return false, err
	}
	if role == nil {
		return false, nil
	}

	return c.store.ExistsMatching(ctx, Filter{
		Principal: &pref,
		Resource:  &rref,
		RoleID:    role.ID,
	})
}

func checkRefs(principal Principal, resource Resource) (PrincipalRef, ResourceRef, error) {
	pref, err := validatePrincipal(principal)
	if err != nil {
		return PrincipalRef{}, ResourceRef{}, err
	}
	rref, err := validateResource(resource)
	if err != nil {
		return PrincipalRef{}, ResourceRef{}, err
	}
	return pref, rref, nil
}
