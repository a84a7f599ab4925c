package grants

import (
	"fmt"
	"strings"
)

// Principal is any actor able to hold scoped grants. Entity types opt in by
// exposing a type discriminator and an identifier; the engine never depends on
// a concrete model hierarchy.
type Principal interface {
	PrincipalType() string
	PrincipalID() string
}

// Resource is the target object a grant applies to.
type Resource interface {
	ResourceType() string
	ResourceID() string
}

// PrincipalRef is a plain (type, id) principal reference.
type PrincipalRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// PrincipalType implements Principal.
func (r PrincipalRef) PrincipalType() string { return r.Type }

// PrincipalID implements Principal.
func (r PrincipalRef) PrincipalID() string { return r.ID }

// String renders the reference as type:id.
func (r PrincipalRef) String() string { return r.Type + ":" + r.ID }

// ResourceRef is a plain (type, id) resource reference.
type ResourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ResourceType implements Resource.
func (r ResourceRef) ResourceType() string { return r.Type }

// ResourceID implements Resource.
func (r ResourceRef) ResourceID() string { return r.ID }

// String renders the reference as type:id.
func (r ResourceRef) String() string { return r.Type + ":" + r.ID }

// RefOf captures a principal into a comparable reference value.
func RefOf(p Principal) PrincipalRef {
	return PrincipalRef{
		Type: strings.TrimSpace(p.PrincipalType()),
		ID:   strings.TrimSpace(p.PrincipalID()),
	}
}

func validatePrincipal(p Principal) (PrincipalRef, error) {
	if p == nil {
		return PrincipalRef{}, fmt.Errorf("%w: principal is required", ErrInvalidReference)
	}
	ref := RefOf(p)
	if ref.Type == "" || ref.ID == "" {
		return PrincipalRef{}, fmt.Errorf("%w: principal type and id are required", ErrInvalidReference)
	}
	return ref, nil
}

func validateResource(r Resource) (ResourceRef, error) {
	if r == nil {
		return ResourceRef{}, fmt.Errorf("%w: resource is required", ErrInvalidReference)
	}
	ref := ResourceRef{
		Type: strings.TrimSpace(r.ResourceType()),
		ID:   strings.TrimSpace(r.ResourceID()),
	}
	if ref.Type == "" || ref.ID == "" {
		return ResourceRef{}, fmt.Errorf("%w: resource type and id are required", ErrInvalidReference)
	}
	return ref, nil
}
