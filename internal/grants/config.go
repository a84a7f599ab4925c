package grants

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/charlesng35/scopegrant/internal/models"
)

// IdentifierKind constrains the identifier form accepted for principal or
// resource references. The kind is decided once, before the schema is
// migrated, and enforced at the mutation boundary thereafter.
type IdentifierKind int

const (
	// KindOpaque accepts any non-empty string identifier.
	KindOpaque IdentifierKind = iota
	// KindUUID accepts RFC 4122 identifiers.
	KindUUID
	// KindInteger accepts decimal integer identifiers.
	KindInteger
)

// ParseIdentifierKind maps a configuration string onto an IdentifierKind.
func ParseIdentifierKind(value string) (IdentifierKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "opaque", "string":
		return KindOpaque, nil
	case "uuid":
		return KindUUID, nil
	case "integer", "int":
		return KindInteger, nil
	default:
		return KindOpaque, fmt.Errorf("grants: unknown identifier kind %q", value)
	}
}

func (k IdentifierKind) String() string {
	switch k {
	case KindUUID:
		return "uuid"
	case KindInteger:
		return "integer"
	default:
		return "opaque"
	}
}

// Validate reports whether the identifier matches the configured kind.
func (k IdentifierKind) Validate(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidReference)
	}

	switch k {
	case KindUUID:
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("%w: identifier %q is not a uuid", ErrInvalidReference, id)
		}
	case KindInteger:
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			return fmt.Errorf("%w: identifier %q is not an integer", ErrInvalidReference, id)
		}
	}
	return nil
}

// Config fixes the schema-level choices for the grant engine: the table name
// and the identifier class accepted for principal and resource references.
// Apply must run before the schema is migrated.
type Config struct {
	TableName       string
	PrincipalIDKind IdentifierKind
	ResourceIDKind  IdentifierKind
}

// Apply installs the configured table name. Safe to call with the zero value.
func (c Config) Apply() {
	models.SetGrantTableName(strings.TrimSpace(c.TableName))
}

func (c Config) validateRefs(principal PrincipalRef, resource ResourceRef) error {
	if err := c.PrincipalIDKind.Validate(principal.ID); err != nil {
		return err
	}
	return c.ResourceIDKind.Validate(resource.ID)
}
