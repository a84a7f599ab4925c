package grants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/scopegrant/internal/models"
)

// Filter selects grant rows by exact match over any subset of columns. The
// zero value matches everything, which mutating operations reject.
type Filter struct {
	Principal    *PrincipalRef
	Resource     *ResourceRef
	PermissionID string
	RoleID       string

	// PermissionGrants / RoleGrants restrict to rows of one flavour.
	PermissionGrants bool
	RoleGrants       bool

	// IncludeExpired keeps lapsed rows in the result. Reads default to
	// excluding them; deletes always include them.
	IncludeExpired bool
}

func (f Filter) empty() bool {
	return f.Principal == nil && f.Resource == nil &&
		f.PermissionID == "" && f.RoleID == "" &&
		!f.PermissionGrants && !f.RoleGrants
}

func (f Filter) apply(tx *gorm.DB, now time.Time) *gorm.DB {
	if f.Principal != nil {
		tx = tx.Where("principal_type = ? AND principal_id = ?", f.Principal.Type, f.Principal.ID)
	}
	if f.Resource != nil {
		tx = tx.Where("resource_type = ? AND resource_id = ?", f.Resource.Type, f.Resource.ID)
	}
	if f.PermissionID != "" {
		tx = tx.Where("permission_id = ?", f.PermissionID)
	}
	if f.RoleID != "" {
		tx = tx.Where("role_id = ?", f.RoleID)
	}
	if f.PermissionGrants {
		tx = tx.Where("permission_id IS NOT NULL")
	}
	if f.RoleGrants {
		tx = tx.Where("role_id IS NOT NULL")
	}
	if !f.IncludeExpired {
		tx = tx.Where("expires_at IS NULL OR expires_at > ?", now)
	}
	return tx
}

// Store provides indexed access to grant rows. Uniqueness is enforced by the
// schema's composite unique indexes, so concurrent insert attempts cannot race
// into duplicate rows regardless of application-level ordering.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore constructs a grant store over the provided database handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("grants: db is required")
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) withTx(tx *gorm.DB) *Store {
	return &Store{db: tx, now: s.now}
}

// Transaction runs fn against a store bound to a single database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(*Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.withTx(tx))
	})
}

// InsertIfAbsent inserts the record unless a row already exists for its
// uniqueness key, in which case the existing row is returned unchanged. The
// insert relies on the storage-level unique constraint, not check-then-insert.
func (s *Store) InsertIfAbsent(ctx context.Context, record *models.GrantRecord) (*models.GrantRecord, bool, error) {
	if record == nil {
		return nil, false, errors.New("grants: record is required")
	}
	if record.IsPermissionGrant() == record.IsRoleGrant() {
		return nil, false, fmt.Errorf("grants: record must carry exactly one of permission or role")
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if res.Error != nil {
		return nil, false, classifyStoreError("grants: insert grant", res.Error)
	}
	if res.RowsAffected > 0 {
		return record, true, nil
	}

	q := s.db.WithContext(ctx).
		Where("principal_type = ? AND principal_id = ? AND resource_type = ? AND resource_id = ?",
			record.PrincipalType, record.PrincipalID, record.ResourceType, record.ResourceID)
	if record.IsPermissionGrant() {
		q = q.Where("permission_id = ?", *record.PermissionID)
	} else {
		q = q.Where("role_id = ?", *record.RoleID)
	}

	var existing models.GrantRecord
	if err := q.First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The conflicting row vanished between insert and fetch; surface
			// it as a transient condition so the caller can retry.
			return nil, false, fmt.Errorf("grants: insert grant: %w: conflicting row disappeared", ErrStoreUnavailable)
		}
		return nil, false, classifyStoreError("grants: fetch existing grant", err)
	}

	return &existing, false, nil
}

// FindMatching returns all rows selected by the filter.
func (s *Store) FindMatching(ctx context.Context, f Filter) ([]models.GrantRecord, error) {
	var rows []models.GrantRecord
	err := f.apply(s.db.WithContext(ctx), s.now()).Find(&rows).Error
	if err != nil {
		return nil, classifyStoreError("grants: find grants", err)
	}
	return rows, nil
}

// ExistsMatching reports whether any row is selected by the filter.
func (s *Store) ExistsMatching(ctx context.Context, f Filter) (bool, error) {
	var count int64
	err := f.apply(s.db.WithContext(ctx).Model(&models.GrantRecord{}), s.now()).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, classifyStoreError("grants: grant exists", err)
	}
	return count > 0, nil
}

// DeleteMatching removes all rows selected by the filter, expired rows
// included. An empty filter is rejected rather than truncating the table.
func (s *Store) DeleteMatching(ctx context.Context, f Filter) (int64, error) {
	if f.empty() {
		return 0, errors.New("grants: refusing to delete with an empty filter")
	}
	f.IncludeExpired = true

	res := f.apply(s.db.WithContext(ctx), s.now()).Delete(&models.GrantRecord{})
	if res.Error != nil {
		return 0, classifyStoreError("grants: delete grants", res.Error)
	}
	return res.RowsAffected, nil
}

// UpdateAttribution refreshes audit fields on an existing row. Used when an
// idempotent re-grant supplies new expiry or attribution.
func (s *Store) UpdateAttribution(ctx context.Context, id string, updates map[string]any) error {
	if id == "" || len(updates) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Model(&models.GrantRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return classifyStoreError("grants: update grant", err)
	}
	return nil
}

// DistinctPrincipals enumerates the distinct principals holding any unexpired
// grant on the resource. When candidates are supplied the (type, id) pairs are
// pushed into the query so the scan stays proportional to the candidate set.
func (s *Store) DistinctPrincipals(ctx context.Context, resource ResourceRef, candidates []PrincipalRef) ([]PrincipalRef, error) {
	q := s.db.WithContext(ctx).
		Model(&models.GrantRecord{}).
		Distinct("principal_type", "principal_id").
		Where("resource_type = ? AND resource_id = ?", resource.Type, resource.ID).
		Where("expires_at IS NULL OR expires_at > ?", s.now())

	if len(candidates) > 0 {
		cond := s.db.Where("principal_type = ? AND principal_id = ?", candidates[0].Type, candidates[0].ID)
		for _, c := range candidates[1:] {
			cond = cond.Or("principal_type = ? AND principal_id = ?", c.Type, c.ID)
		}
		q = q.Where(cond)
	}

	var rows []struct {
		PrincipalType string
		PrincipalID   string
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, classifyStoreError("grants: distinct principals", err)
	}

	refs := make([]PrincipalRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, PrincipalRef{Type: row.PrincipalType, ID: row.PrincipalID})
	}
	return refs, nil
}

// DeleteExpired purges rows whose expiry has lapsed, returning the count removed.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).
		Delete(&models.GrantRecord{})
	if res.Error != nil {
		return 0, classifyStoreError("grants: delete expired grants", res.Error)
	}
	return res.RowsAffected, nil
}
