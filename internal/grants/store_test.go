package grants

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/charlesng35/scopegrant/internal/models"
	"github.com/charlesng35/scopegrant/internal/registry"
)

func openGrantTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_foreign_keys=1"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.Role{},
		&models.Permission{},
		&models.GrantRecord{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func newTestStore(t *testing.T, db *gorm.DB) *Store {
	t.Helper()
	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func seedPermission(t *testing.T, db *gorm.DB, name string) models.Permission {
	t.Helper()
	perm := models.Permission{Name: name, Module: "test"}
	require.NoError(t, db.Create(&perm).Error)
	return perm
}

func seedRole(t *testing.T, db *gorm.DB, name string, perms ...models.Permission) models.Role {
	t.Helper()
	role := models.Role{Name: name}
	require.NoError(t, db.Create(&role).Error)
	if len(perms) > 0 {
		require.NoError(t, db.Model(&role).Association("Permissions").Append(&perms))
	}
	return role
}

func seedUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.com"}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func newTestRegistry(t *testing.T, db *gorm.DB) registry.Registry {
	t.Helper()
	reg, err := registry.NewGormRegistry(db)
	require.NoError(t, err)
	return reg
}

func permissionGrant(principal PrincipalRef, resource ResourceRef, permissionID string) *models.GrantRecord {
	return &models.GrantRecord{
		PrincipalType: principal.Type,
		PrincipalID:   principal.ID,
		ResourceType:  resource.Type,
		ResourceID:    resource.ID,
		PermissionID:  &permissionID,
	}
}

func roleGrant(principal PrincipalRef, resource ResourceRef, roleID string) *models.GrantRecord {
	return &models.GrantRecord{
		PrincipalType: principal.Type,
		PrincipalID:   principal.ID,
		ResourceType:  resource.Type,
		ResourceID:    resource.ID,
		RoleID:        &roleID,
	}
}

func countGrantRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.GrantRecord{}).Count(&count).Error)
	return count
}

func TestStoreInsertIfAbsentIdempotent(t *testing.T) {
	db := openGrantTestDB(t)
	store := newTestStore(t, db)
	perm := seedPermission(t, db, "article.edit")

	principal := PrincipalRef{Type: "user", ID: "u-1"}
	resource := ResourceRef{Type: "article", ID: "a-1"}
	ctx := context.Background()

	first, created, err := store.InsertIfAbsent(ctx, permissionGrant(principal, resource, perm.ID))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := store.InsertIfAbsent(ctx, permissionGrant(principal, resource, perm.ID))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	require.EqualValues(t, 1, countGrantRows(t, db))
}

func TestStoreInsertRejectsAmbiguousRecord(t *testing.T) {
	db := openGrantTestDB(t)
	store := newTestStore(t, db)

	principal := PrincipalRef{Type: "user", ID: "u-1"}
	resource := ResourceRef{Type: "article", ID: "a-1"}

	_, _, err := store.InsertIfAbsent(context.Background(), &models.GrantRecord{
		PrincipalType: principal.Type,
		PrincipalID:   principal.ID,
		ResourceType:  resource.Type,
		ResourceID:    resource.ID,
	})
	require.Error(t, err)
}

func TestStorePermissionAndRoleRowsCoexist(t *testing.T) {
	db := openGrantTestDB(t)
	store := newTestStore(t, db)
	perm := seedPermission(t, db, "article.edit")
	role := seedRole(t, db, "editor")

	principal := PrincipalRef{Type: "user", ID: "u-1"}
	resource := ResourceRef{Type: "article", ID: "a-1"}
	ctx := context.Background()

	_, created, err := store.InsertIfAbsent(ctx, permissionGrant(principal, resource, perm.ID))
	require.NoError(t, err)
	require.True(t, created)

	_, created, err = store.InsertIfAbsent(ctx, roleGrant(principal, resource, role.ID))
	require.NoError(t, err)
	require.True(t, created)

	require.EqualValues(t, 2, countGrantRows(t, db))
}

func TestStoreFindMatchingFilters(t *testing.T) {
	db := openGrantTestDB(t)
	store := newTestStore(t, db)
	view := seedPermission(t, db, "article.view")
	edit := seedPermission(t, db, "article.edit")
	role := seedRole(t, db, "editor")

	alice := PrincipalRef{Type: "user", ID: "u-alice"}
	bob := PrincipalRef{Type: "user", ID: "u-bob"}
	article := ResourceRef{Type: "article", ID: "a-1"}
	report := ResourceRef{Type: "report", ID: "r-1"}
	ctx := context.Background()

	for _, rec := range []*models.GrantRecord{
		permissionGrant(alice, article, view.ID),
		permissionGrant(alice, article, edit.ID),
		permissionGrant(bob, article, view.ID),
		permissionGrant(alice, report, view.ID),
		roleGrant(alice, article, role.ID),
	} {
		_, _, err := store.InsertIfAbsent(ctx, rec)
		require.NoError(t, err)
	}

	rows, err := store.FindMatching(ctx, Filter{Principal: &alice, Resource: &article})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	rows, err = store.FindMatching(ctx, Filter{Principal: &alice, Resource: &article, PermissionGrants: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = store.FindMatching(ctx, Filter{Principal: &alice, Resource: &article, RoleGrants: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = store.FindMatching(ctx, Filter{PermissionID: view.ID})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	exists, err := store.ExistsMatching(ctx, Filter{Principal: &bob, Resource: &report})
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStoreDeleteMatchingRequiresFilter(t *testing.T) {
	db := openGrantTestDB(t)
	store := newTestStore(t, db)

	_, err := store.DeleteMatching(context.Background(), Filter{})
	require.Error(t, err)
}

func TestStoreExpiredRowsInvisibleToReads(t *testing.T) {
	db := openGrantTestDB(t)
	store := newTestStore(t, db)
	perm := seedPermission(t, db, "article.view")

	principal := PrincipalRef{Type: "user", ID: "u-1"}
	resource := ResourceRef{Type: "article", ID: "a-1"}
	ctx := context.Background()

	record := permissionGrant(principal, resource, perm.ID)
	past := time.Now().Add(-time.Hour)
	record.ExpiresAt = &past
	_, _, err := store.InsertIfAbsent(ctx, record)
	require.NoError(t, err)

	exists, err := store.ExistsMatching(ctx, Filter{Principal: &principal, Resource: &resource})
	require.NoError(t, err)
	require.False(t, exists)

	rows, err := store.FindMatching(ctx, Filter{Principal: &principal, Resource: &resource, IncludeExpired: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Deletes see expired rows regardless.
	deleted, err := store.DeleteMatching(ctx, Filter{Principal: &principal, Resource: &resource})
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}

func TestStoreDeleteExpired(t *testing.T) {
	db := openGrantTestDB(t)
	store := newTestStore(t, db)
	perm := seedPermission(t, db, "article.view")

	resource := ResourceRef{Type: "article", ID: "a-1"}
	ctx := context.Background()

	fresh := permissionGrant(PrincipalRef{Type: "user", ID: "u-live"}, resource, perm.ID)
	future := time.Now().Add(time.Hour)
	fresh.ExpiresAt = &future
	_, _, err := store.InsertIfAbsent(ctx, fresh)
	require.NoError(t, err)

	stale := permissionGrant(PrincipalRef{Type: "user", ID: "u-stale"}, resource, perm.ID)
	past := time.Now().Add(-time.Hour)
	stale.ExpiresAt = &past
	_, _, err = store.InsertIfAbsent(ctx, stale)
	require.NoError(t, err)

	forever := permissionGrant(PrincipalRef{Type: "user", ID: "u-forever"}, resource, perm.ID)
	_, _, err = store.InsertIfAbsent(ctx, forever)
	require.NoError(t, err)

	purged, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)
	require.EqualValues(t, 2, countGrantRows(t, db))
}

func TestStoreDistinctPrincipalsCandidateFilter(t *testing.T) {
	db := openGrantTestDB(t)
	store := newTestStore(t, db)
	perm := seedPermission(t, db, "article.view")
	role := seedRole(t, db, "editor")

	resource := ResourceRef{Type: "article", ID: "a-1"}
	p1 := PrincipalRef{Type: "user", ID: "u-1"}
	p2 := PrincipalRef{Type: "user", ID: "u-2"}
	p3 := PrincipalRef{Type: "team", ID: "t-1"}
	p4 := PrincipalRef{Type: "user", ID: "u-4"}
	ctx := context.Background()

	for _, rec := range []*models.GrantRecord{
		permissionGrant(p1, resource, perm.ID),
		roleGrant(p1, resource, role.ID), // second row, still one distinct principal
		permissionGrant(p2, resource, perm.ID),
		roleGrant(p3, resource, role.ID),
	} {
		_, _, err := store.InsertIfAbsent(ctx, rec)
		require.NoError(t, err)
	}

	all, err := store.DistinctPrincipals(ctx, resource, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)

	filtered, err := store.DistinctPrincipals(ctx, resource, []PrincipalRef{p1, p4})
	require.NoError(t, err)
	require.Equal(t, []PrincipalRef{p1}, filtered)
}

func TestStoreCascadeDeleteOnPermissionRemoval(t *testing.T) {
	db := openGrantTestDB(t)
	store := newTestStore(t, db)
	perm := seedPermission(t, db, "article.view")

	principal := PrincipalRef{Type: "user", ID: "u-1"}
	resource := ResourceRef{Type: "article", ID: "a-1"}
	ctx := context.Background()

	_, _, err := store.InsertIfAbsent(ctx, permissionGrant(principal, resource, perm.ID))
	require.NoError(t, err)
	require.EqualValues(t, 1, countGrantRows(t, db))

	require.NoError(t, db.Delete(&models.Permission{}, "id = ?", perm.ID).Error)
	require.EqualValues(t, 0, countGrantRows(t, db))
}
