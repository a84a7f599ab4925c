package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/charlesng35/scopegrant/internal/models"
)

func openRegistryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.Role{}, &models.Permission{}))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())
	})

	return db
}

func TestGormRegistryRequiresDB(t *testing.T) {
	_, err := NewGormRegistry(nil)
	require.Error(t, err)
}

func TestLookupPermissionByName(t *testing.T) {
	db := openRegistryTestDB(t)
	reg, err := NewGormRegistry(db)
	require.NoError(t, err)

	perm := models.Permission{Name: "connection.read", Module: "connection"}
	require.NoError(t, db.Create(&perm).Error)

	ctx := context.Background()

	ref, err := reg.LookupPermissionByName(ctx, "connection.read")
	require.NoError(t, err)
	require.NotNil(t, ref)
	require.Equal(t, perm.ID, ref.ID)
	require.Equal(t, "connection.read", ref.Name)

	ref, err = reg.LookupPermissionByName(ctx, "connection.nope")
	require.NoError(t, err)
	require.Nil(t, ref)

	ref, err = reg.LookupPermissionByName(ctx, "   ")
	require.NoError(t, err)
	require.Nil(t, ref)
}

func TestLookupRoleByName(t *testing.T) {
	db := openRegistryTestDB(t)
	reg, err := NewGormRegistry(db)
	require.NoError(t, err)

	role := models.Role{Name: "editor"}
	require.NoError(t, db.Create(&role).Error)

	ctx := context.Background()

	ref, err := reg.LookupRoleByName(ctx, "editor")
	require.NoError(t, err)
	require.NotNil(t, ref)
	require.Equal(t, role.ID, ref.ID)

	ref, err = reg.LookupRoleByName(ctx, "viewer")
	require.NoError(t, err)
	require.Nil(t, ref)
}

func TestRoleHasPermission(t *testing.T) {
	db := openRegistryTestDB(t)
	reg, err := NewGormRegistry(db)
	require.NoError(t, err)

	read := models.Permission{Name: "notes.read", Module: "notes"}
	write := models.Permission{Name: "notes.write", Module: "notes"}
	require.NoError(t, db.Create(&read).Error)
	require.NoError(t, db.Create(&write).Error)

	role := models.Role{Name: "reader", Permissions: []models.Permission{read}}
	require.NoError(t, db.Create(&role).Error)

	ctx := context.Background()

	ok, err := reg.RoleHasPermission(ctx, role.ID, read.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = reg.RoleHasPermission(ctx, role.ID, write.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = reg.RoleHasPermission(ctx, "", read.ID)
	require.NoError(t, err)
	require.False(t, ok)
}
