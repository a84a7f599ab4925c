package grants

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJanitorSweepPurgesOnlyExpiredRows(t *testing.T) {
	db := openGrantTestDB(t)
	store := newTestStore(t, db)
	perm := seedPermission(t, db, "doc.view")

	doc := ResourceRef{Type: "doc", ID: "d-1"}
	ctx := context.Background()

	live := permissionGrant(PrincipalRef{Type: "user", ID: "u-live"}, doc, perm.ID)
	_, _, err := store.InsertIfAbsent(ctx, live)
	require.NoError(t, err)

	stale := permissionGrant(PrincipalRef{Type: "user", ID: "u-stale"}, doc, perm.ID)
	past := time.Now().Add(-time.Minute)
	stale.ExpiresAt = &past
	_, _, err = store.InsertIfAbsent(ctx, stale)
	require.NoError(t, err)

	janitor, err := NewJanitor(store, "")
	require.NoError(t, err)
	janitor.Sweep(ctx)

	require.EqualValues(t, 1, countGrantRows(t, db))

	rows, err := store.FindMatching(ctx, Filter{Resource: &doc, IncludeExpired: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "u-live", rows[0].PrincipalID)
}

func TestJanitorRequiresStore(t *testing.T) {
	_, err := NewJanitor(nil, "")
	require.Error(t, err)
}
