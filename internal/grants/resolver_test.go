package grants

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/scopegrant/internal/models"
)

func TestResolverBatchesByType(t *testing.T) {
	reg := NewResolverRegistry()

	var userCalls, teamCalls int
	require.NoError(t, reg.Register("user", func(_ context.Context, ids []string) (map[string]any, error) {
		userCalls++
		out := make(map[string]any, len(ids))
		for _, id := range ids {
			out[id] = "user:" + id
		}
		return out, nil
	}))
	require.NoError(t, reg.Register("team", func(_ context.Context, ids []string) (map[string]any, error) {
		teamCalls++
		out := make(map[string]any, len(ids))
		for _, id := range ids {
			out[id] = "team:" + id
		}
		return out, nil
	}))

	refs := []PrincipalRef{
		{Type: "user", ID: "u-1"},
		{Type: "user", ID: "u-2"},
		{Type: "user", ID: "u-3"},
		{Type: "team", ID: "t-1"},
		{Type: "user", ID: "u-1"}, // duplicate
	}

	resolved, err := reg.ResolvePrincipals(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, resolved, 4)
	require.Equal(t, "user:u-2", resolved[PrincipalRef{Type: "user", ID: "u-2"}])
	require.Equal(t, "team:t-1", resolved[PrincipalRef{Type: "team", ID: "t-1"}])

	// One call per distinct principal type, regardless of principal count.
	require.Equal(t, 1, userCalls)
	require.Equal(t, 1, teamCalls)
}

func TestResolverUnknownTypeOmitted(t *testing.T) {
	reg := NewResolverRegistry()
	require.NoError(t, reg.Register("user", func(_ context.Context, ids []string) (map[string]any, error) {
		out := make(map[string]any, len(ids))
		for _, id := range ids {
			out[id] = id
		}
		return out, nil
	}))

	resolved, err := reg.ResolvePrincipals(context.Background(), []PrincipalRef{
		{Type: "user", ID: "u-1"},
		{Type: "robot", ID: "r-1"},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.Contains(t, resolved, PrincipalRef{Type: "user", ID: "u-1"})
}

func TestResolverAggregatesFailures(t *testing.T) {
	reg := NewResolverRegistry()
	broken := errors.New("backend down")
	require.NoError(t, reg.Register("user", func(context.Context, []string) (map[string]any, error) {
		return nil, broken
	}))
	require.NoError(t, reg.Register("team", func(_ context.Context, ids []string) (map[string]any, error) {
		return map[string]any{ids[0]: "team"}, nil
	}))

	resolved, err := reg.ResolvePrincipals(context.Background(), []PrincipalRef{
		{Type: "user", ID: "u-1"},
		{Type: "team", ID: "t-1"},
	})
	require.ErrorIs(t, err, broken)
	// The healthy type still resolves.
	require.Len(t, resolved, 1)
}

func TestResolverRejectsDuplicateRegistration(t *testing.T) {
	reg := NewResolverRegistry()
	resolver := func(context.Context, []string) (map[string]any, error) { return nil, nil }

	require.NoError(t, reg.Register("user", resolver))
	require.Error(t, reg.Register("user", resolver))
}

func TestUserAndTeamResolvers(t *testing.T) {
	db := openGrantTestDB(t)
	alice := seedUser(t, db, "alice")
	team := models.Team{Name: "Operations"}
	require.NoError(t, db.Create(&team).Error)

	reg := NewResolverRegistry()
	require.NoError(t, reg.Register("user", UserResolver(db)))
	require.NoError(t, reg.Register("team", TeamResolver(db)))

	resolved, err := reg.ResolvePrincipals(context.Background(), []PrincipalRef{
		{Type: "user", ID: alice.ID},
		{Type: "user", ID: "missing"}, // dangling reference, silently omitted
		{Type: "team", ID: team.ID},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	user, ok := resolved[PrincipalRef{Type: "user", ID: alice.ID}].(*models.User)
	require.True(t, ok)
	require.Equal(t, "alice", user.Username)
}
