package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/scopegrant/internal/grants"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/scopegrant.sqlite", cfg.Database.Path)
	require.Equal(t, "uuid", cfg.Grants.PrincipalIDKind)
	require.Equal(t, "uuid", cfg.Grants.ResourceIDKind)
	require.True(t, cfg.Grants.Cleanup.Enabled)
	require.Equal(t, "@every 5m", cfg.Grants.Cleanup.Schedule)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("SCOPEGRANT_SERVER_PORT", "9100")
	t.Setenv("SCOPEGRANT_GRANTS_PRINCIPAL_ID_KIND", "integer")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "integer", cfg.Grants.PrincipalIDKind)
}

func TestGrantsEngineConfig(t *testing.T) {
	gc := GrantsConfig{
		TableName:       " tenant_grants ",
		PrincipalIDKind: "integer",
		ResourceIDKind:  "opaque",
	}

	engine, err := gc.EngineConfig()
	require.NoError(t, err)
	require.Equal(t, "tenant_grants", engine.TableName)
	require.Equal(t, grants.KindInteger, engine.PrincipalIDKind)
	require.Equal(t, grants.KindOpaque, engine.ResourceIDKind)

	_, err = GrantsConfig{PrincipalIDKind: "hex"}.EngineConfig()
	require.Error(t, err)
}
