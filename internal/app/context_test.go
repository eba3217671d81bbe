package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"devhub/internal/config"
	"devhub/internal/domain"
	"devhub/internal/migrate"
)

func TestOpenWithMissingConfigUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(context.Background(), Options{ConfigPath: config.Path(dir), LogMode: "test"})
	require.NoError(t, err)
	defer rt.Close()

	require.Equal(t, "sqlite", rt.Config.Database.Driver)
	require.Equal(t, filepath.ToSlash(filepath.Join(dir, ".devhub", "devhub.db")), rt.Config.Database.Path)
	v, err := migrate.Version(rt.DB)
	require.NoError(t, err)
	require.Equal(t, len(migrate.All()), v)

	id, err := rt.Engine.Apps.Create(context.Background(), "cli", &domain.App{AppName: "billing"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
}

func TestFromConfigRejectsBadDriver(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.Database.Driver = "oracle"
	_, err := FromConfig(context.Background(), cfg, Options{LogMode: "test"})
	require.Error(t, err)
}
