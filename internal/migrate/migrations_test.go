package migrate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"devhub/internal/db"
	"devhub/internal/domain"
)

func TestMigrateIsIdempotent(t *testing.T) {
	gdb, err := db.Open(db.Options{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "devhub.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	require.NoError(t, Migrate(gdb))
	require.NoError(t, Migrate(gdb))

	v, err := Version(gdb)
	require.NoError(t, err)
	require.Equal(t, All()[len(All())-1].Version, v)

	for _, model := range []any{&domain.Staff{}, &domain.Project{}, &domain.ProjectTimeline{}, &domain.MaterialTemplate{}, &domain.AuditEvent{}} {
		require.True(t, gdb.Migrator().HasTable(model))
	}
	require.True(t, gdb.Migrator().HasColumn(&domain.Project{}, "git_url"))
	require.True(t, gdb.Migrator().HasColumn(&domain.MaterialComponent{}, "code"))
}

func TestVersionOnEmptyDatabase(t *testing.T) {
	gdb, err := db.Open(db.Options{Path: filepath.Join(t.TempDir(), "empty.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	v, err := Version(gdb)
	require.NoError(t, err)
	require.Zero(t, v)
}
