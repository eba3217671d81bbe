package testutil

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"devhub/internal/db"
	"devhub/internal/domain"
	"devhub/internal/migrate"
)

// DB opens a migrated SQLite database under the test's temp dir.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	gdb, err := db.Open(db.Options{Driver: "sqlite", Path: filepath.Join(tb.TempDir(), "devhub.db")})
	if err != nil {
		tb.Fatalf("open db: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close(gdb) })
	if err := migrate.Migrate(gdb); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return gdb
}

// SteppingClock returns a clock that advances one second per call, starting one second
// after base. It is safe for concurrent use.
func SteppingClock(base time.Time) func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, p domain.Project) *domain.Project {
	tb.Helper()
	if p.ID == "" {
		tb.Fatalf("seed project: id required")
	}
	if p.CreateTime == nil {
		now := time.Now().UTC()
		p.CreateTime = &now
	}
	if err := tx.WithContext(ctx).Create(&p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return &p
}
