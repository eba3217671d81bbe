package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"devhub/internal/config"
	"devhub/internal/logger"
)

// Options selects the database to open.
type Options struct {
	Driver       string
	DSN          string
	Path         string
	MaxOpenConns int
	Log          *logger.Logger
}

// FromConfig builds Options from the database section of the config.
func FromConfig(cfg config.DatabaseConfig, log *logger.Logger) Options {
	return Options{
		Driver:       cfg.Driver,
		DSN:          cfg.DSN,
		Path:         cfg.Path,
		MaxOpenConns: cfg.MaxOpenConns,
		Log:          log,
	}
}

// EnsureDir creates the directory holding a sqlite file if missing.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// OpenSQLite opens the SQLite file through the pure-Go modernc driver with foreign keys
// on and a busy timeout. The pool is limited to one connection.
func OpenSQLite(path string) (*sql.DB, error) {
	if err := EnsureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Open opens a gorm handle for the configured driver.
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "", "sqlite":
		conn, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
		dialector = &sqlite.Dialector{DriverName: "sqlite", Conn: conn}
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	case "mysql":
		dialector = mysql.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger(opts.Log),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName(opts.Driver), err)
	}
	if opts.MaxOpenConns > 0 && opts.Driver != "" && opts.Driver != "sqlite" {
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	return gdb, nil
}

// Close releases the underlying connection pool.
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newGormLogger(log *logger.Logger) gormLogger.Interface {
	if log == nil {
		return gormLogger.Default.LogMode(gormLogger.Silent)
	}
	return gormLogger.New(log.With("component", "gorm"), gormLogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormLogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func driverName(d string) string {
	if d == "" {
		return "sqlite"
	}
	return d
}
