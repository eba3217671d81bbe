package app

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"devhub/internal/config"
	"devhub/internal/db"
	"devhub/internal/engine"
	"devhub/internal/logger"
	"devhub/internal/migrate"
)

// Runtime is everything a command needs to run against the configured database.
type Runtime struct {
	Config *config.Config
	Log    *logger.Logger
	DB     *gorm.DB
	Engine *engine.Engine
}

// Options override values read from the config file.
type Options struct {
	ConfigPath string
	LogMode    string
	// SkipMigrate leaves the schema untouched.
	SkipMigrate bool
}

// Open loads the config, opens and migrates the database and wires the engine.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	return FromConfig(ctx, cfg, opts)
}

// FromConfig is Open for an already loaded config.
func FromConfig(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	mode := cfg.Log.Mode
	if opts.LogMode != "" {
		mode = opts.LogMode
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	conn, err := db.Open(db.FromConfig(cfg.Database, log))
	if err != nil {
		return nil, err
	}
	if !opts.SkipMigrate {
		if err := migrate.Migrate(conn.WithContext(ctx)); err != nil {
			_ = db.Close(conn)
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	e, err := engine.New(conn, cfg, log)
	if err != nil {
		_ = db.Close(conn)
		return nil, err
	}
	return &Runtime{Config: cfg, Log: log, DB: conn, Engine: e}, nil
}

// Close releases the database and flushes the logger.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	r.Log.Sync()
	return db.Close(r.DB)
}
