package migrate

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"devhub/internal/domain"
)

type Migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB) error
}

type schemaVersion struct {
	Version int `gorm:"not null"`
}

func (schemaVersion) TableName() string { return "schema_version" }

func autoMigrate(models ...any) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error { return tx.AutoMigrate(models...) }
}

// All lists the schema steps in version order.
func All() []Migration {
	return []Migration{
		{Version: 1, Name: "staff_and_apps", Up: autoMigrate(&domain.Staff{}, &domain.App{})},
		{Version: 2, Name: "projects", Up: autoMigrate(
			&domain.Project{},
			&domain.ProjectRelatedApp{},
			&domain.ProjectTimeline{},
			&domain.ProjectConfig{},
			&domain.ProjectTemplate{},
		)},
		{Version: 3, Name: "materials", Up: autoMigrate(&domain.MaterialComponent{}, &domain.MaterialTemplate{})},
		{Version: 4, Name: "audit_and_api_keys", Up: autoMigrate(&domain.AuditEvent{}, &domain.APIKey{})},
	}
}

// Migrate applies pending migrations in order and records the reached version.
func Migrate(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&schemaVersion{}); err != nil {
			return fmt.Errorf("create schema_version: %w", err)
		}
		var current schemaVersion
		err := tx.First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Create(&schemaVersion{Version: 0}).Error; err != nil {
				return fmt.Errorf("init schema_version: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("read schema_version: %w", err)
		}

		for _, m := range All() {
			if m.Version <= current.Version {
				continue
			}
			if err := m.Up(tx); err != nil {
				return fmt.Errorf("migration %03d_%s: %w", m.Version, m.Name, err)
			}
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Model(&schemaVersion{}).Update("version", m.Version).Error; err != nil {
				return fmt.Errorf("update schema_version: %w", err)
			}
			current.Version = m.Version
		}
		return nil
	})
}

// Version reports the applied schema version, 0 when nothing has run.
func Version(db *gorm.DB) (int, error) {
	if !db.Migrator().HasTable(&schemaVersion{}) {
		return 0, nil
	}
	var current schemaVersion
	err := db.First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return current.Version, err
}
