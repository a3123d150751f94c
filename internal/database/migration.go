package database

import (
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"

	"gorm.io/gorm"
)

//go:embed migrations/*/up.sql migrations/*/down.sql
var migrationsFS embed.FS

var migrationVersionRegex = regexp.MustCompile(`^(\d+)`)

type SchemaVersion uint64

type SchemaMigration struct {
	Version SchemaVersion `gorm:"primaryKey"`
}

func CurrentSchemaVersion(db *gorm.DB) SchemaVersion {
	return CurrentSchemaMigration(db).Version
}

func CurrentSchemaMigration(db *gorm.DB) SchemaMigration {
	var schemaMigration SchemaMigration

	db.
		Model(&SchemaMigration{}).
		Select("version").
		Order("version desc").
		Limit(1).
		Scan(&schemaMigration)

	return schemaMigration
}

type Migration struct {
	Version SchemaVersion
	Dir     fs.DirEntry
}

func (migration *Migration) Up(db *gorm.DB) error {
	sql, err := migration.UpSQL()
	if err != nil {
		return err
	}

	return db.Exec(sql).Error
}

func (migration *Migration) Down(db *gorm.DB) error {
	sql, err := migration.DownSQL()
	if err != nil {
		return err
	}

	return db.Exec(sql).Error
}

func (migration *Migration) UpSQL() (string, error) {
	return migration.readSQL("up.sql")
}

func (migration *Migration) DownSQL() (string, error) {
	return migration.readSQL("down.sql")
}

func (migration *Migration) readSQL(name string) (string, error) {
	contents, err := fs.ReadFile(migrationsFS, fmt.Sprintf("migrations/%s/%s", migration.DirName(), name))
	if err != nil {
		return "", fmt.Errorf("failed to read %s for migration %s: %w", name, migration.DirName(), err)
	}

	return string(contents), nil
}

func (migration *Migration) DirName() string {
	return migration.Dir.Name()
}

// Migrate applies every embedded migration newer than the recorded schema
// version, each in its own transaction.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	currentVersion := CurrentSchemaVersion(db)
	migrations, err := MigrationsNewerThan(currentVersion)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&SchemaMigration{Version: migration.Version}).Error; err != nil {
				return err
			}

			return migration.Up(tx)
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// Rollback reverts the most recently applied migration.
func Rollback(db *gorm.DB) error {
	current := CurrentSchemaVersion(db)
	if current == 0 {
		return nil
	}

	migrations, err := MigrationsNewerThan(current - 1)
	if err != nil {
		return err
	}
	if len(migrations) == 0 || migrations[0].Version != current {
		return fmt.Errorf("no migration found for schema version %d", current)
	}

	migration := migrations[0]

	return db.Transaction(func(tx *gorm.DB) error {
		if err := migration.Down(tx); err != nil {
			return fmt.Errorf("failed to revert migration %d: %w", migration.Version, err)
		}

		return tx.Delete(&SchemaMigration{}, "version = ?", migration.Version).Error
	})
}

func MigrationsNewerThan(minVersion SchemaVersion) ([]Migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		match := migrationVersionRegex.FindStringSubmatch(entry.Name())
		if len(match) != 2 {
			return nil, fmt.Errorf("invalid migration directory name: %s - missing version number", entry.Name())
		}

		versionInt, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid migration version: %s - %w", match[1], err)
		}

		version := SchemaVersion(versionInt)
		if version <= minVersion {
			continue
		}

		migrations = append(migrations, Migration{
			Version: version,
			Dir:     entry,
		})
	}

	return migrations, nil
}

// LatestSchemaVersion is the version a fully migrated database reports.
func LatestSchemaVersion() SchemaVersion {
	migrations, err := MigrationsNewerThan(0)
	if err != nil || len(migrations) == 0 {
		return 0
	}

	return migrations[len(migrations)-1].Version
}
