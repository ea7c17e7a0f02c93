package persistence

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	mpostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/wfunc/soccerserver/logger"
)

//go:embed all:migrations
var migrationsFS embed.FS

// Migrate 执行所有待处理的迁移. It opens its own connection because closing a
// migrate instance also closes the database handle it was given.
func Migrate(dialect Dialect, dsn string) error {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return fmt.Errorf("open %s for migrations: %w", dialect, err)
	}

	var driver database.Driver
	switch dialect {
	case DialectPostgres:
		driver, err = mpostgres.WithInstance(db, &mpostgres.Config{})
	case DialectSQLite:
		driver, err = msqlite.WithInstance(db, &msqlite.Config{})
	default:
		err = fmt.Errorf("unknown dialect %q", dialect)
	}
	if err != nil {
		db.Close()
		return fmt.Errorf("migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		driver.Close()
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(dialect), driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("migration instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Log.Warnf("close migrations: source=%v db=%v", srcErr, dbErr)
		}
	}()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration version: %w", err)
	}
	if dirty {
		logger.Log.Warnf("database is dirty at version %d, forcing", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("force version %d: %w", version, err)
		}
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migrate up: %w", err)
	}
	newVersion, _, _ := m.Version()
	logger.Log.Infof("%s schema migrated to version %d", dialect, newVersion)
	return nil
}
