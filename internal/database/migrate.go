package database

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// Register the pgx/v5 database driver (pgx5:// scheme) for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/GyroZepelix/mithril-forms/migrations"
)

// RunMigrations applies every pending up migration embedded in the binary.
// databaseURL uses the postgres:// or postgresql:// scheme, the same URL
// handed to New.
func RunMigrations(databaseURL string) (retErr error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if retErr != nil {
			return
		}
		switch {
		case sourceErr != nil:
			retErr = fmt.Errorf("closing migration source: %w", sourceErr)
		case dbErr != nil:
			retErr = fmt.Errorf("closing migration database: %w", dbErr)
		}
	}()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		slog.Debug("database schema up to date")
	case err != nil:
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database schema version %d is dirty", version)
	}
	slog.Info("database migrated", "version", version)
	return nil
}

// migrateURL rewrites a libpq style URL to the pgx5 scheme expected by the
// migrate driver.
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, prefix); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}
