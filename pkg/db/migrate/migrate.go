package migrate

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/subseactl/fleetd/pkg/logger"
)

// Run applies every pending migration under migrationsPath to dbURL, logging
// through the same structured logger as the rest of the kernel rather than
// the standard library's log package.
func Run(dbURL string, migrationsPath string, l *logger.Logger) error {
	l.Info("running migrations", "path", migrationsPath)

	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		dbURL,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			l.Info("database migrations: no change")
			return nil
		}
		return fmt.Errorf("failed to run migrate up: %w", err)
	}

	l.Info("database migrations applied successfully")
	return nil
}
