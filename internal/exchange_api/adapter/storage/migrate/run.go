package migrate

import (
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/langowen/exchange-rates/deploy/migrations"
	"github.com/pkg/errors"
	"log/slog"
)

// Up applies every pending migration. databaseURL uses the pgx5:// scheme.
func Up(databaseURL string) error {
	const op = "storage.migrate.Up"

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return errors.Wrap(err, op)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return errors.Wrap(err, op)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, op)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return errors.Wrap(err, op)
	}

	slog.Info("Migrations applied", "version", version, "dirty", dirty)

	return nil
}
