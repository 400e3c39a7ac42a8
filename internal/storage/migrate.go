package storage

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose"
)

// Migrate runs goose migrations from dir against the DSN. Goose wants a
// database/sql handle, so it opens its own short-lived connection via the
// pgx stdlib driver rather than borrowing the pool.
func Migrate(dsn, dir string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return errors.Wrap(err, "open for migration")
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.Up(db, dir); err != nil {
		return errors.Wrap(err, "goose up")
	}
	return nil
}
