package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE progress_sync_entries (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				book_uuid TEXT NOT NULL,
				payload TEXT NOT NULL,
				generated_at TIMESTAMPTZ NOT NULL,
				revision INTEGER NOT NULL DEFAULT 1,
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				next_attempt_at TIMESTAMPTZ
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		// One pending position per book; enqueueing again replaces it.
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_progress_sync_entries_book_uuid ON progress_sync_entries(book_uuid)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`DROP TABLE IF EXISTS progress_sync_entries`)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
