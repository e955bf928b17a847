package progresssync

import (
	"context"
	"database/sql"
	"time"

	"github.com/kyonifer/silveran-reader-sub004/pkg/database"
	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Store is the durable side of the queue. Entries are keyed by book UUID and
// ordered by ID, which is assigned on first enqueue and kept across replacements.
type Store struct {
	db         *bun.DB
	maxRetries int
}

func NewStore(db *bun.DB, maxRetries int) *Store {
	return &Store{db: db, maxRetries: maxRetries}
}

// Upsert stores payload as the pending update for bookUUID. An existing entry
// keeps its position, gets the new payload and a bumped revision, and has its
// retry state reset.
func (s *Store) Upsert(ctx context.Context, bookUUID string, payload models.ProgressPayload) (*models.SyncEntry, error) {
	entry := &models.SyncEntry{BookUUID: bookUUID}
	if err := entry.MarshalPayload(payload); err != nil {
		return nil, err
	}

	err := database.Retry(ctx, s.maxRetries, func() error {
		return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			now := time.Now()

			result, err := tx.NewUpdate().
				Model((*models.SyncEntry)(nil)).
				Set("payload = ?", entry.Payload).
				Set("generated_at = ?", entry.GeneratedAt).
				Set("revision = revision + 1").
				Set("attempts = 0").
				Set("last_error = NULL").
				Set("next_attempt_at = NULL").
				Set("updated_at = ?", now).
				Where("book_uuid = ?", bookUUID).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return errors.WithStack(err)
			}
			if n == 0 {
				entry.CreatedAt = now
				entry.UpdatedAt = now
				entry.Revision = 1
				if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
					return errors.WithStack(err)
				}
				return nil
			}

			return errors.WithStack(tx.NewSelect().
				Model(entry).
				Where("book_uuid = ?", bookUUID).
				Scan(ctx))
		})
	})
	if err != nil {
		return nil, err
	}
	if err := entry.UnmarshalPayload(); err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns every pending entry in queue order with its payload decoded.
// Entries whose payload can't be decoded are returned with a nil
// PayloadParsed.
func (s *Store) List(ctx context.Context) ([]*models.SyncEntry, error) {
	var entries []*models.SyncEntry
	err := s.db.NewSelect().
		Model(&entries).
		Order("pse.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, e := range entries {
		if err := e.UnmarshalPayload(); err != nil {
			e.PayloadParsed = nil
		}
	}
	return entries, nil
}

// Get returns the pending entry for bookUUID, or nil when there is none.
func (s *Store) Get(ctx context.Context, bookUUID string) (*models.SyncEntry, error) {
	entry := &models.SyncEntry{}
	err := s.db.NewSelect().
		Model(entry).
		Where("pse.book_uuid = ?", bookUUID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	if err := entry.UnmarshalPayload(); err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteIfRevision removes an acknowledged entry. It reports false when the
// entry was replaced in the meantime and therefore still has to be sent.
func (s *Store) DeleteIfRevision(ctx context.Context, id, revision int) (bool, error) {
	var n int64
	err := database.Retry(ctx, s.maxRetries, func() error {
		result, err := s.db.NewDelete().
			Model((*models.SyncEntry)(nil)).
			Where("id = ?", id).
			Where("revision = ?", revision).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		n, err = result.RowsAffected()
		return errors.WithStack(err)
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordFailure notes a failed delivery. A replacement payload enqueued since
// the attempt started keeps its fresh retry state.
func (s *Store) RecordFailure(ctx context.Context, id, revision int, cause string, nextAttempt *time.Time) error {
	return database.Retry(ctx, s.maxRetries, func() error {
		_, err := s.db.NewUpdate().
			Model((*models.SyncEntry)(nil)).
			Set("attempts = attempts + 1").
			Set("last_error = ?", cause).
			Set("next_attempt_at = ?", nextAttempt).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", id).
			Where("revision = ?", revision).
			Exec(ctx)
		return errors.WithStack(err)
	})
}

// Delete drops the pending entry for bookUUID regardless of its state.
func (s *Store) Delete(ctx context.Context, bookUUID string) error {
	return database.Retry(ctx, s.maxRetries, func() error {
		_, err := s.db.NewDelete().
			Model((*models.SyncEntry)(nil)).
			Where("book_uuid = ?", bookUUID).
			Exec(ctx)
		return errors.WithStack(err)
	})
}
