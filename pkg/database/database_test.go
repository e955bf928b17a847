package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kyonifer/silveran-reader-sub004/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBusyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked"), true},
		{"SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"error code 6", errors.New("error (6): database locked"), true},
		{"unrelated error", errors.New("connection refused"), false},
		{"constraint violation", errors.New("UNIQUE constraint failed: progress_sync_entries.book_uuid"), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsBusyError(tt.err))
		})
	}
}

func TestRetry(t *testing.T) {
	t.Parallel()

	t.Run("succeeds after busy errors", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := Retry(context.Background(), 3, func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("doesn't retry other errors", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := Retry(context.Background(), 3, func() error {
			calls++
			return errors.New("no such table")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := Retry(context.Background(), 2, func() error {
			calls++
			return errors.New("SQLITE_BUSY")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		err := Retry(ctx, 100, func() error {
			return errors.New("SQLITE_BUSY")
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	cfg := config.NewForTest(t.TempDir())
	cfg.DatabaseFilePath = filepath.Join(t.TempDir(), "nested", "test.sqlite")

	db, err := New(cfg)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}
