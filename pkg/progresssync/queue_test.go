package progresssync

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/kyonifer/silveran-reader-sub004/pkg/config"
	"github.com/kyonifer/silveran-reader-sub004/pkg/database"
	"github.com/kyonifer/silveran-reader-sub004/pkg/migrations"
	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type sent struct {
	bookUUID string
	payload  models.ProgressPayload
}

type fakeSender struct {
	mu     sync.Mutex
	calls  []sent
	fail   map[string]error
	before func(bookUUID string)
}

func (f *fakeSender) SendProgress(_ context.Context, bookUUID string, payload models.ProgressPayload) error {
	if f.before != nil {
		f.before(bookUUID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{bookUUID, payload})
	return f.fail[bookUUID]
}

func (f *fakeSender) sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.calls...)
}

func openDB(t *testing.T, dir string) *bun.DB {
	t.Helper()
	cfg := config.NewForTest(dir)
	db, err := database.New(cfg)
	require.NoError(t, err)
	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)
	return db
}

func newTestQueue(t *testing.T, sender Sender, cfg Config) *Queue {
	t.Helper()
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { db.Close() })
	return New(NewStore(db, 3), sender, cfg)
}

func position(fraction float64) models.ProgressPayload {
	return models.ProgressPayload{
		FractionComplete: models.Some(fraction),
		Timestamp:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestEnqueue_CoalescesPerBook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sender := &fakeSender{}
	q := newTestQueue(t, sender, Config{})

	first, err := q.Enqueue(ctx, "book-a", position(0.1))
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, "book-a", position(0.2))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, first.Revision)
	assert.Equal(t, 2, second.Revision)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	result := q.Flush(ctx)
	assert.Equal(t, FlushResult{Synced: 1}, result)

	calls := sender.sent()
	require.Len(t, calls, 1)
	assert.Equal(t, "book-a", calls[0].bookUUID)
	assert.Equal(t, models.Some(0.2), calls[0].payload.FractionComplete)

	pending, err = q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEnqueue_RequiresBookUUID(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t, &fakeSender{}, Config{})

	_, err := q.Enqueue(context.Background(), "", position(0.5))
	assert.ErrorIs(t, err, ErrMissingBookUUID)
}

func TestEnqueue_StampsMissingTimestamp(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t, &fakeSender{}, Config{})

	entry, err := q.Enqueue(context.Background(), "book-a", models.ProgressPayload{ChapterIndex: models.Some(3)})
	require.NoError(t, err)
	assert.False(t, entry.GeneratedAt.IsZero())
	assert.False(t, entry.PayloadParsed.Timestamp.IsZero())
}

func TestFlush_PartialFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sender := &fakeSender{fail: map[string]error{"book-b": errors.New("server said no")}}
	q := newTestQueue(t, sender, Config{})

	for i, id := range []string{"book-a", "book-b", "book-c"} {
		_, err := q.Enqueue(ctx, id, position(float64(i)/10))
		require.NoError(t, err)
	}

	result := q.Flush(ctx)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, 1, result.Failed)

	calls := sender.sent()
	require.Len(t, calls, 3)
	assert.Equal(t, "book-a", calls[0].bookUUID)
	assert.Equal(t, "book-b", calls[1].bookUUID)
	assert.Equal(t, "book-c", calls[2].bookUUID)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "book-b", pending[0].BookUUID)
	assert.Equal(t, 1, pending[0].Attempts)
	require.NotNil(t, pending[0].LastError)
	assert.Contains(t, *pending[0].LastError, "server said no")

	// Once the server recovers the retained entry goes through.
	sender.mu.Lock()
	sender.fail = nil
	sender.mu.Unlock()

	result = q.Flush(ctx)
	assert.Equal(t, FlushResult{Synced: 1}, result)
	pending, err = q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFlush_KeepsQueueOrderAcrossReplacements(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sender := &fakeSender{}
	q := newTestQueue(t, sender, Config{})

	for _, id := range []string{"book-a", "book-b", "book-a"} {
		_, err := q.Enqueue(ctx, id, position(0.3))
		require.NoError(t, err)
	}

	q.Flush(ctx)
	calls := sender.sent()
	require.Len(t, calls, 2)
	assert.Equal(t, "book-a", calls[0].bookUUID)
	assert.Equal(t, "book-b", calls[1].bookUUID)
}

func TestFlush_ReplacedWhileSending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sender := &fakeSender{}
	q := newTestQueue(t, sender, Config{})

	_, err := q.Enqueue(ctx, "book-a", position(0.1))
	require.NoError(t, err)

	var once sync.Once
	sender.before = func(string) {
		once.Do(func() {
			_, err := q.Enqueue(ctx, "book-a", position(0.9))
			assert.NoError(t, err)
		})
	}

	result := q.Flush(ctx)
	assert.Equal(t, FlushResult{Synced: 1}, result)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Revision)
	assert.Equal(t, models.Some(0.9), pending[0].PayloadParsed.FractionComplete)

	q.Flush(ctx)
	calls := sender.sent()
	require.Len(t, calls, 2)
	assert.Equal(t, models.Some(0.1), calls[0].payload.FractionComplete)
	assert.Equal(t, models.Some(0.9), calls[1].payload.FractionComplete)

	pending, err = q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestQueue_SurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	db := openDB(t, dir)
	q := New(NewStore(db, 3), &fakeSender{}, Config{})
	_, err := q.Enqueue(ctx, "book-a", position(0.4))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db = openDB(t, dir)
	t.Cleanup(func() { db.Close() })
	sender := &fakeSender{}
	q = New(NewStore(db, 3), sender, Config{})

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "book-a", pending[0].BookUUID)

	assert.Equal(t, FlushResult{Synced: 1}, q.Flush(ctx))
	require.Len(t, sender.sent(), 1)
	assert.Equal(t, models.Some(0.4), sender.sent()[0].payload.FractionComplete)
}

func TestFlush_ConcurrentCallsShareOnePass(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	sender := &fakeSender{}
	sender.before = func(string) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	}
	q := newTestQueue(t, sender, Config{})

	_, err := q.Enqueue(ctx, "book-a", position(0.5))
	require.NoError(t, err)

	results := make(chan FlushResult, 2)
	go func() { results <- q.Flush(ctx) }()
	<-started
	go func() { results <- q.Flush(ctx) }()

	// Give the second call a moment to join the one in flight.
	time.Sleep(50 * time.Millisecond)
	close(release)

	first, second := <-results, <-results
	assert.Len(t, sender.sent(), 1)
	assert.Equal(t, 1, max(first.Synced, second.Synced))
}

func TestFlush_LockedByAnotherProcess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	lockPath := filepath.Join(t.TempDir(), "locks", "progress-sync.lock")

	sender := &fakeSender{}
	q := newTestQueue(t, sender, Config{LockPath: lockPath})
	_, err := q.Enqueue(ctx, "book-a", position(0.5))
	require.NoError(t, err)

	other := flock.New(lockPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0755))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	result := q.Flush(ctx)
	assert.True(t, result.Locked)
	assert.Empty(t, sender.sent())

	require.NoError(t, other.Unlock())
	result = q.Flush(ctx)
	assert.False(t, result.Locked)
	assert.Equal(t, 1, result.Synced)
}

func TestFlush_BacksOffFailedEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sender := &fakeSender{fail: map[string]error{"book-a": errors.New("unavailable")}}
	q := newTestQueue(t, sender, Config{RetryBaseDelay: time.Minute, RetryMaxDelay: 4 * time.Minute})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	_, err := q.Enqueue(ctx, "book-a", position(0.5))
	require.NoError(t, err)

	assert.Equal(t, FlushResult{Failed: 1}, q.Flush(ctx))
	assert.Equal(t, FlushResult{Deferred: 1}, q.Flush(ctx))

	now = now.Add(61 * time.Second)
	assert.Equal(t, FlushResult{Failed: 1}, q.Flush(ctx))
	assert.Len(t, sender.sent(), 2)

	// A new payload resets the backoff.
	_, err = q.Enqueue(ctx, "book-a", position(0.6))
	require.NoError(t, err)
	assert.Equal(t, FlushResult{Failed: 1}, q.Flush(ctx))
}

func TestNextAttempt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := &Queue{config: Config{RetryBaseDelay: time.Second, RetryMaxDelay: 5 * time.Second}, now: func() time.Time { return now }}

	tests := []struct {
		attempts int
		expected time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{20, 5 * time.Second},
	}
	for _, tt := range tests {
		next := q.nextAttempt(tt.attempts)
		require.NotNil(t, next)
		assert.Equal(t, tt.expected, next.Sub(now), "attempts=%d", tt.attempts)
	}

	q.config.RetryBaseDelay = 0
	assert.Nil(t, q.nextAttempt(3))
}
