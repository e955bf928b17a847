package progresssync

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"golang.org/x/sync/singleflight"
)

var ErrMissingBookUUID = errors.New("book uuid is required")

// Sender delivers one progress update. *remote.Client satisfies it.
type Sender interface {
	SendProgress(ctx context.Context, bookUUID string, payload models.ProgressPayload) error
}

type Config struct {
	// LockPath, when set, names a lock file that keeps two processes sharing
	// the database from flushing at the same time.
	LockPath string
	// RetryBaseDelay is how long a failed entry waits before the next
	// attempt. It doubles per consecutive failure up to RetryMaxDelay. Zero
	// retries on every flush.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// FlushResult counts what one flush did. Deferred entries were skipped
// because they are still backing off.
type FlushResult struct {
	Synced   int  `json:"synced"`
	Failed   int  `json:"failed"`
	Deferred int  `json:"deferred"`
	Locked   bool `json:"locked,omitempty"`
}

type Queue struct {
	store  *Store
	sender Sender
	config Config
	now    func() time.Time

	// mu orders enqueues against the delete that follows an acknowledgement.
	mu    sync.Mutex
	group singleflight.Group
	lock  *flock.Flock
}

func New(store *Store, sender Sender, cfg Config) *Queue {
	q := &Queue{
		store:  store,
		sender: sender,
		config: cfg,
		now:    time.Now,
	}
	if cfg.LockPath != "" {
		q.lock = flock.New(cfg.LockPath)
	}
	return q
}

// Enqueue records payload as the latest progress for bookUUID, replacing any
// update for that book that hasn't been sent yet.
func (q *Queue) Enqueue(ctx context.Context, bookUUID string, payload models.ProgressPayload) (*models.SyncEntry, error) {
	if bookUUID == "" {
		return nil, errors.WithStack(ErrMissingBookUUID)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = q.now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entry, err := q.store.Upsert(ctx, bookUUID, payload)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("progress enqueued", logger.Data{"book_uuid": bookUUID, "revision": entry.Revision})
	return entry, nil
}

// Pending lists queued entries in the order they will be sent.
func (q *Queue) Pending(ctx context.Context) ([]*models.SyncEntry, error) {
	return q.store.List(ctx)
}

// Flush makes one pass over the queue. Calls that arrive while a flush is
// running wait for it and share its result. Per-entry failures only show up in
// the counts.
func (q *Queue) Flush(ctx context.Context) FlushResult {
	v, _, _ := q.group.Do("flush", func() (interface{}, error) {
		return q.flush(ctx), nil
	})
	return v.(FlushResult)
}

func (q *Queue) flush(ctx context.Context) FlushResult {
	log := logger.FromContext(ctx)
	var result FlushResult

	if q.lock != nil {
		locked, err := q.tryLock()
		if err != nil {
			log.Err(err).Warn("unable to take progress sync lock")
			result.Locked = true
			return result
		}
		if !locked {
			log.Debug("progress sync is locked by another process")
			result.Locked = true
			return result
		}
		defer func() {
			if err := q.lock.Unlock(); err != nil {
				log.Err(err).Warn("unable to release progress sync lock")
			}
		}()
	}

	entries, err := q.store.List(ctx)
	if err != nil {
		log.Err(err).Warn("unable to load progress sync queue")
		return result
	}

	now := q.now()
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.NextAttemptAt != nil && entry.NextAttemptAt.After(now) {
			result.Deferred++
			continue
		}

		entryLog := log.Data(logger.Data{"book_uuid": entry.BookUUID, "revision": entry.Revision})

		if entry.PayloadParsed == nil {
			result.Failed++
			q.recordFailure(ctx, entry, errors.New("stored payload could not be decoded"))
			continue
		}

		if err := q.sender.SendProgress(ctx, entry.BookUUID, *entry.PayloadParsed); err != nil {
			if ctx.Err() != nil {
				break
			}
			result.Failed++
			entryLog.Err(err).Warn("progress sync failed")
			q.recordFailure(ctx, entry, err)
			continue
		}
		result.Synced++

		q.mu.Lock()
		deleted, err := q.store.DeleteIfRevision(ctx, entry.ID, entry.Revision)
		q.mu.Unlock()
		if err != nil {
			entryLog.Err(err).Warn("unable to remove synced progress")
			continue
		}
		if !deleted {
			entryLog.Debug("progress replaced while sending, keeping newer payload")
		}
	}

	log.Info("progress sync flushed", logger.Data{
		"synced":   result.Synced,
		"failed":   result.Failed,
		"deferred": result.Deferred,
	})
	return result
}

func (q *Queue) tryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(q.config.LockPath), 0755); err != nil {
		return false, errors.WithStack(err)
	}
	locked, err := q.lock.TryLock()
	return locked, errors.WithStack(err)
}

func (q *Queue) recordFailure(ctx context.Context, entry *models.SyncEntry, cause error) {
	next := q.nextAttempt(entry.Attempts + 1)
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.store.RecordFailure(ctx, entry.ID, entry.Revision, cause.Error(), next); err != nil {
		logger.FromContext(ctx).Err(err).Warn("unable to record progress sync failure", logger.Data{"book_uuid": entry.BookUUID})
	}
}

// nextAttempt returns nil when backoff is disabled.
func (q *Queue) nextAttempt(attempts int) *time.Time {
	if q.config.RetryBaseDelay <= 0 {
		return nil
	}
	delay := q.config.RetryBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if q.config.RetryMaxDelay > 0 && delay >= q.config.RetryMaxDelay {
			delay = q.config.RetryMaxDelay
			break
		}
	}
	if q.config.RetryMaxDelay > 0 && delay > q.config.RetryMaxDelay {
		delay = q.config.RetryMaxDelay
	}
	t := q.now().Add(delay)
	return &t
}
