package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/kyonifer/silveran-reader-sub004/pkg/config"
	"github.com/kyonifer/silveran-reader-sub004/pkg/downloads"
	"github.com/kyonifer/silveran-reader-sub004/pkg/library"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

const (
	JobTypeProgressSync   = "progress_sync"
	JobTypeLibraryRefresh = "library_refresh"
	JobTypePartialCleanup = "partial_cleanup"

	partialCleanupInterval = time.Hour
)

var processID = randStringBytes(8)

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

// Worker runs the periodic background jobs of a running server.
type Worker struct {
	log  logger.Logger
	jobs []job

	ctx      context.Context
	cancel   context.CancelFunc
	shutdown chan struct{}
	done     chan struct{}
}

func New(cfg *config.Config, svc *library.Service) *Worker {
	w := newWorker(logger.New())

	w.add(JobTypeProgressSync, cfg.SyncInterval, func(ctx context.Context) error {
		_, err := svc.FlushProgress(ctx)
		if errors.Is(err, library.ErrSyncDisabled) || errors.Is(err, library.ErrRemoteNotConfigured) {
			return nil
		}
		return err
	})
	w.add(JobTypeLibraryRefresh, cfg.RefreshInterval, func(ctx context.Context) error {
		_, err := svc.Refresh(ctx)
		return err
	})
	w.add(JobTypePartialCleanup, partialCleanupInterval, func(ctx context.Context) error {
		removed, err := downloads.CleanupPartials(cfg.TransferTempDir, cfg.PartialMaxAge)
		if removed > 0 {
			logger.FromContext(ctx).Info("removed stale partial downloads", logger.Data{"removed": removed})
		}
		return err
	})

	return w
}

func newWorker(log logger.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		shutdown: make(chan struct{}),
	}
}

// add registers a job. A non-positive interval disables it.
func (w *Worker) add(name string, interval time.Duration, run func(ctx context.Context) error) {
	if interval <= 0 {
		w.log.Info("job disabled", logger.Data{"type": name})
		return
	}
	w.jobs = append(w.jobs, job{name: name, interval: interval, run: run})
}

func (w *Worker) JobNames() []string {
	names := make([]string, 0, len(w.jobs))
	for _, j := range w.jobs {
		names = append(names, j.name)
	}
	return names
}

func (w *Worker) Start() {
	w.done = make(chan struct{}, len(w.jobs))
	for _, j := range w.jobs {
		go w.runJob(j)
	}
}

func (w *Worker) runJob(j job) {
	timer := time.NewTimer(j.interval)
	defer timer.Stop()

	for {
		select {
		case <-w.shutdown:
			w.done <- struct{}{}
			return
		case <-timer.C:
			id, err := uuid.NewRandom()
			if err != nil {
				w.log.Err(err).Error("new uuid error")
				timer.Reset(j.interval)
				continue
			}
			log := w.log.ID(id.String()).Root(logger.Data{"type": j.name, "process_id": processID})
			ctx := log.WithContext(w.ctx)

			start := time.Now()
			if err := j.run(ctx); err != nil && w.ctx.Err() == nil {
				log.Err(err).Error("job error")
			} else {
				log.Debug("job finished", logger.Data{"duration": time.Since(start).String()})
			}
			timer.Reset(j.interval)
		}
	}
}

// Shutdown stops scheduling, cancels running jobs and waits for them to
// return.
func (w *Worker) Shutdown() {
	close(w.shutdown)
	w.cancel()

	for range w.jobs {
		<-w.done
	}
}

const letterBytes = "abcdef0123456789"

func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}
