package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kyonifer/silveran-reader-sub004/pkg/config"
	"github.com/kyonifer/silveran-reader-sub004/pkg/library"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersEnabledJobs(t *testing.T) {
	t.Parallel()

	cfg := config.NewForTest(t.TempDir())
	cfg.SyncInterval = time.Minute
	cfg.RefreshInterval = 0

	w := New(cfg, library.NewService(library.Options{}))
	assert.Equal(t, []string{JobTypeProgressSync, JobTypePartialCleanup}, w.JobNames())
}

func TestWorker_RunsJobsUntilShutdown(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	var failures atomic.Int32
	w := newWorker(logger.New())
	w.add("counter", 5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		assert.NotNil(t, logger.FromContext(ctx))
		return nil
	})
	w.add("failing", 5*time.Millisecond, func(context.Context) error {
		failures.Add(1)
		return errors.New("boom")
	})
	w.add("disabled", 0, func(context.Context) error {
		t.Error("disabled job ran")
		return nil
	})
	require.Len(t, w.jobs, 2)

	w.Start()
	require.Eventually(t, func() bool {
		return runs.Load() >= 3 && failures.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	w.Shutdown()
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestWorker_ShutdownCancelsRunningJob(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var once atomic.Bool
	w := newWorker(logger.New())
	w.add("blocking", time.Millisecond, func(ctx context.Context) error {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-ctx.Done()
		return ctx.Err()
	})

	w.Start()
	<-started

	finished := make(chan struct{})
	go func() {
		w.Shutdown()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return")
	}
}
