package main

import (
	"context"

	"github.com/kyonifer/silveran-reader-sub004/pkg/catalogcache"
	"github.com/kyonifer/silveran-reader-sub004/pkg/config"
	"github.com/kyonifer/silveran-reader-sub004/pkg/database"
	"github.com/kyonifer/silveran-reader-sub004/pkg/downloads"
	"github.com/kyonifer/silveran-reader-sub004/pkg/events"
	"github.com/kyonifer/silveran-reader-sub004/pkg/library"
	"github.com/kyonifer/silveran-reader-sub004/pkg/mediafile"
	"github.com/kyonifer/silveran-reader-sub004/pkg/migrations"
	"github.com/kyonifer/silveran-reader-sub004/pkg/progresssync"
	"github.com/kyonifer/silveran-reader-sub004/pkg/remote"
	"github.com/kyonifer/silveran-reader-sub004/pkg/scanner"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// app is every long-lived component a command may need, wired from config.
type app struct {
	cfg     *config.Config
	db      *bun.DB
	cache   *catalogcache.Cache
	client  *remote.Client
	hub     *events.Hub
	scanner *scanner.Scanner
	service *library.Service
}

func newApp(ctx context.Context) (*app, error) {
	log := logger.FromContext(ctx)

	cfg, err := config.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}
	if group.ID != 0 {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	cache, err := catalogcache.Open(cfg.CatalogCachePath)
	if err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}

	var client *remote.Client
	if cfg.RemoteURL != "" {
		client = remote.New(remote.Options{
			BaseURL: cfg.RemoteURL,
			Token:   cfg.RemoteToken,
			Timeout: cfg.HTTPTimeout,
		})
	} else {
		log.Info("no remote configured, working from local files only")
	}

	extractor := mediafile.NewExtractor(mediafile.Options{CoverFallbacks: cfg.CoverFallbacks})
	hub := events.NewHub(0)
	queue := progresssync.New(progresssync.NewStore(db, cfg.DatabaseMaxRetries), client, progresssync.Config{
		LockPath:       cfg.QueueLockPath,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
	})

	sc := scanner.New(extractor, scanner.Options{VerifyMimeTypes: cfg.VerifyMimeTypes})
	svc := library.NewService(library.Options{
		LibraryRoot: cfg.LibraryRoot,
		Scanner:     sc,
		Remote:      client,
		Cache:       cache,
		Downloads:   downloads.New(client, downloads.Config{TempDir: cfg.TransferTempDir}),
		Queue:       queue,
		Hub:         hub,
	})

	return &app{
		cfg:     cfg,
		db:      db,
		cache:   cache,
		client:  client,
		hub:     hub,
		scanner: sc,
		service: svc,
	}, nil
}

func (a *app) Close(ctx context.Context) {
	log := logger.FromContext(ctx)
	if err := a.cache.Close(); err != nil {
		log.Err(err).Error("catalog cache close error")
	}
	if err := a.db.Close(); err != nil {
		log.Err(err).Error("database close error")
	}
}

// withApp runs fn with a fully wired app and tears it down afterwards.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(a)
}
