package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/kyonifer/silveran-reader-sub004/pkg/config"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type key int

const ctxKey key = 0

func WithLogging(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey, true)
}

type logQueryHook struct {
	log logger.Logger
}

func (*logQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (qh *logQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	enabled, ok := ctx.Value(ctxKey).(bool)
	if !ok || !enabled {
		return
	}

	qh.log.Debug(event.Query, logger.Data{"duration": time.Since(event.StartTime).String()})
}

// New opens the SQLite database at cfg.DatabaseFilePath. A single connection
// is used so that per-connection pragmas stick and writes from this process
// never contend with each other.
func New(cfg *config.Config) (*bun.DB, error) {
	if cfg.DatabaseFilePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabaseFilePath), 0755); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseFilePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	// print out all queries in debug mode
	if cfg.DatabaseDebug {
		db.AddQueryHook(&logQueryHook{logger.NewWithLevel("debug")})
	}

	attempts := cfg.DatabaseConnectRetryCount
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		_, err = db.Exec("SELECT 1")
		if err == nil {
			break
		}
		time.Sleep(cfg.DatabaseConnectRetryDelay)
	}
	if err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}

	if cfg.DatabaseFilePath != ":memory:" {
		// WAL keeps readers in other processes (the CLI next to a running
		// server) from blocking on writes.
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to enable WAL mode")
		}
	}

	busyTimeoutMs := cfg.DatabaseBusyTimeout.Milliseconds()
	if _, err := db.Exec("PRAGMA busy_timeout=?", busyTimeoutMs); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set busy_timeout")
	}

	return db, nil
}
