package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kyonifer/silveran-reader-sub004/pkg/config"
	"github.com/kyonifer/silveran-reader-sub004/pkg/database"
	"github.com/kyonifer/silveran-reader-sub004/pkg/downloads"
	"github.com/kyonifer/silveran-reader-sub004/pkg/events"
	"github.com/kyonifer/silveran-reader-sub004/pkg/library"
	"github.com/kyonifer/silveran-reader-sub004/pkg/migrations"
	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/kyonifer/silveran-reader-sub004/pkg/scanner"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"
)

var bookHeaders = []string{"UUID", "Title", "Authors", "Variants"}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "list the books found under the library root",
		Action: func(c *cli.Context) error {
			return withApp(c.Context, func(a *app) error {
				result, err := a.scanner.Scan(c.Context, a.cfg.LibraryRoot, scanner.ScanOptions{})
				if err != nil {
					return errors.WithStack(err)
				}
				catalog := &models.Catalog{Books: result.Books, Paths: result.Paths}
				fmt.Println(renderTable(bookHeaders, bookRows(catalog), nil))
				fmt.Printf("%d books under %s\n", len(result.Books), a.cfg.LibraryRoot)
				return nil
			})
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "merge the local library with the remote catalog",
		Action: func(c *cli.Context) error {
			return withApp(c.Context, func(a *app) error {
				result, err := a.service.Refresh(c.Context)
				if err != nil {
					return errors.WithStack(err)
				}
				fmt.Println(renderTable(bookHeaders, bookRows(a.service.Snapshot()), nil))
				fmt.Printf("%d books, %d missing assets (catalog: %s)\n", result.Books, result.Missing, result.Source)
				if result.RemoteError != "" {
					fmt.Printf("remote %s unavailable: %s\n", a.client.BaseURL(), result.RemoteError)
				}
				return nil
			})
		},
	}
}

func missingCommand() *cli.Command {
	return &cli.Command{
		Name:  "missing",
		Usage: "list assets the remote declares that aren't downloaded yet",
		Action: func(c *cli.Context) error {
			return withApp(c.Context, func(a *app) error {
				if _, err := a.service.Refresh(c.Context); err != nil {
					return errors.WithStack(err)
				}
				missing := a.service.Missing()
				rows := make([][]string, 0, len(missing))
				for _, m := range missing {
					rows = append(rows, []string{m.BookUUID, m.Title, string(m.Variant), m.Filepath})
				}
				fmt.Println(renderTable([]string{"UUID", "Title", "Variant", "Remote path"}, rows, nil))
				return nil
			})
		},
	}
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "download one asset, or every missing asset with --all",
		ArgsUsage: "[book-uuid variant]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "download every missing asset"},
			&cli.BoolFlag{Name: "resume", Usage: "continue from a partial download when possible"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("all") && c.NArg() != 2 {
				return cli.ShowSubcommandHelp(c)
			}
			return withApp(c.Context, func(a *app) error {
				if _, err := a.service.Refresh(c.Context); err != nil {
					return errors.WithStack(err)
				}

				printer := &progressPrinter{w: os.Stdout, live: isTerminal(os.Stdout)}
				id, ch := a.service.Subscribe()
				printed := make(chan struct{})
				go func() {
					defer close(printed)
					for ev := range ch {
						if tev, ok := ev.Data.(downloads.Event); ok && ev.Type == events.TypeTransfer {
							printer.transfer(tev)
						}
					}
				}()

				opts := downloads.Options{Resume: c.Bool("resume")}
				var sessions []*downloads.Session
				if c.Bool("all") {
					started, err := a.service.DownloadMissing(c.Context, opts)
					sessions = started
					if err != nil {
						a.service.WaitTransfers()
						a.service.Unsubscribe(id)
						<-printed
						return errors.WithStack(err)
					}
				} else {
					variant, err := models.ParseVariant(c.Args().Get(1))
					if err != nil {
						a.service.Unsubscribe(id)
						return errors.WithStack(err)
					}
					session, err := a.service.DownloadAsset(c.Context, c.Args().Get(0), variant, opts)
					if err != nil {
						a.service.Unsubscribe(id)
						return errors.WithStack(err)
					}
					sessions = append(sessions, session)
				}

				a.service.WaitTransfers()
				a.service.Unsubscribe(id)
				<-printed

				failed := 0
				for _, s := range sessions {
					if s.Wait().Kind != downloads.EventCompleted {
						failed++
					}
				}
				fmt.Printf("%d of %d downloads completed\n", len(sessions)-failed, len(sessions))
				if failed > 0 {
					return errors.Errorf("%d downloads failed", failed)
				}
				return nil
			})
		},
	}
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "send a local asset to the remote server",
		ArgsUsage: "<book-uuid> <variant>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.ShowSubcommandHelp(c)
			}
			variant, err := models.ParseVariant(c.Args().Get(1))
			if err != nil {
				return errors.WithStack(err)
			}
			return withApp(c.Context, func(a *app) error {
				if _, err := a.service.Refresh(c.Context); err != nil {
					return errors.WithStack(err)
				}
				result, err := a.service.UploadAsset(c.Context, c.Args().Get(0), variant)
				if err != nil {
					return errors.WithStack(err)
				}
				fmt.Printf("uploaded %s (%s)\n", result.Ref, humanize.Bytes(uint64(result.Bytes)))
				return nil
			})
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "inspect and send queued reading progress",
		Subcommands: []*cli.Command{
			{
				Name:  "flush",
				Usage: "send every queued progress update now",
				Action: func(c *cli.Context) error {
					return withApp(c.Context, func(a *app) error {
						result, err := a.service.FlushProgress(c.Context)
						if errors.Is(err, library.ErrRemoteNotConfigured) {
							fmt.Println("no remote configured, updates stay queued")
							return nil
						}
						if err != nil {
							return errors.WithStack(err)
						}
						if result.Locked {
							fmt.Println("another process is flushing, nothing sent")
							return nil
						}
						fmt.Printf("synced %d, failed %d, deferred %d\n", result.Synced, result.Failed, result.Deferred)
						return nil
					})
				},
			},
			{
				Name:  "pending",
				Usage: "list progress updates waiting to be sent",
				Action: func(c *cli.Context) error {
					return withApp(c.Context, func(a *app) error {
						entries, err := a.service.PendingProgress(c.Context)
						if err != nil {
							return errors.WithStack(err)
						}
						fmt.Println(renderTable(
							[]string{"Book", "Revision", "Progress", "Attempts", "Next attempt", "Last error"},
							pendingRows(entries, time.Now()),
							[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
						))
						return nil
					})
				},
			},
		},
	}
}

func pendingRows(entries []*models.SyncEntry, now time.Time) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		progress := "-"
		if e.PayloadParsed != nil {
			if f, ok := e.PayloadParsed.FractionComplete.Get(); ok {
				progress = strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
			}
		}
		next := "now"
		if e.NextAttemptAt != nil && e.NextAttemptAt.After(now) {
			next = humanize.RelTime(*e.NextAttemptAt, now, "ago", "from now")
		}
		lastError := ""
		if e.LastError != nil {
			lastError = *e.LastError
		}
		rows = append(rows, []string{
			e.BookUUID,
			strconv.Itoa(e.Revision),
			progress,
			strconv.Itoa(e.Attempts),
			next,
			lastError,
		})
	}
	return rows
}

func dbCommand() *cli.Command {
	withDB := func(fn func(db *bun.DB) error) error {
		cfg, err := config.New()
		if err != nil {
			return errors.WithStack(err)
		}
		db, err := database.New(cfg)
		if err != nil {
			return errors.WithStack(err)
		}
		defer db.Close()
		return fn(db)
	}

	return &cli.Command{
		Name:  "db",
		Usage: "interact with migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "migrate database",
				Action: func(c *cli.Context) error {
					return withDB(func(db *bun.DB) error {
						group, err := migrations.BringUpToDate(c.Context, db)
						if err != nil {
							return err
						}
						if group.ID == 0 {
							fmt.Printf("There are no new migrations to run\n")
							return nil
						}
						fmt.Printf("Migrated to %s\n", group)
						return nil
					})
				},
			},
			{
				Name:  "rollback",
				Usage: "rollback the last migration group",
				Action: func(c *cli.Context) error {
					return withDB(func(db *bun.DB) error {
						group, err := migrations.Rollback(c.Context, db)
						if err != nil {
							return err
						}
						if group.ID == 0 {
							fmt.Printf("There are no groups to roll back\n")
							return nil
						}
						fmt.Printf("Rolled back %s\n", group)
						return nil
					})
				},
			},
			{
				Name:  "status",
				Usage: "print migrations status",
				Action: func(c *cli.Context) error {
					return withDB(func(db *bun.DB) error {
						ms, err := migrations.Status(c.Context, db)
						if err != nil {
							return err
						}
						fmt.Printf("Migrations: %s\n", ms)
						fmt.Printf("Unapplied migrations: %s\n", ms.Unapplied())
						fmt.Printf("Last migration group: %s\n", ms.LastGroup())
						return nil
					})
				},
			},
		},
	}
}
