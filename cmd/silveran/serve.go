package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/kyonifer/silveran-reader-sub004/pkg/server"
	"github.com/kyonifer/silveran-reader-sub004/pkg/version"
	"github.com/kyonifer/silveran-reader-sub004/pkg/worker"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the local API and the background sync jobs",
		Action: func(c *cli.Context) error {
			ctx := c.Context
			log := logger.FromContext(ctx)
			log.Info("starting silveran", logger.Data{"version": version.Version})

			return withApp(ctx, func(a *app) error {
				result, err := a.service.Refresh(ctx)
				if err != nil {
					return errors.WithStack(err)
				}
				log.Info("library loaded", logger.Data{"books": result.Books, "missing": result.Missing, "source": result.Source})

				wrkr := worker.New(a.cfg, a.service)

				srv, err := server.New(a.cfg, a.service)
				if err != nil {
					return errors.WithStack(err)
				}

				graceful := signals.Setup()

				go func() {
					lc := net.ListenConfig{}
					listener, err := lc.Listen(ctx, "tcp", srv.Addr)
					if err != nil {
						log.Err(err).Fatal("failed to bind port")
					}
					log.Info("server started", logger.Data{"addr": listener.Addr().String()})

					err = srv.Serve(listener)
					if err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Err(err).Fatal("server stopped")
					}
					log.Info("server stopped")
				}()

				wrkr.Start()
				log.Info("worker started", logger.Data{"jobs": wrkr.JobNames()})

				<-graceful
				log.Info("starting graceful shutdown")

				shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Err(err).Error("server shutdown error")
				}
				log.Info("server shutdown")

				wrkr.Shutdown()
				log.Info("worker shutdown")

				for _, info := range a.service.Transfers() {
					a.service.CancelTransfer(info.ID)
				}
				a.service.WaitTransfers()
				log.Info("transfers stopped")

				return nil
			})
		},
	}
}
