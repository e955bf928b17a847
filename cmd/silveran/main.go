package main

import (
	"context"
	"os"

	"github.com/kyonifer/silveran-reader-sub004/pkg/version"
	"github.com/robinjoseph08/golib/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()
	ctx := log.WithContext(context.Background())

	app := &cli.App{
		Name:    "silveran",
		Usage:   "keep a local media library in sync with a remote catalog",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("config"); path != "" {
				return os.Setenv("CONFIG_FILE", path)
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			scanCommand(),
			refreshCommand(),
			missingCommand(),
			downloadCommand(),
			uploadCommand(),
			syncCommand(),
			dbCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Err(err).Fatal("command failed")
	}
}
