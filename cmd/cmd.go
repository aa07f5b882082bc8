// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.StringFlag{
			Name:  "env",
			Usage: "Path to dotenv file",
			Value: ".env",
		},
	}
}

// serveCommand runs the gateway
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the authorization gateway",
		Flags: append(configFlags(),
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides server.host and server.port)",
			},
		),
		Action: r.Serve,
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write an example configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "path",
						Aliases: []string{"p"},
						Usage:   "Where to write the configuration file",
						Value:   "config.toml",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the sqlite credential store and run migrations",
				Flags:  configFlags(),
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the latest database migration",
				Flags:  configFlags(),
				Action: r.SetupRollback,
			},
		},
	}
}

// sessionsCommand inspects and maintains stored sessions
func sessionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Inspect and maintain stored sessions",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show the authorization state of a session",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "session"},
				},
				Flags: append(configFlags(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				),
				Action: r.SessionsStatus,
			},
			{
				Name:  "prune",
				Usage: "Delete sqlite sessions not updated within a duration",
				Flags: append(configFlags(),
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Age of the last update after which a session is removed",
						Value: 30 * 24 * time.Hour,
					},
				),
				Action: r.SessionsPrune,
			},
		},
	}
}
