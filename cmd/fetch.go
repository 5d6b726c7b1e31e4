package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"tonearm/internal/models"
	"tonearm/internal/reconcile"
)

// Fetch runs a single reconciliation and writes the canonical record as JSON.
func (r *Runner) Fetch(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	store, err := r.buildStore(ctx, config)
	if err != nil {
		return err
	}
	defer store.Close()

	primary, community, fallback, err := r.buildClients(config)
	if err != nil {
		return err
	}
	defer func() {
		for _, client := range []interface{ Close() error }{primary, community, fallback} {
			if client != nil {
				client.Close()
			}
		}
	}()

	orchestrator := reconcile.NewOrchestrator(primary, community, fallback, reconcile.Options{
		Timeout:       time.Duration(config.Reconcile.TimeoutSeconds) * time.Second,
		SourceTimeout: time.Duration(config.Reconcile.SourceTimeoutSeconds) * time.Second,
		Store:         store,
		SearchTTL:     time.Duration(config.Cache.SearchTTLSeconds) * time.Second,
		ReleaseTTL:    time.Duration(config.Cache.ReleaseTTLSeconds) * time.Second,
		Logger:        r.logger,
	})

	query := models.Query{
		Artist:  cmd.String("artist"),
		Release: cmd.String("release"),
		Country: cmd.String("country"),
	}

	r.logger.Info("reconciling release", "artist", query.Artist, "release", query.Release)

	record, err := orchestrator.Reconcile(ctx, query)
	if err != nil {
		return err
	}

	return r.writeJSON(record, cmd.Bool("pretty"))
}

func fetchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Fetch reconciled metadata for a single release",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "artist",
				Aliases:  []string{"a"},
				Usage:    "Artist name",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "release",
				Aliases:  []string{"r"},
				Usage:    "Release name",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "country",
				Usage: "Optional ISO country code",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Fetch,
	}
}
