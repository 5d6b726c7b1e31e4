package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"tonearm/internal/cache"
	"tonearm/internal/models"
)

// CacheFlush removes every cached entry derived from a query so the next
// submission reconciles fresh.
func (r *Runner) CacheFlush(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	store, err := r.buildStore(ctx, config)
	if err != nil {
		return err
	}
	defer store.Close()

	query := models.Query{
		Artist:  cmd.String("artist"),
		Release: cmd.String("release"),
		Country: cmd.String("country"),
	}
	fingerprint := cache.Fingerprint(query)

	if err := cache.InvalidateQuery(ctx, store, fingerprint); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	r.logger.Info("cache invalidated", "fingerprint", fingerprint)
	r.writePlain("✓ Cache cleared for %s / %s\n", query.Artist, query.Release)

	return nil
}

// cacheCommand handles cache maintenance operations
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the result cache",
		Commands: []*cli.Command{
			{
				Name:  "flush",
				Usage: "Remove cached results for a release query",
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
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.CacheFlush,
			},
		},
	}
}
