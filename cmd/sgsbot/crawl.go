package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/DominikKuenkele/sgs-housing-bot/db"
	"github.com/DominikKuenkele/sgs-housing-bot/notify"
	"github.com/DominikKuenkele/sgs-housing-bot/pipeline"
	"github.com/DominikKuenkele/sgs-housing-bot/secrets"
	"github.com/DominikKuenkele/sgs-housing-bot/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCrawlCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Fetch listings, resolve travel times and mail new matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCrawl(ctx, opts, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compose and log digests without marking or sending them")
	return cmd
}

func runCrawl(ctx context.Context, opts *rootOptions, dryRun bool) error {
	log := opts.logger.With("run_id", uuid.NewString())
	sec := redactingResolver{next: &secrets.EnvResolver{}, r: opts.redactor}

	// Everything that can fail on configuration is built before the
	// database is touched.
	source, err := sourceFromViper(log)
	if err != nil {
		return err
	}
	resolver, err := resolverFromViper(ctx, log, sec)
	if err != nil {
		return err
	}
	var transport notify.Transport
	var smtpUser string
	if !dryRun {
		smtpCfg, err := smtpConfigFromViper(ctx, sec)
		if err != nil {
			return err
		}
		tr, err := notify.NewSMTPTransport(smtpCfg)
		if err != nil {
			return err
		}
		transport, smtpUser = tr, smtpCfg.Username
	}

	if err := ensureDataRoot(); err != nil {
		return err
	}
	gdb, err := db.Open(ctx, dbConfigFromViper())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(gdb) }()

	st := store.NewGormStore(gdb)
	p := &pipeline.Pipeline{
		Source:   source,
		Store:    st,
		Resolver: resolver,
		Notifier: notify.NewDispatcher(st, transport, dispatcherOptionsFromViper(log, smtpUser, dryRun)),
		Workers:  viper.GetInt("travel.workers"),
		Logger:   log,
	}

	log.Info("crawl_started", "dry_run", dryRun, "provider", viper.GetString("travel.provider"), "source", viper.GetString("listing.source"))
	res, err := p.Run(ctx)
	log.Info("crawl_finished",
		"listings", res.Listings,
		"candidates", res.Candidates,
		"links", res.Links,
		"distances_requested", res.DistancesRequested,
		"distances_stored", res.DistancesStored,
		"distances_skipped", res.DistancesSkipped,
		"distances_failed", res.DistancesFailed,
		"links_held", res.LinksHeld,
		"sent", res.Notifications.Count(notify.Sent),
		"failed", res.Notifications.Count(notify.Failed),
		"ok", err == nil,
	)
	return err
}
