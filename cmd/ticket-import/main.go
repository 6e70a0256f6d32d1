// ticket-import loads issued-ticket manifests into the check-in ticket store
// and optionally writes signed QR payloads for printing.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/importer"
	"github.com/prohmpiriya/booking-rush-checkin/internal/repository"
	"github.com/prohmpiriya/booking-rush-checkin/internal/service"
	"github.com/prohmpiriya/booking-rush-checkin/migrations"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/config"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/database"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/logger"
	pkgredis "github.com/prohmpiriya/booking-rush-checkin/pkg/redis"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		manifests     []string
		chunkSize     int
		payloadsOut   string
		payloadFormat string
		payloadTTL    time.Duration
		dryRun        bool
		migrate       bool
	)

	flagSet := pflag.NewFlagSet("ticket-import", pflag.ContinueOnError)
	flagSet.StringArrayVarP(&manifests, "manifest", "m", nil, "manifest YAML file (repeatable)")
	flagSet.IntVar(&chunkSize, "chunk-size", importer.DefaultChunkSize, "tickets per insert batch")
	flagSet.StringVar(&payloadsOut, "qr-out", "", "write signed QR payloads as CSV to this file (\"-\" for stdout)")
	flagSet.StringVar(&payloadFormat, "qr-format", importer.PayloadComposite, "QR payload format: composite or token")
	flagSet.DurationVar(&payloadTTL, "qr-ttl", 0, "expiry for token payloads, 0 for none")
	flagSet.BoolVar(&dryRun, "dry-run", false, "validate manifests without touching the store")
	flagSet.BoolVar(&migrate, "migrate", false, "apply the embedded schema before importing")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	manifests = append(manifests, flagSet.Args()...)
	if len(manifests) == 0 {
		printHelp(flagSet)
		return fmt.Errorf("at least one manifest is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "ticket-import",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()
	appLog := logger.Get()

	// Parse everything first so a bad file aborts before any write
	loaded := make([]*importer.Manifest, 0, len(manifests))
	for _, path := range manifests {
		m, err := importer.LoadManifest(path)
		if err != nil {
			return err
		}
		loaded = append(loaded, m)
		appLog.Info("manifest loaded",
			zap.String("path", path),
			zap.String("event_id", m.Event.ID),
			zap.Int("tickets", len(m.Tickets)),
		)
	}

	var signer *service.QRSigner
	if payloadsOut != "" {
		signer = service.NewQRSigner(cfg.CheckIn.QRSecret)
		if signer == nil {
			return fmt.Errorf("CHECKIN_QR_SECRET is required for --qr-out")
		}
	}

	if dryRun {
		appLog.Info("dry run, nothing imported", zap.Int("manifests", len(loaded)))
		return writePayloads(payloadsOut, loaded, signer, payloadFormat, payloadTTL)
	}

	ctx := context.Background()

	if err := cfg.ValidateDatabase(); err != nil {
		return err
	}
	db, err := database.NewPostgres(ctx, database.FromConfig(&cfg.Database, false))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if migrate || cfg.CheckIn.AutoMigrate {
		applied, err := migrations.Apply(ctx, db.Pool())
		if err != nil {
			return err
		}
		appLog.Info("migrations applied", zap.Strings("applied", applied))
	}

	var events repository.EventRepository = repository.NewPostgresEventRepository(db.Pool())
	tickets := repository.NewPostgresTicketRepository(db.Pool())

	// Drop cached event totals so gates see the new inventory right away
	if redisClient, err := pkgredis.NewClient(ctx, pkgredis.FromConfig(&cfg.Redis, false)); err != nil {
		appLog.Warn("Redis unavailable, cached event totals expire on their own", zap.Error(err))
	} else {
		defer redisClient.Close()
		events = repository.NewCachedEventRepository(events, redisClient, cfg.CheckIn.TicketCacheTTL)
	}

	for _, m := range loaded {
		res, err := importer.Apply(ctx, m, events, tickets, chunkSize)
		if err != nil {
			return err
		}
		appLog.Info("tickets imported",
			zap.String("event_id", res.EventID),
			zap.Int("listed", res.Listed),
			zap.Int("inserted", res.Inserted),
			zap.Int("skipped", res.Skipped),
		)
	}

	return writePayloads(payloadsOut, loaded, signer, payloadFormat, payloadTTL)
}

func writePayloads(out string, manifests []*importer.Manifest, signer *service.QRSigner, format string, ttl time.Duration) error {
	if out == "" {
		return nil
	}

	w := os.Stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}

	return importer.WriteQRPayloads(w, manifests, signer, format, ttl)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `ticket-import loads issued-ticket manifests into the check-in store.

Re-importing a manifest is safe: codes already in the store, checked in or
not, are left untouched. Database and Redis settings come from the usual
environment variables (DATABASE_*, REDIS_*).

Usage:
  ticket-import [flags] manifest.yaml [manifest.yaml...]

Examples:
  # Import one event
  ticket-import events/e1.yaml

  # Create the schema on a fresh database, then import
  ticket-import --migrate events/e1.yaml

  # Import and write signed QR payloads for the print shop
  CHECKIN_QR_SECRET=... ticket-import -m events/e1.yaml --qr-out e1-qr.csv

Flags:
`)
	flagSet.PrintDefaults()
}
