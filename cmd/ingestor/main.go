package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"asta_radar/internal/adapters/fallcoaste"
	"asta_radar/internal/adapters/fetcher"
	"asta_radar/internal/adapters/observability"
	"asta_radar/internal/adapters/pvp"
	redisad "asta_radar/internal/adapters/redis"
	"asta_radar/internal/app"
	"asta_radar/internal/ranking"
	"asta_radar/internal/reconcile"
	"asta_radar/internal/shared"
	mysqlrepo "asta_radar/internal/storage/mysql"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv)
	observability.Serve()

	weights, err := cfg.Weights()
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.RankingWeightsFile).Msg("invalid ranking weights")
	}
	engine, err := ranking.New(weights)
	if err != nil {
		log.Fatal().Err(err).Msg("ranking engine")
	}

	match, err := cfg.MatchConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid match configuration")
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")
	repo := mysqlrepo.New(db)

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := cache.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, cooldowns and detail cache degraded")
	}
	cancelPing()

	f := fetcher.New(cfg.Fetch,
		fetcher.NewHTTPClient(cfg.ConnectTimeout, cfg.RequestTimeout),
		log.Logger.With().Str("component", "fetcher").Logger())

	primary := pvp.NewIngestor(f, pvp.Config{
		BaseURL:                cfg.PVPBaseURL,
		SearchPath:             cfg.PVPSearchPath,
		PageSize:               cfg.PVPPageSize,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
	}, log.Logger)
	secondary := fallcoaste.NewIngestor(f, fallcoaste.Config{
		BaseURL:                cfg.FallcoasteBaseURL,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
	}, log.Logger).WithCache(cache)

	svc := app.NewIngestionService(
		primary, secondary,
		app.NewProcessingService(engine, cfg.ScoreWorkers),
		reconcile.New(match),
		repo, repo, repo, cache,
		app.CycleConfig{
			PrimaryMaxPages:   cfg.PVPMaxPages,
			SecondaryMaxPages: cfg.FallcoasteMaxPages,
			SourceCooldown:    cfg.SourceCooldown,
			BanCooldown:       cfg.BanCooldown,
		},
		log.Logger.With().Str("component", "ingestion").Logger(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("pvp", cfg.PVPBaseURL).
		Str("fallcoaste", cfg.FallcoasteBaseURL).
		Dur("interval", cfg.CycleInterval).
		Bool("once", *once).
		Msg("ingestor starting")

	if *once {
		rep := svc.RunCycle(ctx)
		log.Info().
			Str("primary", string(rep.Primary.Reason)).
			Str("secondary", string(rep.Secondary.Reason)).
			Msg("ingestion completed")
		return
	}

	sched := app.NewScheduler(svc, cfg.CycleInterval, cfg.ErrorRetry, log.Logger.With().Str("component", "scheduler").Logger())
	sched.Start(ctx)
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	sched.Stop()
}
