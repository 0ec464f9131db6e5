package main

import (
	"PerpIndexer/internal/config"
	"PerpIndexer/internal/core"
	"PerpIndexer/internal/ingestion"
	"PerpIndexer/internal/observability"
	"PerpIndexer/internal/oracle"
	"PerpIndexer/internal/persistence"
	"PerpIndexer/internal/query"
	"PerpIndexer/internal/series"
	"PerpIndexer/internal/server"
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	migrationsDir := flag.String("migrations", "migrations", "path to SQL migrations")
	flag.Parse()

	log := observability.NewLogger("perpindexer")
	log.Info().Msg("starting")

	cfg, err := config.LoadWithEnvOverrides(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxOpenConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, *migrationsDir, log)
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Deterministic core ---
	// The persist channel uses blocking sends: a slow writer stalls the
	// core instead of losing outputs.
	persistChan := make(chan core.Output, 1024)

	coreCfg := core.DefaultConfig()
	coreCfg.PoolNames = cfg.Pools
	if len(cfg.Resolutions.Trade) > 0 {
		coreCfg.TradeResolutions = toResolutions(cfg.Resolutions.Trade)
	}
	if len(cfg.Resolutions.Carry) > 0 {
		coreCfg.CarryResolutions = toResolutions(cfg.Resolutions.Carry)
	}
	if len(cfg.Resolutions.Funding) > 0 {
		coreCfg.FundingResolutions = toResolutions(cfg.Resolutions.Funding)
	}

	quotes := oracle.NewStatic(cfg.QuotePrices())
	indexerCore := core.NewCore(coreCfg, quotes, persistChan, metrics, log)

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	log.Info().Msg("nats connected")

	if err := ingestion.EnsureStream(ctx, js, log); err != nil {
		log.Fatal().Err(err).Msg("ensure nats stream")
	}

	rawEventChan := make(chan ingestion.RawEvent, 4096)
	natsSubscriber := ingestion.NewNATSSubscriber(js, rawEventChan, log)
	if err := natsSubscriber.Subscribe(ctx); err != nil {
		log.Fatal().Err(err).Msg("nats subscribe")
	}

	// --- Services ---
	queryService := query.NewService(db)
	apiServer := server.NewServer(cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, queryService, healthChecker, log)

	// --- Goroutines ---
	errChan := make(chan error, 8)

	persistWorker := persistence.NewWorker(
		db, persistChan,
		cfg.Postgres.BatchSize,
		time.Duration(cfg.Postgres.FlushTimeoutMs)*time.Millisecond,
		metrics, log,
	)
	workerDone := make(chan struct{})
	go func() {
		err := persistWorker.Run(ctx)
		close(workerDone)
		errChan <- err
	}()

	// The ingestion goroutine is the only producer on persistChan (the core
	// runs on it), so it owns the close.
	go func() {
		err := ingestion.Run(ctx, rawEventChan, indexerCore.ProcessEvent, metrics, log)
		close(persistChan)
		errChan <- err
	}()

	go func() {
		errChan <- apiServer.StartGRPC(ctx)
	}()

	go func() {
		errChan <- apiServer.StartHTTP(ctx)
	}()

	go reportChannelMetrics(ctx, metrics, persistChan, rawEventChan)

	healthChecker.SetReady(true)
	log.Info().
		Str("grpc", cfg.Server.GRPCAddr).
		Str("http", cfg.Server.HTTPAddr).
		Msg("ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("goroutine failed, shutting down")
		}
	}

	cancel()
	natsSubscriber.Stop()

	// The ingestion goroutine closes persistChan once it stops producing;
	// wait for the worker to drain and flush its final batch.
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("persistence worker did not drain in time")
	}
	log.Info().Msg("shutdown complete")
}

func reportChannelMetrics(
	ctx context.Context,
	metrics *observability.Metrics,
	persistChan chan core.Output,
	rawChan chan ingestion.RawEvent,
) {
	metrics.ChannelCapacity.WithLabelValues("persist").Set(float64(cap(persistChan)))
	metrics.ChannelCapacity.WithLabelValues("ingest").Set(float64(cap(rawChan)))

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.ChannelSize.WithLabelValues("persist").Set(float64(len(persistChan)))
			metrics.ChannelSize.WithLabelValues("ingest").Set(float64(len(rawChan)))
		}
	}
}

func toResolutions(widths []int64) []series.Resolution {
	out := make([]series.Resolution, 0, len(widths))
	for _, w := range widths {
		out = append(out, series.Resolution(w))
	}
	return out
}
