package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"crosslock/adapters/memledger"
	"crosslock/core/events"
	"crosslock/native/common"
	"crosslock/native/swap"
	"crosslock/observability/logging"
	telemetry "crosslock/observability/otel"
	"crosslock/services/resolverd/config"
	"crosslock/services/resolverd/server"
	"crosslock/services/resolverd/storage"
	kvstore "crosslock/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/resolverd/config.yaml", "path to resolverd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("resolverd: load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("CROSSLOCK_ENV"))
	logger := logging.Setup("resolverd", env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "resolverd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("resolverd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	chains, err := config.LoadChains(cfg.ChainsPath)
	if err != nil {
		log.Fatalf("resolverd: load chains: %v", err)
	}
	ledgers := make(swap.LedgerSet, len(chains))
	for _, chain := range chains {
		ledgers[chain.Name] = memledger.New(chain.Name, chain.RequireAssociation)
	}

	db, err := kvstore.NewLevelDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("resolverd: open state database: %v", err)
	}
	defer db.Close()

	dsn, err := storage.FileDSN(cfg.EventDatabase)
	if err != nil {
		log.Fatalf("resolverd: resolve event store DSN: %v", err)
	}
	journal, err := storage.Open(dsn)
	if err != nil {
		log.Fatalf("resolverd: open event store: %v", err)
	}
	defer journal.Close()

	state := swap.NewStore(db)
	engine := swap.NewEngine(state, ledgers)
	coord := swap.NewCoordinator(state, engine)
	recorder := events.NewRecorder(0)
	coord.SetEmitter(recorder)
	pauses := common.NewPauseSwitch()
	coord.SetPauses(pauses)

	authenticator, err := server.NewAuthenticator(cfg.Admin.JWTSecret, cfg.Admin.Issuer)
	if err != nil {
		log.Fatalf("resolverd: configure admin auth: %v", err)
	}

	srv, err := server.New(server.Config{
		ListenAddress:     cfg.ListenAddress,
		CompletePerSecond: cfg.Complete.PerSecond,
		CompleteBurst:     cfg.Complete.Burst,
	}, coord, journal, pauses, authenticator, logger)
	if err != nil {
		log.Fatalf("resolverd: server: %v", err)
	}

	watcher := NewWatcher(coord, recorder, journal, logger)
	watcher.fundingInterval = cfg.Watcher.FundingInterval.Duration
	watcher.expiryInterval = cfg.Watcher.ExpiryInterval.Duration
	watcher.drainInterval = cfg.Watcher.DrainInterval.Duration

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go watcher.Run(rootCtx)

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
}
