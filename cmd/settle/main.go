package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lendsettle/config"
	"lendsettle/core/types"
	nativecommon "lendsettle/native/common"
	"lendsettle/native/lending"
	"lendsettle/native/vault"
	"lendsettle/observability/logging"
	telemetry "lendsettle/observability/otel"
	"lendsettle/services/settlement"
	"lendsettle/services/settlement/journal"
	"lendsettle/storage"
)

func main() {
	var cfgPath, scenarioPath, logLevel string
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to the settlement config")
	flag.StringVar(&scenarioPath, "scenario", "", "YAML scenario to replay")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	if err := run(cfgPath, scenarioPath, logLevel); err != nil {
		log.Fatalf("settle: %v", err)
	}
}

func run(cfgPath, scenarioPath, logLevel string) error {
	if strings.TrimSpace(scenarioPath) == "" {
		return fmt.Errorf("-scenario is required")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.SetupWithOptions(logging.Options{
		Service: "lendsettle",
		Env:     cfg.Environment,
		Level:   logging.ParseLevel(logLevel),
		Output:  os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "lendsettle",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.LedgerPath())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	dsn := cfg.JournalDSN
	if cfg.JournalDriver == config.JournalDriverSQLite && dsn == "" {
		dsn = cfg.JournalPath()
	}
	jrnl, err := journal.Open(cfg.JournalDriver, dsn)
	if err != nil {
		return err
	}
	defer jrnl.Close()
	jrnl.SetLogger(logger)

	v, err := newVault(cfg.Assets)
	if err != nil {
		return err
	}
	engine, err := lending.NewEngine(v, v.MakeEmptySeat(), db, cfg.Lending)
	if err != nil {
		return fmt.Errorf("lending engine: %w", err)
	}
	engine.SetLogger(logger)
	engine.SetEmitter(jrnl)
	engine.SetPauses(nativecommon.NewStaticPauses(cfg.Pauses.Modules()...))

	svc, err := settlement.New(v, engine, jrnl)
	if err != nil {
		return err
	}
	svc.SetLogger(logger)

	sc, err := LoadScenario(scenarioPath)
	if err != nil {
		return err
	}
	return Run(ctx, svc, sc, os.Stdout)
}

func newVault(assets config.Assets) (*vault.Vault, error) {
	v := vault.New()
	for _, kw := range assets.Escrowable {
		if err := v.RegisterEscrowable(types.Keyword(kw)); err != nil {
			return nil, err
		}
	}
	for _, kw := range assets.Mintable {
		if err := v.RegisterMintable(types.Keyword(kw)); err != nil {
			return nil, err
		}
	}
	return v, nil
}
