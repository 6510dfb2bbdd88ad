package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vitos/crypto_spot_bot/internal/domain"
	"github.com/vitos/crypto_spot_bot/internal/infrastructure/exchange"
	"github.com/vitos/crypto_spot_bot/internal/infrastructure/feed"
	"github.com/vitos/crypto_spot_bot/internal/infrastructure/logger"
	"github.com/vitos/crypto_spot_bot/internal/infrastructure/signals"
	"github.com/vitos/crypto_spot_bot/internal/infrastructure/storage"
	"github.com/vitos/crypto_spot_bot/internal/usecase"
)

type Config struct {
	Feed struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"feed"`
	Paper struct {
		StartBalance float64 `yaml:"start_balance"`
		FeeRate      float64 `yaml:"fee_rate"`
		FeeBalance   float64 `yaml:"fee_balance"`
	} `yaml:"paper"`
	Cycle struct {
		IntervalSeconds int  `yaml:"interval_seconds"`
		HistorySize     int  `yaml:"history_size"`
		LiquidateOnExit bool `yaml:"liquidate_on_exit"`
	} `yaml:"cycle"`
	Risk        domain.RiskConfig `yaml:"risk"`
	SignalsFile string            `yaml:"signals_file"`
	DBPath      string            `yaml:"db_path"`
	Logging     struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Metrics struct {
		Port int `yaml:"port"`
	} `yaml:"metrics"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// Optional .env overlay for local runs.
	_ = godotenv.Load()

	configPath := os.Getenv("BOT_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "bot.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}

	// Seed the persisted risk config on first run; afterwards the store is
	// the source of truth and the yaml block only documents defaults.
	configRepo := store.Config()
	if _, err := configRepo.Get(context.Background()); err != nil {
		log.Info("Seeding risk config from file")
		if err := configRepo.Set(context.Background(), &cfg.Risk); err != nil {
			log.Fatal("Failed to seed risk config", zap.Error(err))
		}
	}

	priceFeed := feed.NewBybitFeed(cfg.Feed.RESTEndpoint, cfg.Feed.WSEndpoint, log)

	gateway := exchange.NewPaperGateway(
		priceFeed,
		cfg.Risk.SettlementAsset,
		cfg.Paper.StartBalance,
		cfg.Paper.FeeRate,
		cfg.Risk.FeeAsset,
		log,
	)
	if cfg.Risk.FeeAsset != "" && cfg.Paper.FeeBalance > 0 {
		gateway.SetAssetBalance(cfg.Risk.FeeAsset, cfg.Paper.FeeBalance)
	}

	signalSource := signals.NewFileSignalSource(cfg.SignalsFile)

	coordinator := usecase.NewCoordinator(
		store,
		configRepo,
		signalSource,
		priceFeed,
		gateway,
		store,
		cfg.Cycle.HistorySize,
		usecase.NewRandomOrdering(),
		log,
	)

	if cfg.Metrics.Port > 0 {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	interval := time.Duration(cfg.Cycle.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("Bot started",
		zap.Duration("cycle_interval", interval),
		zap.String("settlement", cfg.Risk.SettlementAsset))

	refreshFeed(context.Background(), store, signalSource, priceFeed, cfg.Risk.SettlementAsset, log)

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			refreshFeed(ctx, store, signalSource, priceFeed, cfg.Risk.SettlementAsset, log)
			if err := coordinator.RunCycle(ctx); err != nil {
				log.Error("Cycle failed", zap.Error(err))
			}
			cancel()
		case <-stop:
			log.Info("Shutting down...")
			if cfg.Cycle.LiquidateOnExit {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if err := coordinator.Liquidate(ctx, true); err != nil {
					log.Error("Liquidation on exit failed", zap.Error(err))
				}
				cancel()
			}
			return
		}
	}
}

// refreshFeed subscribes the feed to every pair the next cycle will need:
// all ledger assets plus the current candidate signals.
func refreshFeed(ctx context.Context, ledger domain.Ledger, source domain.SignalSource, priceFeed *feed.BybitFeed, settlement string, log *zap.Logger) {
	seen := make(map[string]bool)
	var pairs []string

	recs, err := ledger.All(ctx)
	if err != nil {
		log.Error("Failed to list ledger assets", zap.Error(err))
	} else {
		for _, rec := range recs {
			pair := domain.Pair(rec.Asset, settlement)
			if !seen[pair] {
				seen[pair] = true
				pairs = append(pairs, pair)
			}
		}
	}

	sigs, err := source.Signals(ctx)
	if err != nil {
		log.Warn("Failed to read signals for feed subscription", zap.Error(err))
	} else {
		for _, sig := range sigs {
			pair := domain.Pair(sig.Asset, settlement)
			if !seen[pair] {
				seen[pair] = true
				pairs = append(pairs, pair)
			}
		}
	}

	if len(pairs) == 0 {
		return
	}
	if err := priceFeed.LoadSnapshot(ctx, pairs); err != nil {
		log.Warn("Feed snapshot failed", zap.Error(err))
	}
	if err := priceFeed.Subscribe(pairs); err != nil {
		log.Warn("Feed subscribe failed", zap.Error(err))
	}
}
