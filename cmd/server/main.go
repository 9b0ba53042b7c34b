package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lasthand-os/lasthand-server/internal/config"
	"github.com/lasthand-os/lasthand-server/internal/game"
	"github.com/lasthand-os/lasthand-server/internal/identity"
	"github.com/lasthand-os/lasthand-server/internal/match"
	"github.com/lasthand-os/lasthand-server/internal/repository"
	"github.com/lasthand-os/lasthand-server/internal/server"
	"github.com/lasthand-os/lasthand-server/internal/settlement"
	"github.com/lasthand-os/lasthand-server/internal/wallet"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting Last Hand server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Persistence is optional: without a DSN the engine runs with no
	// result sink and no profile store.
	var (
		resultSink   settlement.ResultSink
		profileStore identity.ProfileStore
	)
	if cfg.Database.DSN != "" {
		db, dbErr := repository.NewDB(ctx, cfg.Database, logger)
		if dbErr != nil {
			logger.Fatal("failed to connect to database", zap.Error(dbErr))
		}
		defer db.Close()

		stats := db.Stats()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)
		resultSink = repository.NewResultRepository(db)
		profileStore = repository.NewProfileRepository(db)
	} else {
		logger.Warn("no database configured; match results will not be persisted")
	}

	// On-disk archives work with or without the database sink.
	if cfg.Replay.Dir != "" {
		archive := archiveSink{store: game.NewArchiveStore(cfg.Replay.Dir, logger)}
		if resultSink != nil {
			resultSink = multiSink{resultSink, archive}
		} else {
			resultSink = archive
		}
		logger.Info("match archiving enabled", zap.String("dir", cfg.Replay.Dir))
	}

	walletMgr := wallet.NewManager(cfg.Wallet.SessionTTL, logger)
	logger.Info("wallet manager initialized",
		zap.Duration("session_ttl", cfg.Wallet.SessionTTL),
	)

	// TODO: replace with the production identity provider client once
	// its endpoint config lands.
	provider := identity.NewStaticProvider()

	ledger := settlement.NewMemoryLedger()
	settlementCoord := settlement.NewCoordinator(ledger, walletMgr, resultSink, profileStore, logger)
	logger.Info("settlement coordinator initialized")

	hub := server.NewHub(logger)

	defaults := match.Rules{
		MinPlayers:     cfg.Game.MinPlayers,
		MaxPlayers:     cfg.Game.MaxPlayers,
		TotalRounds:    cfg.Game.TotalRounds,
		RoundTimeLimit: cfg.Game.RoundTimeLimit,
		MaxHealth:      cfg.Game.MaxHealth,
		HandSize:       cfg.Game.HandSize,
	}
	registry := match.NewRegistry(defaults, walletMgr, hub, func(c match.Completed) {
		if _, settleErr := settlementCoord.Settle(ctx, c); settleErr != nil {
			logger.Error("settlement failed, retryable",
				zap.String("match_id", c.MatchID),
				zap.Error(settleErr),
			)
		}
	}, logger)
	logger.Info("match registry initialized",
		zap.Int("min_players", defaults.MinPlayers),
		zap.Int("total_rounds", defaults.TotalRounds),
		zap.Duration("round_time_limit", defaults.RoundTimeLimit),
	)

	// Wallet expiry requests forfeits through each match's own action
	// queue; it never touches match state directly.
	go walletMgr.SweepExpired(ctx, cfg.Wallet.SweepInterval, func(walletID, ownerID string) {
		registry.ForfeitOwner(ownerID)
	})

	srv := server.New(cfg.Server.WebSocket, hub, registry, settlementCoord, provider, logger)
	go func() {
		if serveErr := srv.Start(); serveErr != nil {
			logger.Error("websocket server error", zap.Error(serveErr))
		}
	}()

	logger.Info("Last Hand server initialized",
		zap.String("version", version),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("websocket shutdown error", zap.Error(err))
	}

	logger.Info("Last Hand server stopped")
}

// archiveSink writes settled results to the on-disk replay archive.
type archiveSink struct {
	store *game.ArchiveStore
}

func (s archiveSink) SaveResult(_ context.Context, r settlement.MatchResult) error {
	return s.store.Save(game.Archive{
		MatchID:        r.MatchID,
		WinnerID:       r.WinnerID,
		WinnerPayout:   r.WinnerPayout,
		FinalStateHash: r.FinalStateHash,
		SavedAt:        time.Now(),
		Rounds:         r.Rounds,
	})
}

// multiSink fans one settled result out to every configured sink.
type multiSink []settlement.ResultSink

func (m multiSink) SaveResult(ctx context.Context, r settlement.MatchResult) error {
	var firstErr error
	for _, s := range m {
		if err := s.SaveResult(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
