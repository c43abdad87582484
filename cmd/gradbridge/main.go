package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/seantiz/gradbridge/internal/api"
	"github.com/seantiz/gradbridge/internal/config"
	"github.com/seantiz/gradbridge/internal/engine"
	"github.com/seantiz/gradbridge/internal/interp"
	"github.com/seantiz/gradbridge/internal/registry"
	"github.com/seantiz/gradbridge/internal/retention"
	"github.com/seantiz/gradbridge/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	var level slog.LevelVar
	level.Set(cfg.LogLevel)
	logger := config.NewLogger(os.Stdout, &level)

	logger.Info("gradbridge: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"max_workers", cfg.MaxWorkers,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	rt := interp.New(logger)
	reg := registry.InitGlobal(rt, registry.WithLogger(logger))
	if err := reg.RegisterForwardRunner(rt.DefineRunner(interp.ForwardRunner)); err != nil {
		log.Fatalf("failed to register forward runner: %v", err)
	}
	if err := reg.RegisterBackwardRunner(rt.DefineRunner(interp.BackwardRunner)); err != nil {
		log.Fatalf("failed to register backward runner: %v", err)
	}

	eng := engine.NewEngine(reg, rt, db, logger, engine.WithMaxWorkers(cfg.MaxWorkers))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.File != "" && !cfg.LogLevelFromEnv {
		go func() {
			if err := config.WatchLogLevel(ctx, cfg.File, &level, logger); err != nil {
				logger.Warn("gradbridge: config watcher stopped", "error", err)
			}
		}()
	}

	pruner, err := retention.New(db, cfg.JournalRetention, cfg.PruneSchedule, logger)
	if err != nil {
		log.Fatalf("failed to configure journal retention: %v", err)
	}
	if err := pruner.Start(ctx); err != nil {
		log.Fatalf("failed to start journal retention: %v", err)
	}

	if err := loadDemoModel(ctx, eng, rt); err != nil {
		log.Fatalf("failed to load demo model: %v", err)
	}

	srv := api.NewServer(cfg.ListenAddr, db, eng, logger, api.WithShutdownTimeout(cfg.ShutdownTimeout))
	runErr := srv.Run()
	pruner.Stop()

	// The registry must give its references back before the interpreter
	// finalizes.
	if err := eng.Shutdown(ctx); err != nil {
		logger.Error("gradbridge: shutdown", "error", err)
	}
	rt.Finalize()

	if v := rt.Violations(); len(v) > 0 {
		logger.Error("gradbridge: reference violations at exit", "count", len(v))
	}
	if runErr != nil {
		log.Fatalf("server error: %v", runErr)
	}
}
