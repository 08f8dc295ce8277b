package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/hackgods/therapy-booking/internal/config"
	"github.com/hackgods/therapy-booking/internal/db"
	"github.com/hackgods/therapy-booking/internal/logging"
)

// Usage:
//
//	migrate            apply pending migrations
//	migrate -force 1   mark the schema clean at version 1 after a failed run
func main() {
	force := flag.Int("force", -1, "force the schema version without running migrations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New("migrate", cfg.LogLevel)

	if *force >= 0 {
		if err := db.ForceVersion(cfg.PostgresDSN, *force); err != nil {
			logger.Error("force failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("schema version forced", slog.Int("version", *force))
		return
	}

	if err := db.Migrate(cfg.PostgresDSN); err != nil {
		logger.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrations applied")
}
