package main

import (
	"context"
	"log"

	"github.com/jeremy-quicklearner/clautod/internal/logging"
	"github.com/jeremy-quicklearner/clautod/internal/server"
	"github.com/jeremy-quicklearner/clautod/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(logging.Options{Level: level, JSON: cfg.LogJSON, DefaultSlog: true})

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		return
	}
	defer app.Close()

	app.Run(ctx)

}
