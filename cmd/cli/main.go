package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jeremy-quicklearner/clautod/internal/client/cli"
	"github.com/jeremy-quicklearner/clautod/internal/client/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)
}
