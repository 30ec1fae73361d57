package main

import (
	"context"
	"log"

	"outcall-server/internal/bootstrap"
	"outcall-server/internal/config"
	"outcall-server/internal/observability"
	"outcall-server/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger()
	ctx := context.Background()

	deps, err := bootstrap.Initialize(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize dependencies: %v", err)
	}

	srv := server.New(*cfg, deps, logger)
	srv.Setup()
	srv.Start()
	srv.WaitForShutdown()
}
