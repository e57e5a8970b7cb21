// Command escrowd runs the escrow layer daemon.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/escrow_layer/internal/app/runtime"
)

func main() {
	cfgPath := flag.String("config", "config/escrow.yaml", "path to the configuration file")
	flag.Parse()

	// Allow .env for local runs.
	_ = godotenv.Load()

	application, err := runtime.NewApplication(*cfgPath)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}
	if err := application.Shutdown(context.Background()); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
