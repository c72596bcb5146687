package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bulkmail/internal/app"
	"bulkmail/internal/config"
)

const (
	defaultConfigFilePath = "config/app.yaml"
	envFilePath           = ".env"
)

var runFn = run

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	runFn(ctx)
}

func configFilePath() string {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return path
	}
	return defaultConfigFilePath
}

func run(ctx context.Context) {
	cfg := app.Config{}
	err := config.NewLoader(configFilePath(), envFilePath).Load(&cfg)
	if err != nil {
		log.Fatal(err)
	}

	runner, err := app.New(ctx, &cfg)
	if err != nil {
		log.Fatal(err)
	}

	if err := runner.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
