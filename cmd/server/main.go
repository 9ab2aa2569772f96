package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/prasetia/go-upload-cache/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	_ = server.InitializeLogger(cfg.LogLevel)

	srv := server.New(server.Opts{Config: cfg})
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run the server")
	}
}
