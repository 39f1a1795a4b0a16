package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tank-gateway/confs"
	"tank-gateway/credentials"
	"tank-gateway/db"
	"tank-gateway/logger"
	"tank-gateway/repositories"
	"tank-gateway/server"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

func main() {
	// load config
	cfg, err := confs.LoadConfig()
	if err != nil {
		zlog.Fatal().Err(err).Msg("error loading config")
	}
	lg := logger.New(cfg.LogLevel, cfg.LogPretty)

	store, closeStore, err := openStore(cfg, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to open store")
	}
	defer closeStore()

	static, err := credentials.LoadStatic(cfg.CredentialsFile, cfg.CredentialsEnv)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to load static credentials")
	}
	if static.Len() > 0 {
		lg.Info().Int("devices", static.Len()).Msg("static credential table loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// run server
	srv := server.NewServer(cfg, store, static, lg)
	if err := srv.Run(ctx); err != nil {
		lg.Error().Err(err).Msg("server stopped with error")
	}
}

func openStore(cfg *confs.Config, lg zerolog.Logger) (repositories.Store, func(), error) {
	if cfg.DBDriver == "memory" {
		lg.Warn().Msg("using in-memory store; nothing survives a restart")
		return repositories.NewMemoryStore(), func() {}, nil
	}

	database, err := db.Connect(cfg, lg)
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewGormStore(database), func() {
		if err := database.Close(); err != nil {
			lg.Warn().Err(err).Msg("closing database")
		}
	}, nil
}
