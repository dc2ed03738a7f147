package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/concentration/assets"
	"github.com/robalobadob/concentration/internal/config"
	"github.com/robalobadob/concentration/internal/game"
	"github.com/robalobadob/concentration/internal/history"
	"github.com/robalobadob/concentration/internal/httpserver"
	"github.com/robalobadob/concentration/internal/store"
	"github.com/robalobadob/concentration/internal/symbols"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := symbols.Init(cfg.SymbolsFile); err != nil {
		log.Fatal().Err(err).Msg("failed to load card symbols")
	}
	faces, err := symbols.Pick(cfg.Pairs)
	if err != nil {
		log.Fatal().Err(err).Int("pairs", cfg.Pairs).Int("available", symbols.Count()).Msg("not enough card symbols")
	}
	alphabet := make([]game.Token, len(faces))
	for i, f := range faces {
		alphabet[i] = game.Token(f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	defer db.Close()
	if err := history.Migrate(ctx, db, assets.Migrations()); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	srv := httpserver.New(cfg, store.NewMemoryStore(), history.NewStore(db), alphabet)
	log.Info().
		Int("port", cfg.Port).
		Int("pairs", cfg.Pairs).
		Str("db", cfg.DBPath).
		Msg("starting concentration server")
	if err := srv.Start(ctx, ":"+strconv.Itoa(cfg.Port)); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("shutdown complete")
}
