// Command bot runs the conversational storefront: the per-chat dispatcher
// and conversation controller against the remote commerce backend, plus the
// ops HTTP server (health, readiness, metrics).
//
// The chat-network adapter is wired outside this repository; the built-in
// console transport below drives the conversation from stdin for local runs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/seliverstovmd/go-storefront-bot/internal/bot"
	"github.com/seliverstovmd/go-storefront-bot/internal/commerce"
	"github.com/seliverstovmd/go-storefront-bot/internal/config"
	"github.com/seliverstovmd/go-storefront-bot/internal/observability"
	"github.com/seliverstovmd/go-storefront-bot/internal/ops"
	"github.com/seliverstovmd/go-storefront-bot/internal/session"
	"github.com/seliverstovmd/go-storefront-bot/internal/transport"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(ctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := session.Open(cfg.DBPath, cfg.OTEL.Enabled)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("session db open failed")
	}
	if err := session.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("session db migration failed")
	}

	client := commerce.New(cfg.Store, cfg.ImageCacheDir)
	controller := bot.NewController(client, session.NewDBStore(db), bot.Config{
		StaticDir:              cfg.StaticDir,
		CurrencySymbol:         cfg.CurrencySymbol,
		PlaceholderEmailDomain: cfg.PlaceholderEmailDomain,
	})

	local := transport.NewLocal("local", "Local user", os.Stdin, os.Stdout)
	dispatcher := bot.NewDispatcher(controller, local)
	opsSrv := ops.NewServer(cfg, db)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msg("dispatcher started")
		err := dispatcher.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		log.Info().Str("addr", opsSrv.Addr).Msg("ops server started")
		if err := opsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return opsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("exited with error")
	}
	log.Info().Msg("shutdown complete")
}

// setupLogging applies the global zerolog level and output format.
func setupLogging(cfg config.Config) {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
