// Command reminderd runs the reminder scheduling service: an HTTP API for
// the conversation layer, an in-process trigger engine, an embedded SQLite
// store, and an optional remote JSON mirror.
//
// Startup order matters: the store is opened and migrated first, the mirror
// may seed an empty store, the engine is built around the lifecycle
// controller's fire callback, recovery re-arms every active reminder, and
// only then does the HTTP server accept traffic.
package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/remindkit/reminderd/internal/config"
	"github.com/remindkit/reminderd/internal/dialog"
	"github.com/remindkit/reminderd/internal/engine"
	httpapi "github.com/remindkit/reminderd/internal/http"
	"github.com/remindkit/reminderd/internal/http/handlers"
	"github.com/remindkit/reminderd/internal/mirror"
	"github.com/remindkit/reminderd/internal/observability"
	"github.com/remindkit/reminderd/internal/repo"
	"github.com/remindkit/reminderd/internal/services"
	"github.com/remindkit/reminderd/internal/sysutil"
	"github.com/remindkit/reminderd/internal/transport"
)

// version is stamped by the build; "dev" otherwise.
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Timezone).Msg("invalid timezone")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	// Mirror: seed an empty store before anything is armed.
	mir := mirror.New(db, mirror.Config{
		Token:       cfg.Mirror.Token,
		Owner:       cfg.Mirror.Owner,
		Repo:        cfg.Mirror.Repo,
		File:        cfg.Mirror.File,
		MinInterval: cfg.Mirror.MinInterval,
	})
	if err := mir.ImportIfEmpty(ctx); err != nil {
		// The local store stays authoritative; a mirror failure is never fatal.
		log.Error().Err(err).Msg("mirror import failed")
	}

	var deliverer services.Deliverer
	if cfg.BotToken != "" {
		deliverer = transport.NewTelegram(cfg.BotToken)
	} else {
		log.Warn().Msg("no bot token configured, deliveries are log-only")
		deliverer = transport.LogDeliverer{}
	}

	// The engine closure-captures the controller's fire callback, so a
	// firing trigger always reaches the delivery capability directly.
	reminderSvc := services.NewReminderService(db, deliverer, mir, loc)
	eng := engine.New(loc, reminderSvc.HandleFire)
	reminderSvc.AttachEngine(eng)
	eng.Start()
	defer eng.Stop()

	if err := reminderSvc.Recover(ctx); err != nil {
		log.Fatal().Err(err).Msg("recovery failed")
	}

	dialogs := dialog.NewManager(reminderSvc, deliverer, cfg.AdminID)
	userSvc := &services.UserService{DB: db}
	h := handlers.New(reminderSvc, dialogs, userSvc)

	r := gin.New()
	httpapi.RegisterRoutes(r, h, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("reminderd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-sysutil.NotifyShutdown()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
}
