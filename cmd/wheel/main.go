// Package main is the entry point for the lucky wheel bot.
package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/action/builtins"
	"lucky-wheel/internal/action/mods"
	"lucky-wheel/internal/bot"
	"lucky-wheel/internal/config"
	"lucky-wheel/internal/intra"
	"lucky-wheel/internal/pkg/db"
	"lucky-wheel/internal/pkg/lock"
	"lucky-wheel/internal/pkg/metrics"
	"lucky-wheel/internal/repository"
	"lucky-wheel/internal/service"
	"lucky-wheel/internal/wheel"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool.Pool, cfg.Wheels.DefaultCooldown); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	metrics.Init()

	// Repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	spinRepo := repository.NewSpinRepository(dbPool.Pool)
	markRepo := repository.NewMarkRepository(dbPool.Pool)
	ticketRepo := repository.NewTicketRepository(dbPool.Pool)
	ownershipRepo := repository.NewOwnershipRepository(dbPool.Pool)
	settingsRepo := repository.NewSettingsRepository(dbPool.Pool)

	// Campus clients
	campus := intra.New(cfg.Intra)
	var hook action.API
	if cfg.Infra.WebhookURL != "" {
		// Same retry policy as the campus client, without OAuth.
		infraCfg := cfg.Intra
		infraCfg.BaseURL = cfg.Infra.WebhookURL
		infraCfg.TokenURL, infraCfg.ClientID, infraCfg.ClientSecret = "", "", ""
		hook = intra.New(infraCfg, intra.WithName("infra"))
	} else {
		log.Warn().Msg("No infra webhook configured, notification actions will fail")
	}

	// Actions and wheels. The store is built before its catalogue is loaded
	// because the ticket action looks wheels up through it.
	locks := lock.NewKeyedLock()
	registry := action.NewRegistry()
	balancer := wheel.NewBalancer(cfg.Wheels.BalanceAttempts, cfg.Wheels.ColorThreshold, nil)
	wheels := wheel.NewStore(cfg.Wheels.Dir, wheel.NewLoader(balancer, cfg.Wheels.Balance), registry)

	if err := builtins.Register(registry, builtins.Deps{
		Tickets: ticketRepo,
		Wheels:  wheels,
		Owners:  ownershipRepo,
		Locks:   locks,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register builtin actions")
	}
	if err := mods.Register(registry, hook, cfg.Infra.Token); err != nil {
		log.Fatal().Err(err).Msg("Failed to register extension actions")
	}
	log.Info().Int("action_count", registry.Count()).Strs("actions", registry.Refs()).Msg("Actions registered")

	n, err := wheels.Reload()
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Wheels.Dir).Msg("Failed to load wheels")
	}
	log.Info().Int("wheel_count", n).Msg("Wheels loaded")

	dispatcher := action.NewDispatcher(registry, campus)

	// Services
	accountService := service.NewAccountService(userRepo, campus, cfg.Admin.IDs)
	spinService := service.NewSpinService(wheels, userRepo, ticketRepo, spinRepo, settingsRepo,
		dispatcher, locks, rand.New(rand.NewSource(time.Now().UnixNano())))
	historyService := service.NewHistoryService(spinRepo, markRepo, userRepo, dispatcher, locks)
	ticketService := service.NewTicketService(ticketRepo, wheels)
	settingsService := service.NewSettingsService(settingsRepo, wheels)

	telegramBot, err := bot.New(&bot.Dependencies{
		Config:   cfg,
		Accounts: accountService,
		Spins:    spinService,
		History:  historyService,
		Tickets:  ticketService,
		Settings: settingsService,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	var metricsServer *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics endpoint listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	if metricsServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}
	log.Info().Msg("Bot stopped gracefully")
}
