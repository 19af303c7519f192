// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"lucky-wheel/internal/config"
	"lucky-wheel/internal/handler"
	"lucky-wheel/internal/model"
	"lucky-wheel/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	accountHandler *handler.AccountHandler
	wheelHandler   *handler.WheelHandler
	adminHandler   *handler.AdminHandler
	settings       *service.SettingsService
	accounts       *service.AccountService
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config   *config.Config
	Accounts *service.AccountService
	Spins    *service.SpinService
	History  *service.HistoryService
	Tickets  *service.TicketService
	Settings *service.SettingsService
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		accountHandler: handler.NewAccountHandler(deps.Accounts, deps.Spins, deps.Tickets),
		wheelHandler:   handler.NewWheelHandler(deps.Spins, deps.History),
		adminHandler:   handler.NewAdminHandler(deps.Accounts, deps.History, deps.Tickets, deps.Settings),
		settings:       deps.Settings,
		accounts:       deps.Accounts,
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers the middleware shared by every command.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(UserMiddleware(b.accounts))
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	// Player commands, closed during maintenance
	player := b.bot.Group()
	player.Use(MaintenanceMiddleware(b.settings))
	player.Handle("/start", b.accountHandler.HandleStart)
	player.Handle("/me", b.accountHandler.HandleMe)
	player.Handle("/cooldown", b.accountHandler.HandleCooldown)
	player.Handle("/wheels", b.wheelHandler.HandleWheels)
	player.Handle("/spin", b.wheelHandler.HandleSpin)
	player.Handle("/history", b.wheelHandler.HandleHistory)
	player.Handle(tele.OnCallback, b.wheelHandler.HandleCallback)

	// Operator commands, one group per permission
	b.operator(model.PermHistory, map[string]tele.HandlerFunc{
		"/spins":     b.adminHandler.HandleSpins,
		"/spin_info": b.adminHandler.HandleSpinInfo,
	})
	b.operator(model.PermHistoryMark, map[string]tele.HandlerFunc{
		"/mark": b.adminHandler.HandleMark,
	})
	b.operator(model.PermHistoryCancel, map[string]tele.HandlerFunc{
		"/cancel": b.adminHandler.HandleCancel,
	})
	b.operator(model.PermTickets, map[string]tele.HandlerFunc{
		"/grant_ticket": b.adminHandler.HandleGrantTicket,
		"/tickets":      b.adminHandler.HandleTickets,
	})
	b.operator(model.PermWheels, map[string]tele.HandlerFunc{
		"/reload": b.adminHandler.HandleReload,
	})
	b.operator(model.PermUsers, map[string]tele.HandlerFunc{
		"/link":     b.adminHandler.HandleLink,
		"/testmode": b.adminHandler.HandleTestMode,
		"/role":     b.adminHandler.HandleRole,
		"/staff":    b.adminHandler.HandleStaff,
	})
	b.operator(model.PermSettings, map[string]tele.HandlerFunc{
		"/maintenance":  b.adminHandler.HandleMaintenance,
		"/set_cooldown": b.adminHandler.HandleSetCooldown,
	})
}

func (b *Bot) operator(perm string, handlers map[string]tele.HandlerFunc) {
	group := b.bot.Group()
	group.Use(PermissionMiddleware(perm))
	for cmd, h := range handlers {
		group.Handle(cmd, h)
	}
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
