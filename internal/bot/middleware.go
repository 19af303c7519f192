// Package bot provides middleware for the Telegram bot.
package bot

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"lucky-wheel/internal/config"
	"lucky-wheel/internal/handler"
	"lucky-wheel/internal/model"
)

// privateUsers tracks users seen in a whitelisted group so they may also
// talk to the bot in private.
type privateUsers struct {
	mu   sync.RWMutex
	seen map[int64]bool
}

func newPrivateUsers() *privateUsers {
	return &privateUsers{seen: make(map[int64]bool)}
}

func (p *privateUsers) allow(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[userID] = true
}

func (p *privateUsers) allowed(userID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.seen[userID]
}

// WhitelistMiddleware drops updates from chats outside the whitelist.
// Private chats pass once the sender has been seen in a whitelisted group,
// and always for bootstrap admins.
func WhitelistMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	private := newPrivateUsers()
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			sender := c.Sender()
			if chat == nil || sender == nil {
				return nil
			}

			if chat.Type == tele.ChatPrivate {
				if len(cfg.Whitelist.Chats) == 0 || cfg.IsAdmin(sender.ID) || private.allowed(sender.ID) {
					return next(c)
				}
				log.Debug().
					Int64("user_id", sender.ID).
					Msg("Ignoring private chat from user not seen in a whitelisted group")
				return nil
			}

			if !cfg.IsChatAllowed(chat.ID) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Msg("Ignoring command from non-whitelisted chat")
				return nil
			}

			private.allow(sender.ID)
			return next(c)
		}
	}
}

// UserEnsurer resolves the chat sender to a stored user.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, telegramID int64, username string) (*model.User, bool, error)
}

// UserMiddleware loads or registers the sender and stores it under handler.UserKey.
func UserMiddleware(accounts UserEnsurer) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			username := sender.Username
			if username == "" {
				username = sender.FirstName
			}
			user, created, err := accounts.EnsureUser(context.Background(), sender.ID, username)
			if err != nil {
				log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to load user")
				return c.Reply("❌ Something went wrong, please try again later")
			}
			if created {
				log.Info().Int64("user_id", sender.ID).Str("username", username).Msg("New user registered")
			}

			c.Set(handler.UserKey, user)
			return next(c)
		}
	}
}

// PermissionMiddleware rejects senders whose role lacks perm.
// It must run after UserMiddleware.
func PermissionMiddleware(perm string) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := handler.CurrentUser(c)
			if !user.HasPerm(perm) {
				var id int64
				if user != nil {
					id = user.TelegramID
				}
				log.Warn().
					Int64("user_id", id).
					Str("permission", perm).
					Str("command", c.Text()).
					Msg("Permission denied")
				return c.Reply("❌ Permission denied")
			}
			return next(c)
		}
	}
}

// SettingsReader exposes the live site settings.
type SettingsReader interface {
	Get(ctx context.Context) (*model.SiteSettings, error)
}

// MaintenanceMiddleware answers regular users with the maintenance message
// while maintenance mode is on. Staff pass through.
func MaintenanceMiddleware(settings SettingsReader) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if handler.CurrentUser(c).IsModerator() {
				return next(c)
			}
			s, err := settings.Get(context.Background())
			if err != nil {
				log.Error().Err(err).Msg("Failed to read site settings")
				return next(c)
			}
			if s.MaintenanceMode {
				msg := s.MaintenanceMessage
				if msg == "" {
					msg = "The wheel is under maintenance, come back later"
				}
				return c.Reply("🛠 " + msg)
			}
			return next(c)
		}
	}
}

// LoggingMiddleware logs all incoming messages.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
			}
			if chat != nil {
				logEvent = logEvent.
					Int64("chat_id", chat.ID).
					Str("chat_type", string(chat.Type))
			}
			logEvent.
				Str("text", c.Text()).
				Msg("Received message")

			return next(c)
		}
	}
}

// RecoveryMiddleware recovers from handler panics.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("text", c.Text()).
						Msg("Recovered from panic in handler")
					err = c.Reply("❌ Internal error, please try again later")
				}
			}()
			return next(c)
		}
	}
}
