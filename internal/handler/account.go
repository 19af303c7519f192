// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"lucky-wheel/internal/service"
)

// AccountHandler handles account-related commands.
type AccountHandler struct {
	accounts *service.AccountService
	spins    *service.SpinService
	tickets  *service.TicketService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService, spins *service.SpinService, tickets *service.TicketService) *AccountHandler {
	return &AccountHandler{accounts: accounts, spins: spins, tickets: tickets}
}

// HandleStart handles the /start command.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}

	msg := fmt.Sprintf("🎡 Welcome @%s!\n\n", user.Username)
	if !user.IsLinked() {
		msg += fmt.Sprintf("Your account is not linked to a campus login yet.\nAsk an operator to run /link %d <login>.\n\n", user.TelegramID)
	}
	msg += "Commands:\n" +
		"/wheels - list the wheels\n" +
		"/spin <wheel> - spin a wheel\n" +
		"/cooldown - time until your next spin\n" +
		"/history - your last spins\n" +
		"/me - your account"
	return c.Reply(msg)
}

// HandleMe handles the /me command.
func (h *AccountHandler) HandleMe(c tele.Context) error {
	ctx := context.Background()
	user := CurrentUser(c)
	if user == nil {
		return nil
	}

	login := "not linked"
	if user.IsLinked() {
		login = fmt.Sprintf("%s (%d)", user.Login, user.IntraID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Account\n%s\n", divider)
	fmt.Fprintf(&b, "👤 User: @%s\n", user.Username)
	fmt.Fprintf(&b, "🎓 Login: %s\n", login)
	fmt.Fprintf(&b, "🛡 Role: %s\n", user.Role)
	if user.TestMode {
		b.WriteString("🧪 Test mode: on\n")
	}

	if wait, err := h.spins.TimeToSpin(ctx, user.TelegramID); err == nil {
		fmt.Fprintf(&b, "⏰ Next spin: %s\n", formatDuration(wait))
	}
	if counts, err := h.tickets.Summary(ctx, user.TelegramID); err == nil {
		for _, tc := range counts {
			fmt.Fprintf(&b, "🎟 %s: %d ticket(s)\n", tc.WheelSlug, tc.Count)
		}
	}
	b.WriteString(divider)
	return c.Reply(b.String())
}

// HandleCooldown handles the /cooldown command.
func (h *AccountHandler) HandleCooldown(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}

	wait, err := h.spins.TimeToSpin(context.Background(), user.TelegramID)
	if err != nil {
		return c.Reply("❌ Could not read your cooldown, try again later")
	}
	if wait <= 0 {
		return c.Reply("✅ You can spin now")
	}
	return c.Reply(fmt.Sprintf("⏰ Next spin in %s", formatDuration(wait)))
}
