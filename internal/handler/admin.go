package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"lucky-wheel/internal/model"
	"lucky-wheel/internal/repository"
	"lucky-wheel/internal/service"
)

// AdminHandler handles operator commands. Permission checks happen in middleware.
type AdminHandler struct {
	accounts *service.AccountService
	history  *service.HistoryService
	tickets  *service.TicketService
	settings *service.SettingsService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	accounts *service.AccountService,
	history *service.HistoryService,
	tickets *service.TicketService,
	settings *service.SettingsService,
) *AdminHandler {
	return &AdminHandler{
		accounts: accounts,
		history:  history,
		tickets:  tickets,
		settings: settings,
	}
}

// HandleSpins handles the /spins command.
// Format: /spins [cancelled|active|failed] [wheel] [user_id]
func (h *AdminHandler) HandleSpins(c tele.Context) error {
	filter, err := parseSpinFilter(c.Args())
	if err != nil {
		return c.Reply("❌ " + err.Error() + "\nUsage: /spins [cancelled|active|failed] [wheel] [user_id]")
	}

	recs, err := h.history.List(context.Background(), filter)
	if err != nil {
		return c.Reply("❌ Could not load the history")
	}
	if len(recs) == 0 {
		return c.Reply("📜 No spin matches")
	}

	lines := []string{"📜 Spins", divider}
	for _, r := range recs {
		lines = append(lines, fmt.Sprintf("%s (user %d)", formatRecordLine(r), r.UserID))
	}
	return c.Reply(strings.Join(lines, "\n"))
}

// parseSpinFilter reads optional status, wheel and user arguments in any order.
func parseSpinFilter(args []string) (repository.SpinFilter, error) {
	f := repository.SpinFilter{Limit: 20}
	for _, a := range args {
		switch strings.ToLower(a) {
		case model.SpinStatusCancelled, model.SpinStatusActive, model.SpinStatusFailed:
			f.Status = strings.ToLower(a)
			continue
		}
		if id, err := parseID(a); err == nil {
			if f.UserID != 0 {
				return f, fmt.Errorf("more than one user id")
			}
			f.UserID = id
			continue
		}
		if f.Wheel != "" {
			return f, fmt.Errorf("unexpected argument %q", a)
		}
		f.Wheel = strings.ToLower(a)
	}
	return f, nil
}

// HandleSpinInfo handles the /spin_info command.
// Format: /spin_info <spin_id>
func (h *AdminHandler) HandleSpinInfo(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /spin_info <spin_id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}

	rec, marks, err := h.history.Get(context.Background(), id)
	if err != nil {
		if errors.Is(err, repository.ErrSpinNotFound) {
			return c.Reply("❌ Spin not found")
		}
		return c.Reply("❌ Could not load the spin")
	}
	return c.Reply(formatRecord(rec, marks))
}

// HandleCancel handles the /cancel command.
// Format: /cancel <spin_id> [reason]
func (h *AdminHandler) HandleCancel(c tele.Context) error {
	operator := CurrentUser(c)
	args := c.Args()
	if operator == nil || len(args) < 1 {
		return c.Reply("❌ Usage: /cancel <spin_id> [reason]")
	}
	id, err := parseID(args[0])
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}
	reason := strings.Join(args[1:], " ")

	rec, out, err := h.history.Cancel(context.Background(), operator.TelegramID, id, reason)
	switch {
	case err == nil:
		return c.Reply(fmt.Sprintf("✅ Spin #%d cancelled\n%s", rec.ID, out.Message))
	case errors.Is(err, repository.ErrSpinNotFound):
		return c.Reply("❌ Spin not found")
	case errors.Is(err, service.ErrAlreadyCancelled):
		return c.Reply("ℹ️ Spin is already cancelled")
	case errors.Is(err, service.ErrNotCancellable):
		return c.Reply("❌ This spin cannot be cancelled: it failed or recorded nothing to undo")
	case errors.Is(err, service.ErrCompensation):
		return c.Reply(fmt.Sprintf("❌ Compensation failed: %s\nData: %s", out.Message, compactJSON(out.Data)))
	default:
		return c.Reply("❌ Cancel failed: " + err.Error())
	}
}

// HandleMark handles the /mark command.
// Format: /mark <spin_id> <note>
func (h *AdminHandler) HandleMark(c tele.Context) error {
	operator := CurrentUser(c)
	args := c.Args()
	if operator == nil || len(args) < 1 {
		return c.Reply("❌ Usage: /mark <spin_id> <note>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}

	_, err = h.history.Mark(context.Background(), operator.TelegramID, id, strings.Join(args[1:], " "))
	switch {
	case err == nil:
		return c.Reply(fmt.Sprintf("🔖 Spin #%d marked", id))
	case errors.Is(err, service.ErrNoteTooLong):
		return c.Reply(fmt.Sprintf("❌ Note is longer than %d characters", service.MaxNoteLength))
	case errors.Is(err, repository.ErrSpinNotFound):
		return c.Reply("❌ Spin not found")
	default:
		return c.Reply("❌ Could not mark the spin")
	}
}

// HandleLink handles the /link command.
// Format: /link <telegram_id> <login>
func (h *AdminHandler) HandleLink(c tele.Context) error {
	operator := CurrentUser(c)
	args := c.Args()
	if operator == nil || len(args) < 2 {
		return c.Reply("❌ Usage: /link <telegram_id> <login>")
	}
	target, err := parseID(args[0])
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}

	user, err := h.accounts.Link(context.Background(), operator.TelegramID, target, args[1])
	switch {
	case err == nil:
		return c.Reply(fmt.Sprintf("✅ %d is now %s (%d)", user.TelegramID, user.Login, user.IntraID))
	case errors.Is(err, service.ErrCampusUnknown):
		return c.Reply("❌ Unknown campus login")
	case errors.Is(err, repository.ErrLoginTaken):
		return c.Reply("❌ This login is already linked to another account")
	case errors.Is(err, repository.ErrUserNotFound):
		return c.Reply("❌ That user never talked to the bot")
	default:
		return c.Reply("❌ Link failed: " + err.Error())
	}
}

// HandleGrantTicket handles the /grant_ticket command.
// Format: /grant_ticket <telegram_id> <wheel>
func (h *AdminHandler) HandleGrantTicket(c tele.Context) error {
	operator := CurrentUser(c)
	args := c.Args()
	if operator == nil || len(args) < 2 {
		return c.Reply("❌ Usage: /grant_ticket <telegram_id> <wheel>")
	}
	target, err := parseID(args[0])
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}

	ticket, err := h.tickets.Grant(context.Background(), operator.TelegramID, target, args[1])
	switch {
	case err == nil:
		return c.Reply(fmt.Sprintf("🎟 Ticket #%d for %s granted to %d", ticket.ID, ticket.WheelSlug, target))
	case errors.Is(err, service.ErrWheelNotFound):
		return c.Reply("❌ Unknown wheel")
	case errors.Is(err, service.ErrNotTicketWheel):
		return c.Reply("❌ That wheel runs on cooldown, not tickets")
	case errors.Is(err, repository.ErrUserNotFound):
		return c.Reply("❌ That user never talked to the bot")
	default:
		return c.Reply("❌ Could not grant the ticket")
	}
}

// HandleTickets handles the /tickets command.
// Format: /tickets [telegram_id]
func (h *AdminHandler) HandleTickets(c tele.Context) error {
	ctx := context.Background()
	var target int64
	if args := c.Args(); len(args) > 0 {
		id, err := parseID(args[0])
		if err != nil {
			return c.Reply("❌ " + err.Error())
		}
		target = id
	}

	counts, err := h.tickets.Summary(ctx, target)
	if err != nil {
		return c.Reply("❌ Could not load tickets")
	}
	lines := []string{"🎟 Unused tickets", divider}
	for _, tc := range counts {
		lines = append(lines, fmt.Sprintf("%s: %d", tc.WheelSlug, tc.Count))
	}
	if len(counts) == 0 {
		lines = append(lines, "none")
	}

	if target == 0 {
		recent, err := h.tickets.Recent(ctx)
		if err == nil && len(recent) > 0 {
			lines = append(lines, divider, "Latest grants:")
			for _, t := range recent {
				state := "unused"
				if t.UsedAt != nil {
					state = "used"
				}
				lines = append(lines, fmt.Sprintf("#%d %s → %d (%s)", t.ID, t.WheelSlug, t.UserID, state))
			}
		}
	}
	return c.Reply(strings.Join(lines, "\n"))
}

// HandleReload handles the /reload command.
func (h *AdminHandler) HandleReload(c tele.Context) error {
	operator := CurrentUser(c)
	if operator == nil {
		return nil
	}
	n, err := h.settings.ReloadWheels(operator.TelegramID)
	if err != nil {
		return c.Reply("❌ Reload failed, the previous wheels stay active:\n" + err.Error())
	}
	return c.Reply(fmt.Sprintf("✅ %d wheel(s) loaded", n))
}

// HandleTestMode handles the /testmode command.
// Format: /testmode <telegram_id> on|off
func (h *AdminHandler) HandleTestMode(c tele.Context) error {
	operator := CurrentUser(c)
	args := c.Args()
	if operator == nil || len(args) < 2 {
		return c.Reply("❌ Usage: /testmode <telegram_id> on|off")
	}
	target, err := parseID(args[0])
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}
	enabled, err := parseToggle(args[1])
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}

	if err := h.accounts.SetTestMode(context.Background(), operator.TelegramID, target, enabled); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.Reply("❌ User not found")
		}
		return c.Reply("❌ Could not change test mode")
	}
	return c.Reply(fmt.Sprintf("🧪 Test mode for %d: %s", target, args[1]))
}

// HandleRole handles the /role command.
// Format: /role <telegram_id> <user|moderator|admin>
func (h *AdminHandler) HandleRole(c tele.Context) error {
	operator := CurrentUser(c)
	args := c.Args()
	if operator == nil || len(args) < 2 {
		return c.Reply("❌ Usage: /role <telegram_id> <user|moderator|admin>")
	}
	target, err := parseID(args[0])
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}

	role := strings.ToLower(args[1])
	switch err := h.accounts.SetRole(context.Background(), operator.TelegramID, target, role); {
	case err == nil:
		return c.Reply(fmt.Sprintf("✅ %d is now %s", target, role))
	case errors.Is(err, service.ErrInvalidRole):
		return c.Reply("❌ Role must be user, moderator or admin")
	case errors.Is(err, service.ErrSelfDemotion):
		return c.Reply("❌ You cannot demote yourself")
	case errors.Is(err, repository.ErrUserNotFound):
		return c.Reply("❌ User not found")
	default:
		return c.Reply("❌ Could not change the role")
	}
}

// HandleStaff handles the /staff command.
func (h *AdminHandler) HandleStaff(c tele.Context) error {
	staff, err := h.accounts.Staff(context.Background())
	if err != nil {
		return c.Reply("❌ Could not list staff")
	}
	lines := []string{"🛡 Staff", divider}
	for _, u := range staff {
		lines = append(lines, fmt.Sprintf("%s: @%s (%d)", u.Role, u.Username, u.TelegramID))
	}
	return c.Reply(strings.Join(lines, "\n"))
}

// HandleMaintenance handles the /maintenance command.
// Format: /maintenance on|off [message]
func (h *AdminHandler) HandleMaintenance(c tele.Context) error {
	operator := CurrentUser(c)
	args := c.Args()
	if operator == nil || len(args) < 1 {
		return c.Reply("❌ Usage: /maintenance on|off [message]")
	}
	enabled, err := parseToggle(args[0])
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}

	message := strings.Join(args[1:], " ")
	if err := h.settings.SetMaintenance(context.Background(), operator.TelegramID, enabled, message); err != nil {
		return c.Reply("❌ Could not change maintenance mode")
	}
	return c.Reply(fmt.Sprintf("🛠 Maintenance mode: %s", strings.ToLower(args[0])))
}

// HandleSetCooldown handles the /set_cooldown command.
// Format: /set_cooldown <duration> (e.g. 24h, 90m)
func (h *AdminHandler) HandleSetCooldown(c tele.Context) error {
	operator := CurrentUser(c)
	args := c.Args()
	if operator == nil || len(args) < 1 {
		return c.Reply("❌ Usage: /set_cooldown <duration>, e.g. 24h or 90m")
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return c.Reply("❌ Invalid duration, e.g. 24h or 90m")
	}

	if err := h.settings.SetCooldown(context.Background(), operator.TelegramID, d); err != nil {
		if errors.Is(err, service.ErrInvalidCooldown) {
			return c.Reply("❌ Cooldown cannot be negative")
		}
		return c.Reply("❌ Could not change the cooldown")
	}
	return c.Reply(fmt.Sprintf("⏰ Jackpot cooldown set to %s", formatDuration(d)))
}
