package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"lucky-wheel/internal/repository"
	"lucky-wheel/internal/service"
)

// WheelHandler handles the wheel commands available to every user.
type WheelHandler struct {
	spins   *service.SpinService
	history *service.HistoryService
}

// NewWheelHandler creates a new WheelHandler.
func NewWheelHandler(spins *service.SpinService, history *service.HistoryService) *WheelHandler {
	return &WheelHandler{spins: spins, history: history}
}

// HandleWheels handles the /wheels command.
func (h *WheelHandler) HandleWheels(c tele.Context) error {
	wheels := h.spins.Wheels()
	if len(wheels) == 0 {
		return c.Reply("🎡 No wheel is available right now")
	}
	return c.Reply(formatWheelPanel(wheels), BuildWheelPanel(wheels))
}

// HandleSpin handles the /spin command.
// Format: /spin <wheel>
func (h *WheelHandler) HandleSpin(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /spin <wheel>\nSee /wheels for the list")
	}

	return c.Reply(h.spin(user.TelegramID, args[0]))
}

// HandleCallback handles the inline wheel panel buttons.
func (h *WheelHandler) HandleCallback(c tele.Context) error {
	cb := c.Callback()
	user := CurrentUser(c)
	if cb == nil || user == nil {
		return nil
	}

	if strings.TrimPrefix(cb.Data, "\f") == CallbackRefresh {
		_ = c.Respond()
		wheels := h.spins.Wheels()
		return c.Edit(formatWheelPanel(wheels), BuildWheelPanel(wheels))
	}

	slug, ok := ParseCallback(cb.Data)
	if !ok {
		log.Debug().Str("data", cb.Data).Msg("Ignoring unknown callback")
		return c.Respond()
	}
	_ = c.Respond(&tele.CallbackResponse{Text: "🎡 Spinning..."})
	return c.Send(h.spin(user.TelegramID, slug))
}

// spin runs one spin and renders the reply for the chat.
func (h *WheelHandler) spin(telegramID int64, slug string) string {
	res, err := h.spins.Spin(context.Background(), telegramID, slug)
	if err != nil {
		var eligibility *service.EligibilityError
		switch {
		case errors.As(err, &eligibility):
			return formatEligibility(eligibility)
		case errors.Is(err, service.ErrWheelNotFound):
			return "❌ Unknown wheel, see /wheels"
		case errors.Is(err, service.ErrNotLinked):
			return "❌ Your account is not linked to a campus login yet"
		case res != nil:
			// The spin happened but its record could not be saved.
			log.Error().Err(err).Int64("user_id", telegramID).Msg("Spin finished without a record")
		default:
			log.Error().Err(err).Int64("user_id", telegramID).Str("wheel", slug).Msg("Spin failed")
			return "❌ Spin failed, please try again later"
		}
	}

	msg := fmt.Sprintf("🎡 %s\n%s\n🎯 %s\n%s", res.Wheel.Title, divider, res.Sector.Label, res.Sector.Message)
	if !res.Outcome.Success() {
		msg += "\n\n⚠️ The prize could not be delivered automatically. Staff has been notified."
	}
	return msg
}

// HandleHistory handles the /history command: the caller's last spins.
func (h *WheelHandler) HandleHistory(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}

	recs, err := h.history.List(context.Background(), repository.SpinFilter{UserID: user.TelegramID, Limit: 10})
	if err != nil {
		return c.Reply("❌ Could not load your history, try again later")
	}
	if len(recs) == 0 {
		return c.Reply("📜 You have not spun yet")
	}

	lines := []string{"📜 Your last spins", divider}
	for _, r := range recs {
		lines = append(lines, formatRecordLine(r))
	}
	return c.Reply(strings.Join(lines, "\n"))
}
