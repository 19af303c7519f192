package handler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"lucky-wheel/internal/model"
	"lucky-wheel/internal/service"
	"lucky-wheel/internal/wheel"
)

// UserKey is the context key under which middleware stores the *model.User.
const UserKey = "user"

// CurrentUser returns the user resolved by the user middleware, or nil.
func CurrentUser(c tele.Context) *model.User {
	u, _ := c.Get(UserKey).(*model.User)
	return u
}

const divider = "━━━━━━━━━━━━━━━"

// formatEligibility renders a rejected spin.
func formatEligibility(e *service.EligibilityError) string {
	if e.Reason == service.ReasonNoTicket {
		return fmt.Sprintf("🎟 You have no ticket left for %s", e.Wheel)
	}
	if e.Remaining.Round(time.Second) <= 0 {
		return "⏰ Not yet! Try again in a moment"
	}
	return fmt.Sprintf("⏰ Not yet! Next spin in %s", formatDuration(e.Remaining))
}

// formatDuration renders a wait like "23h 4m 5s".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "now"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func formatWheel(w *wheel.Wheel) string {
	gate := "cooldown"
	if w.TicketOnly {
		gate = "ticket"
	}
	return fmt.Sprintf("🎡 %s (%s) - %d sectors, %s", w.Title, w.Slug, len(w.Sectors), gate)
}

func recordStatus(r *model.SpinRecord) string {
	switch {
	case r.Cancelled:
		return "↩️ cancelled"
	case r.Success:
		return "✅ ok"
	default:
		return "❌ failed"
	}
}

// formatRecordLine is the one-line history view.
func formatRecordLine(r *model.SpinRecord) string {
	return fmt.Sprintf("#%d %s %s → %s %s",
		r.ID, r.CreatedAt.Format("01-02 15:04"), r.WheelSlug, r.SectorLabel, recordStatus(r))
}

// formatRecord is the full operator view of one spin.
func formatRecord(r *model.SpinRecord, marks []*model.HistoryMark) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 Spin #%d\n%s\n", r.ID, divider)
	fmt.Fprintf(&b, "Time: %s\n", r.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "User: %d\n", r.UserID)
	fmt.Fprintf(&b, "Wheel: %s (%s)\n", r.WheelSlug, r.WheelVersion)
	fmt.Fprintf(&b, "Sector: %s %s\n", r.SectorLabel, r.Color)
	fmt.Fprintf(&b, "Function: %s\n", r.Function)
	fmt.Fprintf(&b, "Status: %s\n", recordStatus(r))
	fmt.Fprintf(&b, "Message: %s\n", r.ResultMessage)
	fmt.Fprintf(&b, "Data: %s\n", compactJSON(r.ResultData))
	if r.Cancelled {
		if r.CancelledBy != nil {
			fmt.Fprintf(&b, "Cancelled by: %d\n", *r.CancelledBy)
		}
		if r.CancelledAt != nil {
			fmt.Fprintf(&b, "Cancelled at: %s\n", r.CancelledAt.Format(time.RFC3339))
		}
		if r.CancellationReason != nil && *r.CancellationReason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", *r.CancellationReason)
		}
	}
	for _, m := range marks {
		fmt.Fprintf(&b, "🔖 %d: %s\n", m.MarkedBy, m.Note)
	}
	b.WriteString(divider)
	return b.String()
}

func compactJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// parseID parses a positive integer id argument.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseToggle accepts on/off style switches.
func parseToggle(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1", "enable":
		return true, nil
	case "off", "false", "no", "0", "disable":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

