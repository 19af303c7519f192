package handler

import (
	"strings"

	tele "gopkg.in/telebot.v3"

	"lucky-wheel/internal/wheel"
)

// Callback data prefixes
const (
	CallbackSpin    = "spin:"         // spin:daily_wheel
	CallbackRefresh = "wheel_refresh" // wheel_refresh
)

// BuildWheelPanel creates the inline panel with one spin button per wheel.
func BuildWheelPanel(wheels []*wheel.Wheel) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows []tele.Row
	var currentRow []tele.Btn
	for i, w := range wheels {
		label := "🎡 " + w.Title
		if w.TicketOnly {
			label = "🎟 " + w.Title
		}
		currentRow = append(currentRow, markup.Data(label, CallbackSpin+w.Slug))

		// 2 buttons per row
		if len(currentRow) == 2 || i == len(wheels)-1 {
			rows = append(rows, markup.Row(currentRow...))
			currentRow = nil
		}
	}
	rows = append(rows, markup.Row(markup.Data("🔄 Refresh", CallbackRefresh)))

	markup.Inline(rows...)
	return markup
}

// ParseCallback strips the telebot prefix from callback data and splits
// off the spin target. ok is false for data that is not a spin button.
func ParseCallback(data string) (slug string, ok bool) {
	data = strings.TrimPrefix(data, "\f")
	if !strings.HasPrefix(data, CallbackSpin) {
		return "", false
	}
	slug = strings.TrimPrefix(data, CallbackSpin)
	// telebot appends "|payload" when a button carries extra data
	if i := strings.IndexByte(slug, '|'); i >= 0 {
		slug = slug[:i]
	}
	return slug, slug != ""
}

func formatWheelPanel(wheels []*wheel.Wheel) string {
	lines := []string{"🎡 Wheels", divider}
	for _, w := range wheels {
		lines = append(lines, formatWheel(w))
	}
	lines = append(lines, divider, "Tap a wheel or use /spin <wheel>")
	return strings.Join(lines, "\n")
}
