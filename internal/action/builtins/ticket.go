package builtins

import (
	"context"
	"fmt"
	"strings"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/model"
)

// ticketAction grants a ticket for a ticket-only wheel.
//
//	args: wheel (slug)
type ticketAction struct {
	tickets TicketStore
	wheels  WheelCatalog
}

func (a *ticketAction) execute(ctx context.Context, _ action.API, user *model.User, args map[string]any) action.Outcome {
	if a.tickets == nil || a.wheels == nil {
		return action.Fail(action.KindConfiguration, "ticket action is not wired to a store", nil)
	}
	slug := strings.TrimSpace(action.StringArg(args, "wheel", ""))
	if slug == "" {
		return action.Invalid("missing wheel")
	}
	exists, ticketOnly := a.wheels.TicketOnly(slug)
	if !exists {
		return action.Invalid(fmt.Sprintf("unknown wheel %q", slug))
	}
	if !ticketOnly {
		return action.Invalid(fmt.Sprintf("wheel %q is not ticket-only", slug))
	}

	t, err := a.tickets.Create(ctx, user.TelegramID, slug, nil)
	if err != nil {
		return action.Fail(action.KindAction, fmt.Sprintf("create ticket: %v", err), nil)
	}
	return action.Ok("Ticket granted", map[string]any{
		"id":    t.ID,
		"user":  user.Login,
		"wheel": slug,
	})
}

// compensate removes the recorded ticket while it is unused. A spent ticket is left alone.
func (a *ticketAction) compensate(ctx context.Context, _ action.API, user *model.User, data map[string]any) action.Outcome {
	if a.tickets == nil {
		return action.Fail(action.KindConfiguration, "ticket action is not wired to a store", nil)
	}
	id, err := action.IntArg(data, "id", 0)
	if err != nil {
		return action.Invalid(err.Error())
	}
	if id <= 0 {
		return action.Invalid("invalid or missing ticket id")
	}

	deleted, err := a.tickets.DeleteUnused(ctx, id, user.TelegramID)
	if err != nil {
		return action.Fail(action.KindAction, fmt.Sprintf("delete ticket %d: %v", id, err), nil)
	}
	if !deleted {
		return action.Ok("No unused ticket found for this user and wheel", nil)
	}
	return action.Ok("Ticket cancelled", map[string]any{"ticket_id": id})
}
