// Package builtins holds the reward actions shipped with the wheel.
package builtins

import (
	"context"
	"fmt"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/model"
	"lucky-wheel/internal/pkg/lock"
)

// TicketStore persists tickets granted by the ticket action.
type TicketStore interface {
	Create(ctx context.Context, userID int64, wheelSlug string, grantedBy *int64) (*model.Ticket, error)
	DeleteUnused(ctx context.Context, ticketID, userID int64) (bool, error)
}

// WheelCatalog answers whether a wheel exists and whether it is ticket-only.
type WheelCatalog interface {
	TicketOnly(slug string) (exists bool, ticketOnly bool)
}

// OwnershipStore persists unique group ownership. Get returns nil when the group has no owner.
type OwnershipStore interface {
	Get(ctx context.Context, groupID int64) (*model.UniqueOwnership, error)
	Upsert(ctx context.Context, groupID, ownerUserID, ownerIntraID int64, previousOwnerID *int64) error
	DeleteIfOwner(ctx context.Context, groupID, ownerUserID int64) (bool, error)
}

// Deps are the local collaborators of the stateful actions.
type Deps struct {
	Tickets TicketStore
	Wheels  WheelCatalog
	Owners  OwnershipStore
	Locks   *lock.KeyedLock
}

// Register installs every builtin into r.
func Register(r *action.Registry, deps Deps) error {
	if deps.Locks == nil {
		deps.Locks = lock.NewKeyedLock()
	}
	tickets := &ticketAction{tickets: deps.Tickets, wheels: deps.Wheels}
	unique := &uniqueGroupAction{owners: deps.Owners, locks: deps.Locks}

	entries := []struct {
		name       string
		execute    action.Func
		compensate action.Func
	}{
		{"default", defaultAction, cancelDefault},
		{"coa_points", coaPoints, cancelCoaPoints},
		{"wallets", wallets, cancelWallets},
		{"title", title, cancelTitle},
		{"tig", tig, cancelTIG},
		{"ticket", tickets.execute, tickets.compensate},
		{"unique_group", unique.execute, unique.compensate},
	}
	for _, e := range entries {
		if err := r.Register(action.NamespaceBuiltins, e.name, e.execute, e.compensate); err != nil {
			return fmt.Errorf("register builtin %s: %w", e.name, err)
		}
	}
	return nil
}

func templateVars(user *model.User, extra map[string]string) map[string]string {
	vars := map[string]string{"login": user.Login}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

func requireLinked(user *model.User) (action.Outcome, bool) {
	if !user.IsLinked() {
		return action.Invalid(fmt.Sprintf("user %d is not linked to a campus account", user.TelegramID)), false
	}
	return action.Outcome{}, true
}
