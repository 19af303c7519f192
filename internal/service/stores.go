package service

import (
	"context"
	"time"

	"lucky-wheel/internal/model"
	"lucky-wheel/internal/repository"
	"lucky-wheel/internal/wheel"
)

// UserStore is the slice of repository.UserRepository the services use.
type UserStore interface {
	GetByID(ctx context.Context, telegramID int64) (*model.User, error)
	GetOrCreate(ctx context.Context, telegramID int64, username string) (*model.User, bool, error)
	UpdateUsername(ctx context.Context, telegramID int64, username string) error
	Link(ctx context.Context, telegramID int64, login string, intraID int64) (*model.User, error)
	SetRole(ctx context.Context, telegramID int64, role string) error
	SetTestMode(ctx context.Context, telegramID int64, enabled bool) error
	TryStartCooldown(ctx context.Context, telegramID int64, now time.Time, cooldown time.Duration) (bool, error)
	ListStaff(ctx context.Context) ([]*model.User, error)
}

// SpinStore persists spin records.
type SpinStore interface {
	Create(ctx context.Context, rec *model.SpinRecord) error
	GetByID(ctx context.Context, id int64) (*model.SpinRecord, error)
	List(ctx context.Context, f repository.SpinFilter) ([]*model.SpinRecord, error)
	MarkCancelled(ctx context.Context, id, cancelledBy int64, reason string, at time.Time) (*model.SpinRecord, error)
}

// MarkStore persists moderator marks.
type MarkStore interface {
	Upsert(ctx context.Context, spinID, markedBy int64, note string) (*model.HistoryMark, error)
	ListForSpin(ctx context.Context, spinID int64) ([]*model.HistoryMark, error)
}

// TicketStore persists spin tickets.
type TicketStore interface {
	Create(ctx context.Context, userID int64, wheelSlug string, grantedBy *int64) (*model.Ticket, error)
	ConsumeOldest(ctx context.Context, userID int64, wheelSlug string) (*model.Ticket, error)
	CountUnused(ctx context.Context, userID int64, wheelSlug string) (int64, error)
	Summary(ctx context.Context, userID int64) ([]model.TicketCount, error)
	Recent(ctx context.Context, limit int) ([]*model.Ticket, error)
}

// SettingsStore reads and writes site settings.
type SettingsStore interface {
	Get(ctx context.Context) (*model.SiteSettings, error)
	SetMaintenance(ctx context.Context, enabled bool, message string) error
	SetCooldown(ctx context.Context, cooldown time.Duration) error
}

// WheelCatalog serves the active wheels.
type WheelCatalog interface {
	Get(slug string) (*wheel.Wheel, bool)
	List() []*wheel.Wheel
	Reload() (int, error)
}
