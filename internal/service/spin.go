package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/model"
	"lucky-wheel/internal/pkg/lock"
	"lucky-wheel/internal/pkg/metrics"
	"lucky-wheel/internal/repository"
	"lucky-wheel/internal/wheel"
)

// SpinResult is what a completed spin reports back to the chat surface.
type SpinResult struct {
	Wheel   *wheel.Wheel
	Index   int
	Sector  model.Sector
	Outcome action.Outcome
	Record  *model.SpinRecord
	Ticket  *model.Ticket
}

// SpinService gates, runs and records spins.
type SpinService struct {
	wheels     WheelCatalog
	users      UserStore
	tickets    TicketStore
	spins      SpinStore
	settings   SettingsStore
	dispatcher *action.Dispatcher
	locks      *lock.KeyedLock

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
}

// NewSpinService creates a SpinService. A nil rng uses a time-seeded source.
func NewSpinService(
	wheels WheelCatalog,
	users UserStore,
	tickets TicketStore,
	spins SpinStore,
	settings SettingsStore,
	dispatcher *action.Dispatcher,
	locks *lock.KeyedLock,
	rng *rand.Rand,
) *SpinService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if locks == nil {
		locks = lock.NewKeyedLock()
	}
	return &SpinService{
		wheels:     wheels,
		users:      users,
		tickets:    tickets,
		spins:      spins,
		settings:   settings,
		dispatcher: dispatcher,
		locks:      locks,
		rng:        rng,
		now:        time.Now,
	}
}

// Spin spins wheelSlug for telegramID.
//
// The eligibility gate is checked and consumed atomically in storage; once
// it passes, the action runs to completion even if ctx is cancelled, and a
// spin record is written whatever the action's outcome.
func (s *SpinService) Spin(ctx context.Context, telegramID int64, wheelSlug string) (*SpinResult, error) {
	w, ok := s.wheels.Get(wheelSlug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWheelNotFound, wheelSlug)
	}

	key := "spin:" + strconv.FormatInt(telegramID, 10)
	if err := s.locks.LockContext(ctx, key); err != nil {
		return nil, err
	}
	defer s.locks.Unlock(key)

	user, err := s.users.GetByID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if !user.IsLinked() {
		return nil, ErrNotLinked
	}

	res := &SpinResult{Wheel: w}
	if !user.TestMode {
		ticket, err := s.passGate(ctx, user, w)
		if err != nil {
			return nil, err
		}
		res.Ticket = ticket
	}

	res.Index = s.pick(len(w.Sectors))
	res.Sector = w.Sectors[res.Index]

	// The gate is spent: finish the spin regardless of the caller.
	ctx = context.WithoutCancel(ctx)
	res.Outcome = s.dispatcher.Run(ctx, user, &res.Sector)

	res.Record = &model.SpinRecord{
		WheelSlug:     w.Slug,
		WheelVersion:  w.Version,
		SectorLabel:   res.Sector.Label,
		Color:         res.Sector.Color,
		UserID:        user.TelegramID,
		Function:      res.Sector.Function,
		ResultMessage: res.Outcome.Message,
		ResultData:    res.Outcome.Data,
		Success:       res.Outcome.Success(),
	}
	metrics.Spins.WithLabelValues(w.Slug, strconv.FormatBool(res.Record.Success)).Inc()

	if err := s.spins.Create(ctx, res.Record); err != nil {
		log.Error().
			Err(err).
			Int64("user_id", user.TelegramID).
			Str("wheel", w.Slug).
			Str("sector", res.Sector.Label).
			Str("function", res.Sector.Function).
			Interface("data", res.Outcome.Data).
			Msg("Failed to persist spin record; manual follow-up required")
		return res, fmt.Errorf("failed to record spin: %w", err)
	}

	log.Info().
		Int64("spin_id", res.Record.ID).
		Int64("user_id", user.TelegramID).
		Str("login", user.Login).
		Str("wheel", w.Slug).
		Str("version", w.Version).
		Int("index", res.Index).
		Str("sector", res.Sector.Label).
		Bool("success", res.Record.Success).
		Bool("test_mode", user.TestMode).
		Msg("Spin completed")

	return res, nil
}

// passGate consumes a ticket on ticket-only wheels and starts the cooldown otherwise.
func (s *SpinService) passGate(ctx context.Context, user *model.User, w *wheel.Wheel) (*model.Ticket, error) {
	if w.TicketOnly {
		ticket, err := s.tickets.ConsumeOldest(ctx, user.TelegramID, w.Slug)
		if err != nil {
			if errors.Is(err, repository.ErrNoTicket) {
				return nil, &EligibilityError{Wheel: w.Slug, Reason: ReasonNoTicket}
			}
			return nil, err
		}
		return ticket, nil
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ok, err := s.users.TryStartCooldown(ctx, user.TelegramID, now, settings.JackpotCooldown)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &EligibilityError{
			Wheel:     w.Slug,
			Reason:    ReasonCooldown,
			Remaining: remaining(user.LastSpin, settings.JackpotCooldown, now),
		}
	}
	return nil, nil
}

func (s *SpinService) pick(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

// TimeToSpin reports how long the user still has to wait on cooldown wheels.
func (s *SpinService) TimeToSpin(ctx context.Context, telegramID int64) (time.Duration, error) {
	user, err := s.users.GetByID(ctx, telegramID)
	if err != nil {
		return 0, err
	}
	if user.TestMode {
		return 0, nil
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return 0, err
	}
	return remaining(user.LastSpin, settings.JackpotCooldown, s.now()), nil
}

// Wheels lists the active wheels.
func (s *SpinService) Wheels() []*wheel.Wheel {
	return s.wheels.List()
}

func remaining(last *time.Time, cooldown time.Duration, now time.Time) time.Duration {
	if last == nil {
		return 0
	}
	if d := last.Add(cooldown).Sub(now); d > 0 {
		return d
	}
	return 0
}
