package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/model"
	"lucky-wheel/internal/pkg/lock"
	"lucky-wheel/internal/repository"
)

// MaxNoteLength bounds a moderator mark note, in characters.
const MaxNoteLength = 200

// HistoryService lists, marks and cancels spin records.
type HistoryService struct {
	spins      SpinStore
	marks      MarkStore
	users      UserStore
	dispatcher *action.Dispatcher
	locks      *lock.KeyedLock
	now        func() time.Time
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(spins SpinStore, marks MarkStore, users UserStore, dispatcher *action.Dispatcher, locks *lock.KeyedLock) *HistoryService {
	if locks == nil {
		locks = lock.NewKeyedLock()
	}
	return &HistoryService{
		spins:      spins,
		marks:      marks,
		users:      users,
		dispatcher: dispatcher,
		locks:      locks,
		now:        time.Now,
	}
}

// List returns spin records matching f, newest first.
func (s *HistoryService) List(ctx context.Context, f repository.SpinFilter) ([]*model.SpinRecord, error) {
	switch f.Status {
	case model.SpinStatusAll, model.SpinStatusActive, model.SpinStatusCancelled, model.SpinStatusFailed:
	default:
		return nil, fmt.Errorf("unknown status filter %q", f.Status)
	}
	return s.spins.List(ctx, f)
}

// Get returns one record and its marks.
func (s *HistoryService) Get(ctx context.Context, spinID int64) (*model.SpinRecord, []*model.HistoryMark, error) {
	rec, err := s.spins.GetByID(ctx, spinID)
	if err != nil {
		return nil, nil, err
	}
	marks, err := s.marks.ListForSpin(ctx, spinID)
	if err != nil {
		return nil, nil, err
	}
	return rec, marks, nil
}

// Mark records the operator's validation note on a spin.
func (s *HistoryService) Mark(ctx context.Context, operatorID, spinID int64, note string) (*model.HistoryMark, error) {
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return nil, ErrNoteTooLong
	}
	m, err := s.marks.Upsert(ctx, spinID, operatorID, note)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int64("operator_id", operatorID).
		Str("operation", "mark").
		Int64("spin_id", spinID).
		Str("note", note).
		Msg("Spin marked")
	return m, nil
}

// Cancel compensates a spin's side effect and flags the record as cancelled.
// The record is only flagged once the compensation succeeded.
func (s *HistoryService) Cancel(ctx context.Context, operatorID, spinID int64, reason string) (*model.SpinRecord, action.Outcome, error) {
	key := "spin_cancel:" + strconv.FormatInt(spinID, 10)
	if err := s.locks.LockContext(ctx, key); err != nil {
		return nil, action.Outcome{}, err
	}
	defer s.locks.Unlock(key)

	rec, err := s.spins.GetByID(ctx, spinID)
	if err != nil {
		return nil, action.Outcome{}, err
	}
	if rec.Cancelled {
		return rec, action.Outcome{}, ErrAlreadyCancelled
	}
	if !rec.CanBeCancelled() {
		return rec, action.Outcome{}, ErrNotCancellable
	}

	user, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return rec, action.Outcome{}, fmt.Errorf("load spin owner: %w", err)
	}

	ctx = context.WithoutCancel(ctx)
	out := s.dispatcher.Cancel(ctx, user, rec.Function, rec.ResultData)
	if !out.Success() {
		log.Error().
			Int64("operator_id", operatorID).
			Str("operation", "cancel").
			Int64("spin_id", spinID).
			Str("function", rec.Function).
			Str("result", out.Message).
			Interface("data", out.Data).
			Msg("Spin compensation failed")
		return rec, out, fmt.Errorf("%w: %s", ErrCompensation, out.Message)
	}

	updated, err := s.spins.MarkCancelled(ctx, spinID, operatorID, reason, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotCancellable) {
			return rec, out, ErrNotCancellable
		}
		log.Error().
			Err(err).
			Int64("operator_id", operatorID).
			Int64("spin_id", spinID).
			Interface("data", out.Data).
			Msg("Compensation applied but the record could not be flagged")
		return rec, out, fmt.Errorf("failed to flag cancelled spin: %w", err)
	}

	log.Info().
		Int64("operator_id", operatorID).
		Str("operation", "cancel").
		Int64("spin_id", spinID).
		Int64("user_id", rec.UserID).
		Str("function", rec.Function).
		Str("reason", reason).
		Msg("Spin cancelled")
	return updated, out, nil
}
