package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"lucky-wheel/internal/model"
)

// RecentTickets is how many grants the ticket overview shows.
const RecentTickets = 20

// TicketService grants and summarises spin tickets.
type TicketService struct {
	tickets TicketStore
	wheels  WheelCatalog
}

// NewTicketService creates a TicketService.
func NewTicketService(tickets TicketStore, wheels WheelCatalog) *TicketService {
	return &TicketService{tickets: tickets, wheels: wheels}
}

// Grant gives telegramID one ticket for a ticket-only wheel.
func (s *TicketService) Grant(ctx context.Context, operatorID, telegramID int64, wheelSlug string) (*model.Ticket, error) {
	w, ok := s.wheels.Get(wheelSlug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWheelNotFound, wheelSlug)
	}
	if !w.TicketOnly {
		return nil, fmt.Errorf("%w: %s", ErrNotTicketWheel, w.Slug)
	}

	t, err := s.tickets.Create(ctx, telegramID, w.Slug, &operatorID)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int64("operator_id", operatorID).
		Str("operation", "grant_ticket").
		Int64("user_id", telegramID).
		Str("wheel", w.Slug).
		Int64("ticket_id", t.ID).
		Msg("Ticket granted")
	return t, nil
}

// Summary counts unused tickets per wheel. A zero telegramID covers every user.
func (s *TicketService) Summary(ctx context.Context, telegramID int64) ([]model.TicketCount, error) {
	return s.tickets.Summary(ctx, telegramID)
}

// Recent returns the latest grants.
func (s *TicketService) Recent(ctx context.Context) ([]*model.Ticket, error) {
	return s.tickets.Recent(ctx, RecentTickets)
}

// Remaining returns how many unused tickets a user holds for a wheel.
func (s *TicketService) Remaining(ctx context.Context, telegramID int64, wheelSlug string) (int64, error) {
	return s.tickets.CountUnused(ctx, telegramID, wheelSlug)
}
