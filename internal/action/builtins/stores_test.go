package builtins

import (
	"context"
	"errors"
	"sync"
	"time"

	"lucky-wheel/internal/model"
)

type memOwners struct {
	mu        sync.Mutex
	rows      map[int64]model.UniqueOwnership
	upsertErr error
}

func newMemOwners() *memOwners {
	return &memOwners{rows: make(map[int64]model.UniqueOwnership)}
}

func (m *memOwners) Get(_ context.Context, groupID int64) (*model.UniqueOwnership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[groupID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memOwners) Upsert(_ context.Context, groupID, ownerUserID, ownerIntraID int64, previous *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.rows[groupID] = model.UniqueOwnership{
		GroupID:         groupID,
		OwnerUserID:     ownerUserID,
		OwnerIntraID:    ownerIntraID,
		PreviousOwnerID: previous,
		UpdatedAt:       time.Now(),
	}
	return nil
}

func (m *memOwners) DeleteIfOwner(_ context.Context, groupID, ownerUserID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[groupID]
	if !ok || row.OwnerUserID != ownerUserID {
		return false, nil
	}
	delete(m.rows, groupID)
	return true, nil
}

type memTickets struct {
	mu      sync.Mutex
	nextID  int64
	tickets map[int64]*model.Ticket
}

func newMemTickets() *memTickets {
	return &memTickets{tickets: make(map[int64]*model.Ticket)}
}

func (m *memTickets) Create(_ context.Context, userID int64, wheelSlug string, grantedBy *int64) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wheelSlug == "" {
		return nil, errors.New("empty wheel")
	}
	m.nextID++
	t := &model.Ticket{ID: m.nextID, UserID: userID, WheelSlug: wheelSlug, GrantedBy: grantedBy, CreatedAt: time.Now()}
	m.tickets[t.ID] = t
	return t, nil
}

func (m *memTickets) DeleteUnused(_ context.Context, ticketID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok || t.UserID != userID || t.UsedAt != nil {
		return false, nil
	}
	delete(m.tickets, ticketID)
	return true, nil
}

func (m *memTickets) use(ticketID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.tickets[ticketID].UsedAt = &now
}

type staticWheels map[string]bool

func (w staticWheels) TicketOnly(slug string) (bool, bool) {
	ticketOnly, ok := w[slug]
	return ok, ticketOnly
}
