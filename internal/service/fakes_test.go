package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/action/actiontest"
	"lucky-wheel/internal/model"
	"lucky-wheel/internal/repository"
	"lucky-wheel/internal/wheel"
)

type memUsers struct {
	mu    sync.Mutex
	users map[int64]*model.User
}

func newMemUsers(users ...*model.User) *memUsers {
	m := &memUsers{users: make(map[int64]*model.User)}
	for _, u := range users {
		cp := *u
		if cp.Role == "" {
			cp.Role = model.RoleUser
		}
		m.users[u.TelegramID] = &cp
	}
	return m
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetOrCreate(_ context.Context, id int64, username string) (*model.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, false, nil
	}
	u := &model.User{TelegramID: id, Username: username, Role: model.RoleUser}
	m.users[id] = u
	cp := *u
	return &cp, true, nil
}

func (m *memUsers) update(id int64, fn func(u *model.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	fn(u)
	return nil
}

func (m *memUsers) UpdateUsername(_ context.Context, id int64, username string) error {
	return m.update(id, func(u *model.User) { u.Username = username })
}

func (m *memUsers) Link(_ context.Context, id int64, login string, intraID int64) (*model.User, error) {
	m.mu.Lock()
	for _, u := range m.users {
		if u.Login == login && u.TelegramID != id {
			m.mu.Unlock()
			return nil, repository.ErrLoginTaken
		}
	}
	m.mu.Unlock()
	if err := m.update(id, func(u *model.User) { u.Login, u.IntraID = login, intraID }); err != nil {
		return nil, err
	}
	return m.GetByID(context.Background(), id)
}

func (m *memUsers) SetRole(_ context.Context, id int64, role string) error {
	return m.update(id, func(u *model.User) { u.Role = role })
}

func (m *memUsers) SetTestMode(_ context.Context, id int64, enabled bool) error {
	return m.update(id, func(u *model.User) { u.TestMode = enabled })
}

func (m *memUsers) TryStartCooldown(_ context.Context, id int64, now time.Time, cooldown time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	if u.LastSpin != nil && u.LastSpin.After(now.Add(-cooldown)) {
		return false, nil
	}
	t := now
	u.LastSpin = &t
	return true, nil
}

func (m *memUsers) ListStaff(context.Context) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.User
	for _, u := range m.users {
		if u.Role != model.RoleUser {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

// memSpins applies no cancellation guard of its own.
type memSpins struct {
	mu        sync.Mutex
	recs      []*model.SpinRecord
	createErr error
}

func (m *memSpins) Create(_ context.Context, rec *model.SpinRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	rec.ID = int64(len(m.recs) + 1)
	rec.CreatedAt = time.Now()
	cp := *rec
	cp.ResultData = action.CloneData(rec.ResultData)
	m.recs = append(m.recs, &cp)
	return nil
}

func (m *memSpins) GetByID(_ context.Context, id int64) (*model.SpinRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 1 || int(id) > len(m.recs) {
		return nil, repository.ErrSpinNotFound
	}
	cp := *m.recs[id-1]
	return &cp, nil
}

func (m *memSpins) List(_ context.Context, f repository.SpinFilter) ([]*model.SpinRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SpinRecord
	for i := len(m.recs) - 1; i >= 0; i-- {
		r := m.recs[i]
		if f.UserID != 0 && r.UserID != f.UserID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memSpins) MarkCancelled(_ context.Context, id, by int64, reason string, at time.Time) (*model.SpinRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 1 || int(id) > len(m.recs) {
		return nil, repository.ErrSpinNotFound
	}
	r := m.recs[id-1]
	r.Cancelled = true
	r.CancelledAt = &at
	r.CancelledBy = &by
	r.CancellationReason = &reason
	cp := *r
	return &cp, nil
}

func (m *memSpins) all() []*model.SpinRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.SpinRecord, len(m.recs))
	copy(out, m.recs)
	return out
}

type memMarks struct {
	marks map[[2]int64]*model.HistoryMark
}

func (m *memMarks) Upsert(_ context.Context, spinID, by int64, note string) (*model.HistoryMark, error) {
	if m.marks == nil {
		m.marks = make(map[[2]int64]*model.HistoryMark)
	}
	mk := &model.HistoryMark{SpinID: spinID, MarkedBy: by, Note: note, MarkedAt: time.Now()}
	m.marks[[2]int64{spinID, by}] = mk
	return mk, nil
}

func (m *memMarks) ListForSpin(_ context.Context, spinID int64) ([]*model.HistoryMark, error) {
	var out []*model.HistoryMark
	for k, mk := range m.marks {
		if k[0] == spinID {
			out = append(out, mk)
		}
	}
	return out, nil
}

type memTickets struct {
	mu      sync.Mutex
	tickets []*model.Ticket
}

func (m *memTickets) Create(_ context.Context, userID int64, slug string, by *int64) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &model.Ticket{ID: int64(len(m.tickets) + 1), UserID: userID, WheelSlug: slug, GrantedBy: by, CreatedAt: time.Now()}
	m.tickets = append(m.tickets, t)
	return t, nil
}

func (m *memTickets) ConsumeOldest(_ context.Context, userID int64, slug string) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets {
		if t.UserID == userID && t.WheelSlug == slug && t.UsedAt == nil {
			now := time.Now()
			t.UsedAt = &now
			return t, nil
		}
	}
	return nil, repository.ErrNoTicket
}

func (m *memTickets) CountUnused(_ context.Context, userID int64, slug string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tickets {
		if t.UserID == userID && t.WheelSlug == slug && t.UsedAt == nil {
			n++
		}
	}
	return n, nil
}

func (m *memTickets) Summary(_ context.Context, userID int64) ([]model.TicketCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int64{}
	for _, t := range m.tickets {
		if t.UsedAt == nil && (userID == 0 || t.UserID == userID) {
			counts[t.WheelSlug]++
		}
	}
	var out []model.TicketCount
	for slug, n := range counts {
		out = append(out, model.TicketCount{WheelSlug: slug, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WheelSlug < out[j].WheelSlug })
	return out, nil
}

func (m *memTickets) Recent(_ context.Context, limit int) ([]*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Ticket
	for i := len(m.tickets) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.tickets[i])
	}
	return out, nil
}

type memSettings struct {
	s model.SiteSettings
}

func (m *memSettings) Get(context.Context) (*model.SiteSettings, error) {
	cp := m.s
	return &cp, nil
}

func (m *memSettings) SetMaintenance(_ context.Context, enabled bool, message string) error {
	m.s.MaintenanceMode = enabled
	if message != "" {
		m.s.MaintenanceMessage = message
	}
	return nil
}

func (m *memSettings) SetCooldown(_ context.Context, d time.Duration) error {
	m.s.JackpotCooldown = d
	return nil
}

type catalog struct {
	wheels    map[string]*wheel.Wheel
	reloadErr error
	reloads   int
}

func newCatalog(wheels ...*wheel.Wheel) *catalog {
	c := &catalog{wheels: make(map[string]*wheel.Wheel)}
	for _, w := range wheels {
		c.wheels[w.Slug] = w
	}
	return c
}

func (c *catalog) Get(slug string) (*wheel.Wheel, bool) {
	w, ok := c.wheels[slug]
	return w, ok
}

func (c *catalog) List() []*wheel.Wheel {
	var out []*wheel.Wheel
	for _, w := range c.wheels {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

func (c *catalog) Reload() (int, error) {
	if c.reloadErr != nil {
		return 0, c.reloadErr
	}
	c.reloads++
	return len(c.wheels), nil
}

var errDown = errors.New("storage down")

// testDispatcher registers three extension actions:
// mods.win records {"id": n}, mods.lose fails, mods.stuck wins but cannot be compensated.
func testDispatcher() *action.Dispatcher {
	r := action.NewRegistry()
	var mu sync.Mutex
	var n int64
	win := func(context.Context, action.API, *model.User, map[string]any) action.Outcome {
		mu.Lock()
		defer mu.Unlock()
		n++
		return action.Ok("You won", map[string]any{"id": n})
	}
	undo := func(_ context.Context, _ action.API, _ *model.User, data map[string]any) action.Outcome {
		return action.Ok("Undone", data)
	}
	lose := func(context.Context, action.API, *model.User, map[string]any) action.Outcome {
		return action.Fail(action.KindTransient, "campus unavailable", nil)
	}
	stuck := func(context.Context, action.API, *model.User, map[string]any) action.Outcome {
		return action.Fail(action.KindClient, "cannot undo", nil)
	}
	r.MustRegister(action.NamespaceMods, "win", win, undo)
	r.MustRegister(action.NamespaceMods, "lose", lose, undo)
	r.MustRegister(action.NamespaceMods, "stuck", win, stuck)
	return action.NewDispatcher(r, actiontest.NewFakeAPI())
}

func testWheel(slug string, ticketOnly bool, functions ...string) *wheel.Wheel {
	w := &wheel.Wheel{Slug: slug, Title: slug, Version: slug + "_000000000000", TicketOnly: ticketOnly}
	for i, fn := range functions {
		w.Sectors = append(w.Sectors, model.Sector{
			Label:    string(rune('A' + i)),
			Color:    "#FFFFFF",
			Message:  "msg",
			Function: fn,
			Args:     map[string]any{},
		})
	}
	return w
}
