package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"lucky-wheel/internal/model"
	"lucky-wheel/internal/repository"
)

const operator = int64(900)

type historyFixture struct {
	spin    *spinFixture
	history *HistoryService
	marks   *memMarks
}

func newHistoryFixture(fns ...string) *historyFixture {
	tester := *linked
	tester.TestMode = true
	sf := newSpinFixture(newMemUsers(&tester), testWheel("daily", false, fns...))
	marks := &memMarks{}
	return &historyFixture{
		spin:    sf,
		marks:   marks,
		history: NewHistoryService(sf.spins, marks, sf.users, testDispatcher(), nil),
	}
}

func (f *historyFixture) spinOnce(t *testing.T) *model.SpinRecord {
	t.Helper()
	res, err := f.spin.svc.Spin(context.Background(), linked.TelegramID, "daily")
	require.NoError(t, err)
	return res.Record
}

func TestCancelCompensatesAndFlags(t *testing.T) {
	f := newHistoryFixture("mods.win")
	rec := f.spinOnce(t)

	updated, out, err := f.history.Cancel(context.Background(), operator, rec.ID, "double payout")
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.True(t, updated.Cancelled)
	assert.Equal(t, operator, *updated.CancelledBy)
	assert.Equal(t, "double payout", *updated.CancellationReason)

	_, _, err = f.history.Cancel(context.Background(), operator, rec.ID, "again")
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestCancelRefusesFailedSpin(t *testing.T) {
	f := newHistoryFixture("mods.lose")
	rec := f.spinOnce(t)

	_, _, err := f.history.Cancel(context.Background(), operator, rec.ID, "")
	assert.ErrorIs(t, err, ErrNotCancellable)

	stored, _ := f.spin.spins.GetByID(context.Background(), rec.ID)
	assert.False(t, stored.Cancelled)
}

func TestCancelKeepsRecordWhenCompensationFails(t *testing.T) {
	f := newHistoryFixture("mods.stuck")
	rec := f.spinOnce(t)

	_, out, err := f.history.Cancel(context.Background(), operator, rec.ID, "")
	assert.ErrorIs(t, err, ErrCompensation)
	assert.False(t, out.Success())

	stored, _ := f.spin.spins.GetByID(context.Background(), rec.ID)
	assert.False(t, stored.Cancelled)
}

func TestCancelUnknownSpin(t *testing.T) {
	f := newHistoryFixture("mods.win")
	_, _, err := f.history.Cancel(context.Background(), operator, 404, "")
	assert.ErrorIs(t, err, repository.ErrSpinNotFound)
}

// TestCancelledImpliesSuccessProperty checks that whatever mix of spins and
// cancel attempts runs, a cancelled record is a successful one with data.
func TestCancelledImpliesSuccessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fns := rapid.SliceOfN(rapid.SampledFrom([]string{"mods.win", "mods.lose", "mods.stuck"}), 1, 6).Draw(t, "sectors")
		tester := *linked
		tester.TestMode = true
		sf := newSpinFixture(newMemUsers(&tester), testWheel("daily", false, fns...))
		history := NewHistoryService(sf.spins, &memMarks{}, sf.users, testDispatcher(), nil)
		ctx := context.Background()

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "spin") {
				if _, err := sf.svc.Spin(ctx, tester.TelegramID, "daily"); err != nil {
					t.Fatalf("spin: %v", err)
				}
				continue
			}
			id := rapid.Int64Range(1, int64(steps)).Draw(t, "cancel")
			_, _, _ = history.Cancel(ctx, operator, id, "prop")
		}

		for _, rec := range sf.spins.all() {
			if rec.Cancelled && (!rec.Success || len(rec.ResultData) == 0) {
				t.Fatalf("record %d cancelled with success=%v data=%v", rec.ID, rec.Success, rec.ResultData)
			}
		}
	})
}

func TestMark(t *testing.T) {
	f := newHistoryFixture("mods.win")
	rec := f.spinOnce(t)
	ctx := context.Background()

	_, err := f.history.Mark(ctx, operator, rec.ID, "  verified on campus  ")
	require.NoError(t, err)

	_, err = f.history.Mark(ctx, operator, rec.ID, strings.Repeat("é", MaxNoteLength+1))
	assert.ErrorIs(t, err, ErrNoteTooLong)

	got, marks, err := f.history.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	require.Len(t, marks, 1)
	assert.Equal(t, "verified on campus", marks[0].Note)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	f := newHistoryFixture("mods.win")
	f.spinOnce(t)

	recs, err := f.history.List(context.Background(), repository.SpinFilter{Status: model.SpinStatusActive})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = f.history.List(context.Background(), repository.SpinFilter{Status: "weird"})
	assert.Error(t, err)
}
