package builtins

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/action/actiontest"
	"lucky-wheel/internal/intra"
)

const testGroup = 478

func grantReply(recordID, intraID float64) func(any) intra.Result {
	return func(any) intra.Result {
		return actiontest.OK(map[string]any{
			"id":      recordID,
			"group":   map[string]any{"id": float64(testGroup), "name": "Blessed"},
			"user_id": intraID,
		})
	}
}

func TestUniqueGroupFirstGrant(t *testing.T) {
	h := newHarness(t)
	h.api.Handle(http.MethodPost, "/v2/groups_users", grantReply(27422, 101))

	out := h.run(alice, "builtins.unique_group", map[string]any{"group_id": testGroup})

	require.True(t, out.Success(), out.Message)
	assert.Equal(t, 27422.0, out.Data["id"])
	assert.Equal(t, int64(testGroup), out.Data["group_id"])

	row, err := h.owners.Get(context.Background(), testGroup)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, alice.TelegramID, row.OwnerUserID)
	assert.Equal(t, alice.IntraID, row.OwnerIntraID)
	assert.Nil(t, row.PreviousOwnerID)
}

func TestUniqueGroupIsIdempotentForCurrentOwner(t *testing.T) {
	h := newHarness(t)
	h.api.Handle(http.MethodPost, "/v2/groups_users", grantReply(1, 101))

	first := h.run(alice, "builtins.unique_group", map[string]any{"group_id": testGroup})
	second := h.run(alice, "builtins.unique_group", map[string]any{"group_id": testGroup})

	require.True(t, first.Success())
	require.True(t, second.Success())
	assert.Empty(t, second.Data)
	assert.Equal(t, 1, h.api.CallsTo(http.MethodPost, "/v2/groups_users"))
}

// TestUniqueGroupGrantsAtMostOnceProperty checks that any run of repeated
// executes by the same user issues at most one external grant.
func TestUniqueGroupGrantsAtMostOnceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := &harness{api: actiontest.NewFakeAPI(), owners: newMemOwners(), tickets: newMemTickets()}
		r := action.NewRegistry()
		if err := Register(r, Deps{Owners: h.owners, Tickets: h.tickets, Wheels: staticWheels{}}); err != nil {
			t.Fatal(err)
		}
		h.d = action.NewDispatcher(r, h.api)
		h.api.Handle(http.MethodPost, "/v2/groups_users", grantReply(5, 101))

		runs := rapid.IntRange(1, 10).Draw(t, "runs")
		for i := 0; i < runs; i++ {
			if out := h.run(alice, "builtins.unique_group", map[string]any{"group_id": testGroup}); !out.Success() {
				t.Fatalf("run %d failed: %s", i, out.Message)
			}
		}
		if n := h.api.CallsTo(http.MethodPost, "/v2/groups_users"); n != 1 {
			t.Fatalf("expected exactly one grant, got %d", n)
		}
	})
}

func TestUniqueGroupSkipsRevokeWhenPreviousOwnerLostIt(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.owners.Upsert(context.Background(), testGroup, alice.TelegramID, alice.IntraID, nil))

	// Alice's campus groups no longer include the unique group.
	h.api.ReplyList(http.MethodGet, "/v2/users/101/groups_users",
		map[string]any{"id": 11.0, "group": map[string]any{"id": 999.0}})
	h.api.Handle(http.MethodPost, "/v2/groups_users", grantReply(30000, 202))

	out := h.run(bob, "builtins.unique_group", map[string]any{"group_id": testGroup})

	require.True(t, out.Success(), out.Message)
	for _, c := range h.api.Calls() {
		assert.NotEqual(t, http.MethodDelete, c.Method, "no revoke call expected")
	}
	assert.Equal(t, 1, h.api.CallsTo(http.MethodPost, "/v2/groups_users"))

	row, err := h.owners.Get(context.Background(), testGroup)
	require.NoError(t, err)
	assert.Equal(t, bob.TelegramID, row.OwnerUserID)
	require.NotNil(t, row.PreviousOwnerID)
	assert.Equal(t, alice.TelegramID, *row.PreviousOwnerID)
}

func TestUniqueGroupRevokesFromPreviousOwner(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.owners.Upsert(context.Background(), testGroup, alice.TelegramID, alice.IntraID, nil))

	h.api.ReplyList(http.MethodGet, "/v2/users/101/groups_users",
		map[string]any{"id": 12.0, "group_id": float64(testGroup)})
	h.api.Reply(http.MethodDelete, "/v2/groups_users/12", nil)
	h.api.Handle(http.MethodPost, "/v2/groups_users", grantReply(30001, 202))

	out := h.run(bob, "builtins.unique_group", map[string]any{"group_id": testGroup})

	require.True(t, out.Success(), out.Message)
	assert.Equal(t, 1, h.api.CallsTo(http.MethodDelete, "/v2/groups_users/12"))
	calls := h.api.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, http.MethodDelete, calls[1].Method, "revoke precedes grant")
	assert.Equal(t, http.MethodPost, calls[2].Method)
}

func TestUniqueGroupRevokeFailureAbortsTransfer(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.owners.Upsert(context.Background(), testGroup, alice.TelegramID, alice.IntraID, nil))
	h.api.ReplyList(http.MethodGet, "/v2/users/101/groups_users",
		map[string]any{"id": 12.0, "group_id": float64(testGroup)})
	h.api.Fail(http.MethodDelete, "/v2/groups_users/12", http.StatusServiceUnavailable)

	out := h.run(bob, "builtins.unique_group", map[string]any{"group_id": testGroup})

	assert.False(t, out.Success())
	assert.Equal(t, 0, h.api.CallsTo(http.MethodPost, "/v2/groups_users"))
	row, _ := h.owners.Get(context.Background(), testGroup)
	assert.Equal(t, alice.TelegramID, row.OwnerUserID)
}

func TestUniqueGroupGrantFailureKeepsOwnership(t *testing.T) {
	h := newHarness(t)
	h.api.Fail(http.MethodPost, "/v2/groups_users", http.StatusForbidden)

	out := h.run(alice, "builtins.unique_group", map[string]any{"group_id": testGroup})

	assert.Equal(t, action.KindClient, out.Kind)
	row, _ := h.owners.Get(context.Background(), testGroup)
	assert.Nil(t, row)
}

func TestUniqueGroupUpsertFailureStillCancellable(t *testing.T) {
	h := newHarness(t)
	h.owners.upsertErr = errors.New("db down")
	h.api.Handle(http.MethodPost, "/v2/groups_users", grantReply(40, 101))

	out := h.run(alice, "builtins.unique_group", map[string]any{"group_id": testGroup})

	require.True(t, out.Success())
	assert.Contains(t, out.Data["ownership_warning"], "db down")
	assert.Equal(t, 40.0, out.Data["id"])
}

func TestUniqueGroupCompensate(t *testing.T) {
	h := newHarness(t)
	h.api.Handle(http.MethodPost, "/v2/groups_users", grantReply(27422, 101))
	out := h.run(alice, "builtins.unique_group", map[string]any{"group_id": testGroup})
	require.True(t, out.Success())

	h.api.ReplyList(http.MethodGet, "/v2/users/101/groups_users",
		map[string]any{"id": 27422.0, "group": map[string]any{"id": float64(testGroup)}})
	h.api.Reply(http.MethodDelete, "/v2/groups_users/27422", nil)

	undo := h.cancel(alice, "builtins.unique_group", out.Data)

	require.True(t, undo.Success(), undo.Message)
	assert.Equal(t, true, undo.Data["ownership_cleanup"])
	row, _ := h.owners.Get(context.Background(), testGroup)
	assert.Nil(t, row, "compensation does not restore a previous owner")
}

func TestUniqueGroupCompensateWhenAlreadyGone(t *testing.T) {
	h := newHarness(t)
	h.api.ReplyList(http.MethodGet, "/v2/users/101/groups_users")

	undo := h.cancel(alice, "builtins.unique_group", map[string]any{
		"id":    27422.0,
		"group": map[string]any{"id": float64(testGroup)},
	})

	require.True(t, undo.Success())
	assert.Empty(t, undo.Data)
	assert.Equal(t, 0, h.api.CallsTo(http.MethodDelete, "/v2/groups_users/27422"))
}

func TestUniqueGroupCompensateKeepsSupersededOwnership(t *testing.T) {
	h := newHarness(t)
	// Bob won the group after Alice; Alice's old grant is still listed on the campus.
	require.NoError(t, h.owners.Upsert(context.Background(), testGroup, bob.TelegramID, bob.IntraID, &alice.TelegramID))
	h.api.ReplyList(http.MethodGet, "/v2/users/101/groups_users",
		map[string]any{"id": 500.0, "group_id": float64(testGroup)})
	h.api.Reply(http.MethodDelete, "/v2/groups_users/500", nil)

	undo := h.cancel(alice, "builtins.unique_group", map[string]any{"id": 500.0, "group_id": float64(testGroup)})

	require.True(t, undo.Success(), undo.Message)
	assert.Equal(t, false, undo.Data["ownership_cleanup"])
	row, _ := h.owners.Get(context.Background(), testGroup)
	require.NotNil(t, row)
	assert.Equal(t, bob.TelegramID, row.OwnerUserID)
}

func TestUniqueGroupCompensateRejectsIncompleteData(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, action.KindInvalid, h.cancel(alice, "builtins.unique_group", map[string]any{}).Kind)
	assert.Equal(t, action.KindInvalid, h.cancel(alice, "builtins.unique_group", map[string]any{"id": 1.0}).Kind)
	assert.Empty(t, h.api.Calls())
}
