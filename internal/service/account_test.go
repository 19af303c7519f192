package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lucky-wheel/internal/action/actiontest"
	"lucky-wheel/internal/model"
	"lucky-wheel/internal/repository"
)

func TestEnsureUserBootstrapsAdmins(t *testing.T) {
	users := newMemUsers()
	svc := NewAccountService(users, actiontest.NewFakeAPI(), []int64{7})
	ctx := context.Background()

	admin, created, err := svc.EnsureUser(ctx, 7, "root")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.RoleAdmin, admin.Role)

	user, created, err := svc.EnsureUser(ctx, 8, "guest")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.RoleUser, user.Role)

	renamed, created, err := svc.EnsureUser(ctx, 8, "guest2")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "guest2", renamed.Username)
}

func TestLink(t *testing.T) {
	api := actiontest.NewFakeAPI()
	api.Reply(http.MethodGet, "/v2/users/alice", map[string]any{"id": 101.0, "login": "alice"})
	api.Fail(http.MethodGet, "/v2/users/ghost", http.StatusNotFound)
	api.Fail(http.MethodGet, "/v2/users/flaky", http.StatusBadGateway)

	users := newMemUsers(&model.User{TelegramID: 1}, &model.User{TelegramID: 2})
	svc := NewAccountService(users, api, nil)
	ctx := context.Background()

	user, err := svc.Link(ctx, operator, 1, " Alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Login)
	assert.Equal(t, int64(101), user.IntraID)

	_, err = svc.Link(ctx, operator, 2, "alice")
	assert.ErrorIs(t, err, repository.ErrLoginTaken)

	_, err = svc.Link(ctx, operator, 2, "ghost")
	assert.ErrorIs(t, err, ErrCampusUnknown)

	_, err = svc.Link(ctx, operator, 2, "flaky")
	assert.ErrorIs(t, err, ErrCampusUnavailable)

	_, err = svc.Link(ctx, operator, 2, "  ")
	assert.ErrorIs(t, err, ErrCampusUnknown)
}

func TestRolesAndTestMode(t *testing.T) {
	users := newMemUsers(&model.User{TelegramID: operator, Role: model.RoleAdmin}, &model.User{TelegramID: 2})
	svc := NewAccountService(users, actiontest.NewFakeAPI(), nil)
	ctx := context.Background()

	require.NoError(t, svc.SetRole(ctx, operator, 2, model.RoleModerator))
	assert.ErrorIs(t, svc.SetRole(ctx, operator, 2, "overlord"), ErrInvalidRole)
	assert.ErrorIs(t, svc.SetRole(ctx, operator, operator, model.RoleUser), ErrSelfDemotion)

	staff, err := svc.Staff(ctx)
	require.NoError(t, err)
	assert.Len(t, staff, 2)

	require.NoError(t, svc.SetTestMode(ctx, operator, 2, true))
	u, _ := svc.GetUser(ctx, 2)
	assert.True(t, u.TestMode)
	assert.ErrorIs(t, svc.SetTestMode(ctx, operator, 3, true), repository.ErrUserNotFound)
}
