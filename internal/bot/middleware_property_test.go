package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
	tele "gopkg.in/telebot.v3"

	"lucky-wheel/internal/config"
	"lucky-wheel/internal/handler"
	"lucky-wheel/internal/model"
)

// fakeContext implements the parts of tele.Context the middleware touches.
type fakeContext struct {
	tele.Context
	sender  *tele.User
	chat    *tele.Chat
	text    string
	store   map[string]any
	replies []string
}

func newFakeContext(userID, chatID int64, chatType tele.ChatType) *fakeContext {
	return &fakeContext{
		sender: &tele.User{ID: userID, Username: "alice"},
		chat:   &tele.Chat{ID: chatID, Type: chatType},
		text:   "/spin daily",
		store:  map[string]any{},
	}
}

func (f *fakeContext) Sender() *tele.User { return f.sender }
func (f *fakeContext) Chat() *tele.Chat   { return f.chat }
func (f *fakeContext) Text() string       { return f.text }
func (f *fakeContext) Get(key string) any { return f.store[key] }
func (f *fakeContext) Set(key string, v any) {
	f.store[key] = v
}

func (f *fakeContext) Reply(what any, _ ...any) error {
	s, _ := what.(string)
	f.replies = append(f.replies, s)
	return nil
}

// run passes c through mw and reports whether the inner handler ran.
func run(mw tele.MiddlewareFunc, c tele.Context) (bool, error) {
	called := false
	err := mw(func(tele.Context) error {
		called = true
		return nil
	})(c)
	return called, err
}

func drawIDs(t *rapid.T, label string) []int64 {
	n := rapid.IntRange(1, 10).Draw(t, label+"_count")
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = rapid.Int64Range(1, 1_000_000_000).Draw(t, label)
	}
	return ids
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// TestAdminListProperty checks that IsAdmin holds exactly for listed ids.
func TestAdminListProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		admins := drawIDs(t, "admin")
		cfg := &config.Config{Admin: config.AdminConfig{IDs: admins}}

		known := admins[rapid.IntRange(0, len(admins)-1).Draw(t, "pick")]
		if !cfg.IsAdmin(known) {
			t.Fatalf("listed admin %d not recognised", known)
		}

		userID := rapid.Int64Range(1, 1_000_000_000).Draw(t, "user")
		if cfg.IsAdmin(userID) != contains(admins, userID) {
			t.Fatalf("IsAdmin(%d) disagrees with list %v", userID, admins)
		}
	})
}

// TestWhitelistProperty checks IsChatAllowed against the configured list.
func TestWhitelistProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chats := drawIDs(t, "chat")
		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: chats}}

		chatID := rapid.Int64Range(-1_000_000_000, 1_000_000_000).Draw(t, "probe")
		if cfg.IsChatAllowed(chatID) != contains(chats, chatID) {
			t.Fatalf("IsChatAllowed(%d) disagrees with list %v", chatID, chats)
		}
	})
}

func TestEmptyWhitelistAllowsAllChatsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := &config.Config{}
		chatID := rapid.Int64().Draw(t, "chat")
		if !cfg.IsChatAllowed(chatID) {
			t.Fatalf("empty whitelist rejected chat %d", chatID)
		}
	})
}

// TestRolePermissionProperty checks the role to permission matrix.
func TestRolePermissionProperty(t *testing.T) {
	perms := []string{
		model.PermHistory, model.PermHistoryMark, model.PermHistoryCancel,
		model.PermTickets, model.PermWheels, model.PermUsers, model.PermSettings,
	}
	rapid.Check(t, func(t *rapid.T) {
		role := rapid.SampledFrom([]string{model.RoleUser, model.RoleModerator, model.RoleAdmin}).Draw(t, "role")
		perm := rapid.SampledFrom(perms).Draw(t, "perm")
		u := &model.User{TelegramID: 1, Role: role}

		var want bool
		switch role {
		case model.RoleAdmin:
			want = true
		case model.RoleModerator:
			want = perm == model.PermHistory || perm == model.PermHistoryMark
		}
		if u.HasPerm(perm) != want {
			t.Fatalf("%s.HasPerm(%s) = %v, want %v", role, perm, !want, want)
		}
	})
}

func TestWhitelistMiddleware(t *testing.T) {
	const group, other = -100, -200
	cfg := &config.Config{
		Admin:     config.AdminConfig{IDs: []int64{99}},
		Whitelist: config.WhitelistConfig{Chats: []int64{group}},
	}
	mw := WhitelistMiddleware(cfg)

	ok, _ := run(mw, newFakeContext(1, other, tele.ChatGroup))
	assert.False(t, ok, "foreign group")

	ok, _ = run(mw, newFakeContext(1, 1, tele.ChatPrivate))
	assert.False(t, ok, "private chat before being seen in the group")

	ok, _ = run(mw, newFakeContext(1, group, tele.ChatSuperGroup))
	assert.True(t, ok, "whitelisted group")

	ok, _ = run(mw, newFakeContext(1, 1, tele.ChatPrivate))
	assert.True(t, ok, "private chat after being seen in the group")

	ok, _ = run(mw, newFakeContext(99, 99, tele.ChatPrivate))
	assert.True(t, ok, "bootstrap admin in private")
}

type stubAccounts struct {
	user *model.User
	err  error
}

func (s *stubAccounts) EnsureUser(_ context.Context, id int64, username string) (*model.User, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	u := *s.user
	u.TelegramID, u.Username = id, username
	return &u, false, nil
}

func TestUserMiddlewareStoresUser(t *testing.T) {
	c := newFakeContext(7, 7, tele.ChatPrivate)
	ok, err := run(UserMiddleware(&stubAccounts{user: &model.User{Role: model.RoleUser}}), c)

	require.NoError(t, err)
	assert.True(t, ok)
	u := handler.CurrentUser(c)
	require.NotNil(t, u)
	assert.Equal(t, int64(7), u.TelegramID)
	assert.Equal(t, "alice", u.Username)
}

func TestUserMiddlewareReportsStorageError(t *testing.T) {
	c := newFakeContext(7, 7, tele.ChatPrivate)
	ok, err := run(UserMiddleware(&stubAccounts{err: errors.New("db down")}), c)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, c.replies, 1)
}

func TestPermissionMiddleware(t *testing.T) {
	tests := []struct {
		name string
		user *model.User
		perm string
		want bool
	}{
		{"no user", nil, model.PermHistory, false},
		{"user", &model.User{Role: model.RoleUser}, model.PermHistory, false},
		{"moderator history", &model.User{Role: model.RoleModerator}, model.PermHistory, true},
		{"moderator cancel", &model.User{Role: model.RoleModerator}, model.PermHistoryCancel, false},
		{"admin settings", &model.User{Role: model.RoleAdmin}, model.PermSettings, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeContext(1, 1, tele.ChatPrivate)
			if tt.user != nil {
				c.Set(handler.UserKey, tt.user)
			}
			ok, err := run(PermissionMiddleware(tt.perm), c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			if !tt.want {
				assert.Equal(t, []string{"❌ Permission denied"}, c.replies)
			}
		})
	}
}

type stubSettings struct{ s model.SiteSettings }

func (s *stubSettings) Get(context.Context) (*model.SiteSettings, error) {
	cp := s.s
	return &cp, nil
}

func TestMaintenanceMiddleware(t *testing.T) {
	settings := &stubSettings{s: model.SiteSettings{MaintenanceMode: true, MaintenanceMessage: "Back at noon"}}
	mw := MaintenanceMiddleware(settings)

	c := newFakeContext(1, 1, tele.ChatPrivate)
	c.Set(handler.UserKey, &model.User{Role: model.RoleUser})
	ok, _ := run(mw, c)
	assert.False(t, ok)
	assert.Equal(t, []string{"🛠 Back at noon"}, c.replies)

	staff := newFakeContext(2, 2, tele.ChatPrivate)
	staff.Set(handler.UserKey, &model.User{Role: model.RoleModerator})
	ok, _ = run(mw, staff)
	assert.True(t, ok)

	settings.s.MaintenanceMode = false
	c = newFakeContext(1, 1, tele.ChatPrivate)
	c.Set(handler.UserKey, &model.User{Role: model.RoleUser})
	ok, _ = run(mw, c)
	assert.True(t, ok)
}

func TestRecoveryMiddleware(t *testing.T) {
	c := newFakeContext(1, 1, tele.ChatPrivate)
	err := RecoveryMiddleware()(func(tele.Context) error { panic("boom") })(c)

	assert.NoError(t, err)
	assert.Len(t, c.replies, 1)
}
