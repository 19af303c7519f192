package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/model"
)

// AccountService handles users, campus links, roles and test mode.
type AccountService struct {
	users  UserStore
	api    action.API
	admins map[int64]bool
}

// NewAccountService creates a new AccountService. adminIDs are promoted to admin on first contact.
func NewAccountService(users UserStore, api action.API, adminIDs []int64) *AccountService {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &AccountService{users: users, api: api, admins: admins}
}

// EnsureUser ensures a user exists, creating one if necessary.
// Returns the user and whether it was newly created.
func (s *AccountService) EnsureUser(ctx context.Context, telegramID int64, username string) (*model.User, bool, error) {
	user, created, err := s.users.GetOrCreate(ctx, telegramID, username)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	if !created && user.Username != username && username != "" {
		if err := s.users.UpdateUsername(ctx, telegramID, username); err != nil {
			log.Warn().Err(err).Int64("user_id", telegramID).Msg("Failed to update username")
		}
		user.Username = username
	}

	if s.admins[telegramID] && user.Role != model.RoleAdmin {
		if err := s.users.SetRole(ctx, telegramID, model.RoleAdmin); err != nil {
			return nil, false, fmt.Errorf("failed to bootstrap admin: %w", err)
		}
		user.Role = model.RoleAdmin
		log.Info().Int64("user_id", telegramID).Msg("Bootstrapped admin")
	}

	return user, created, nil
}

// GetUser retrieves a user by their Telegram ID.
func (s *AccountService) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.users.GetByID(ctx, telegramID)
}

// Link binds a user to a campus login after resolving it on the campus API.
func (s *AccountService) Link(ctx context.Context, operatorID, telegramID int64, login string) (*model.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return nil, ErrCampusUnknown
	}

	res := s.api.Get(ctx, "/v2/users/"+url.PathEscape(login))
	if !res.OK {
		if res.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrCampusUnknown, login)
		}
		return nil, fmt.Errorf("%w: %s", ErrCampusUnavailable, res.Message)
	}
	intraID, err := action.IntArg(res.Body, "id", 0)
	if err != nil || intraID <= 0 {
		return nil, fmt.Errorf("%w: campus user %s has no id", ErrCampusUnavailable, login)
	}
	if l := action.StringArg(res.Body, "login", ""); l != "" {
		login = l
	}

	user, err := s.users.Link(ctx, telegramID, login, intraID)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int64("operator_id", operatorID).
		Str("operation", "link").
		Int64("user_id", telegramID).
		Str("login", login).
		Int64("intra_id", intraID).
		Msg("User linked")
	return user, nil
}

// SetRole changes a user's role.
func (s *AccountService) SetRole(ctx context.Context, operatorID, telegramID int64, role string) error {
	if !model.ValidRole(role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if operatorID == telegramID && role != model.RoleAdmin {
		return ErrSelfDemotion
	}
	if err := s.users.SetRole(ctx, telegramID, role); err != nil {
		return err
	}
	log.Info().
		Int64("operator_id", operatorID).
		Str("operation", "role").
		Int64("user_id", telegramID).
		Str("role", role).
		Msg("Role changed")
	return nil
}

// SetTestMode toggles the gate bypass for a user.
func (s *AccountService) SetTestMode(ctx context.Context, operatorID, telegramID int64, enabled bool) error {
	if err := s.users.SetTestMode(ctx, telegramID, enabled); err != nil {
		return err
	}
	log.Info().
		Int64("operator_id", operatorID).
		Str("operation", "test_mode").
		Int64("user_id", telegramID).
		Bool("enabled", enabled).
		Msg("Test mode changed")
	return nil
}

// Staff lists moderators and admins.
func (s *AccountService) Staff(ctx context.Context) ([]*model.User, error) {
	return s.users.ListStaff(ctx)
}
