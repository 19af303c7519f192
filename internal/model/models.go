// Package model defines the data models for the reward wheel.
package model

import "time"

// Roles a user can hold.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Permissions checked by the operator surface.
const (
	PermHistory       = "history"
	PermHistoryMark   = "history_mark"
	PermHistoryCancel = "history_cancel"
	PermTickets       = "tickets"
	PermWheels        = "wheels"
	PermUsers         = "users"
	PermSettings      = "settings"
)

// moderatorPerms are granted to moderators; admins hold every permission.
var moderatorPerms = map[string]bool{
	PermHistory:     true,
	PermHistoryMark: true,
}

// User is a chat account, optionally linked to a campus login.
type User struct {
	TelegramID int64      `db:"telegram_id"`
	Username   string     `db:"username"`
	Login      string     `db:"login"`
	IntraID    int64      `db:"intra_id"`
	Role       string     `db:"role"`
	TestMode   bool       `db:"test_mode"`
	LastSpin   *time.Time `db:"last_spin"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// IsLinked reports whether the account is bound to a campus identity.
func (u *User) IsLinked() bool {
	return u != nil && u.Login != "" && u.IntraID > 0
}

// IsModerator reports whether the user is a moderator or an admin.
func (u *User) IsModerator() bool {
	return u != nil && (u.Role == RoleModerator || u.Role == RoleAdmin)
}

// HasPerm checks a permission against the user's role.
func (u *User) HasPerm(perm string) bool {
	if u == nil {
		return false
	}
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleModerator:
		return moderatorPerms[perm]
	default:
		return false
	}
}

// ValidRole reports whether role is a known role name.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleModerator || role == RoleAdmin
}

// Sector is one wedge of a wheel. Sectors are immutable once a wheel version is loaded.
type Sector struct {
	Label    string         `json:"label" yaml:"label"`
	Color    string         `json:"color" yaml:"color"`
	Message  string         `json:"message" yaml:"message"`
	Function string         `json:"function" yaml:"function"`
	Args     map[string]any `json:"args" yaml:"args"`
}

// SpinRecord is the audit entry written once per spin. Only the cancellation fields change afterwards.
type SpinRecord struct {
	ID                 int64          `db:"id"`
	CreatedAt          time.Time      `db:"created_at"`
	WheelSlug          string         `db:"wheel_slug"`
	WheelVersion       string         `db:"wheel_version"`
	SectorLabel        string         `db:"sector_label"`
	Color              string         `db:"color"`
	UserID             int64          `db:"user_id"`
	Function           string         `db:"function_ref"`
	ResultMessage      string         `db:"result_message"`
	ResultData         map[string]any `db:"result_data"`
	Success            bool           `db:"success"`
	Cancelled          bool           `db:"cancelled"`
	CancelledAt        *time.Time     `db:"cancelled_at"`
	CancelledBy        *int64         `db:"cancelled_by"`
	CancellationReason *string        `db:"cancellation_reason"`
}

// CanBeCancelled reports whether the recorded side effect may be compensated.
func (r *SpinRecord) CanBeCancelled() bool {
	return r != nil && !r.Cancelled && r.Success && r.Function != "" && len(r.ResultData) > 0
}

// HistoryMark is a moderator validation note attached to a spin record.
type HistoryMark struct {
	SpinID   int64     `db:"spin_id"`
	MarkedBy int64     `db:"marked_by"`
	Note     string    `db:"note"`
	MarkedAt time.Time `db:"marked_at"`
}

// Ticket is a single-use eligibility grant for one wheel.
type Ticket struct {
	ID        int64      `db:"id"`
	UserID    int64      `db:"user_id"`
	WheelSlug string     `db:"wheel_slug"`
	GrantedBy *int64     `db:"granted_by"`
	CreatedAt time.Time  `db:"created_at"`
	UsedAt    *time.Time `db:"used_at"`
}

// TicketCount is the number of unused tickets for a wheel.
type TicketCount struct {
	WheelSlug string `db:"wheel_slug"`
	Count     int64  `db:"count"`
}

// UniqueOwnership records the single local holder of a unique campus group.
type UniqueOwnership struct {
	GroupID         int64     `db:"group_id"`
	OwnerUserID     int64     `db:"owner_user_id"`
	OwnerIntraID    int64     `db:"owner_intra_id"`
	PreviousOwnerID *int64    `db:"previous_user_id"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// SiteSettings holds operator-controlled runtime settings.
type SiteSettings struct {
	MaintenanceMode    bool          `db:"maintenance_mode"`
	MaintenanceMessage string        `db:"maintenance_message"`
	JackpotCooldown    time.Duration `db:"jackpot_cooldown"`
}

// Spin history status filters.
const (
	SpinStatusAll       = ""
	SpinStatusCancelled = "cancelled"
	SpinStatusActive    = "active"
	SpinStatusFailed    = "failed"
)
