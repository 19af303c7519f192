// Package service provides business logic implementations.
package service

import (
	"errors"
	"fmt"
	"time"
)

// Common service errors.
var (
	ErrWheelNotFound     = errors.New("wheel not found")
	ErrNotLinked         = errors.New("account is not linked to a campus login")
	ErrNotEligible       = errors.New("not eligible to spin")
	ErrMaintenance       = errors.New("maintenance mode is on")
	ErrAlreadyCancelled  = errors.New("spin is already cancelled")
	ErrNotCancellable    = errors.New("spin cannot be cancelled")
	ErrCompensation      = errors.New("compensation failed")
	ErrNoteTooLong       = errors.New("note is too long")
	ErrNotTicketWheel    = errors.New("wheel does not use tickets")
	ErrInvalidRole       = errors.New("invalid role")
	ErrCampusUnavailable = errors.New("campus lookup failed")
	ErrCampusUnknown     = errors.New("unknown campus login")
	ErrInvalidCooldown   = errors.New("cooldown must not be negative")
	ErrSelfDemotion      = errors.New("admins cannot demote themselves")
)

// Reasons carried by EligibilityError.
const (
	ReasonNoTicket = "no ticket left"
	ReasonCooldown = "cooling down"
)

// EligibilityError explains a rejected spin. It matches ErrNotEligible.
type EligibilityError struct {
	Wheel     string
	Reason    string
	Remaining time.Duration
}

func (e *EligibilityError) Error() string {
	if e.Remaining > 0 {
		return fmt.Sprintf("%s: %s, next spin in %s", e.Wheel, e.Reason, e.Remaining.Round(time.Second))
	}
	return fmt.Sprintf("%s: %s", e.Wheel, e.Reason)
}

func (e *EligibilityError) Unwrap() error { return ErrNotEligible }
