// Package lockout is the failed-login state machine.
//
// An account is Unlocked (any failure count, no lock) or Locked (LockedUntil
// in the future). The package is pure: it computes the next state and leaves
// persistence to the caller, which must apply Fail inside an atomic
// read-modify-write so concurrent failures are never under-counted.
package lockout

import (
	"errors"
	"time"
)

const (
	DefaultThreshold = 5
	DefaultDuration  = 2 * time.Hour
)

// Policy holds the lock threshold and lock length.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultPolicy locks for two hours after five consecutive failures.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, Duration: DefaultDuration}
}

func (p Policy) Validate() error {
	if p.Threshold < 1 {
		return errors.New("lockout threshold must be >= 1")
	}
	if p.Duration <= 0 {
		return errors.New("lockout duration must be > 0")
	}
	return nil
}

// State is the per-account lockout data. A zero LockedUntil means no lock.
type State struct {
	Failures    int
	LockedUntil time.Time
}

// Locked reports whether the lock is still in force at now.
func (s State) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// Outcome describes what a failed attempt did.
type Outcome uint8

const (
	// OutcomeCounted means the failure was recorded and the account is unlocked.
	OutcomeCounted Outcome = iota
	// OutcomeLocked means this failure reached the threshold and locked the account.
	OutcomeLocked
	// OutcomeRejected means the account was already locked; nothing changed.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCounted:
		return "counted"
	case OutcomeLocked:
		return "locked"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Fail applies one failed password verification at now.
//
// An elapsed lock is cleared first and the attempt counts as the first
// failure of a fresh window.
func (p Policy) Fail(s State, now time.Time) (State, Outcome) {
	if s.Locked(now) {
		return s, OutcomeRejected
	}

	if !s.LockedUntil.IsZero() {
		s = State{}
	}

	s.Failures++
	if s.Failures >= p.Threshold {
		s.LockedUntil = now.Add(p.Duration)
		return s, OutcomeLocked
	}
	return s, OutcomeCounted
}

// Succeed applies a successful verification. Callers must have checked
// Locked first; a correct password never unlocks an unexpired lock.
func (p Policy) Succeed(State) State {
	return State{}
}

// Remaining returns how long the lock still holds, or zero.
func (s State) Remaining(now time.Time) time.Duration {
	if !s.Locked(now) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}
