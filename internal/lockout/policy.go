// Package lockout holds the pure decision logic for account lockout.
//
// An account is either Open or Locked. The policy never touches storage; the
// caller persists whatever transition it reports.
package lockout

import "fmt"

// State is the lockout state of a single account.
type State int

const (
	Open State = iota
	Locked
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Locked:
		return "locked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateOf maps the persisted is_locked flag to a State.
func StateOf(isLocked bool) State {
	if isLocked {
		return Locked
	}
	return Open
}

// ShouldLock reports whether failedAttempts has reached threshold.
func ShouldLock(failedAttempts, threshold int) bool {
	return failedAttempts >= threshold
}

// Policy is a lockout policy with a fixed threshold.
type Policy struct {
	threshold int
}

// NewPolicy returns a Policy that locks after threshold consecutive failures.
func NewPolicy(threshold int) (Policy, error) {
	if threshold <= 0 {
		return Policy{}, fmt.Errorf("lockout threshold must be positive, got %d", threshold)
	}
	return Policy{threshold: threshold}, nil
}

// Threshold returns the configured number of failures that triggers a lock.
func (p Policy) Threshold() int {
	return p.threshold
}

// ShouldLock reports whether failedAttempts has reached the policy threshold.
func (p Policy) ShouldLock(failedAttempts int) bool {
	return ShouldLock(failedAttempts, p.threshold)
}

// Current returns the state of a stored account. A counter at or past the
// threshold keeps the account Locked even if the flag was never written.
func (p Policy) Current(isLocked bool, failedAttempts int) State {
	if isLocked || p.ShouldLock(failedAttempts) {
		return Locked
	}
	return Open
}

// AfterFailure returns the state an account must move to once a failed
// attempt has been recorded and the counter reads failedAttempts.
// A Locked account stays Locked.
func (p Policy) AfterFailure(current State, failedAttempts int) State {
	if current == Locked || p.ShouldLock(failedAttempts) {
		return Locked
	}
	return Open
}

// Remaining returns how many more failures an Open account can absorb
// before it locks. It never returns a negative number.
func (p Policy) Remaining(failedAttempts int) int {
	if n := p.threshold - failedAttempts; n > 0 {
		return n
	}
	return 0
}
