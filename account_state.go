package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

// AccountState is the lifecycle position of an account. Locked is tracked
// as a separate flag and does not take part in the lifecycle.
type AccountState string

const (
	AccountStateUnregistered AccountState = "unregistered"
	AccountStateInactive     AccountState = "registered_inactive"
	AccountStateActive       AccountState = "active"
)

const textCodeInvalidTransition = "INVALID_ACCOUNT_STATE_TRANSITION"

// ErrInvalidTransition is returned when a requested state change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryConflict).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeConflict)

var accountTransitions = map[AccountState]map[AccountState]struct{}{
	AccountStateUnregistered: {
		AccountStateInactive: {},
	},
	AccountStateInactive: {
		AccountStateActive: {},
	},
}

// CurrentAccountState derives the state of c. A nil credential is unregistered.
func CurrentAccountState(c *Credential) AccountState {
	switch {
	case c == nil:
		return AccountStateUnregistered
	case c.Enabled:
		return AccountStateActive
	default:
		return AccountStateInactive
	}
}

// CanTransition reports whether from may move to to
func CanTransition(from, to AccountState) bool {
	targets, ok := accountTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// TransitionAccount moves c to target, updating the persisted flag. Moving to
// the current state is a no-op and reports false.
func TransitionAccount(c *Credential, target AccountState) (bool, error) {
	from := CurrentAccountState(c)
	if from == target {
		return false, nil
	}

	if c == nil || !CanTransition(from, target) {
		return false, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"from": string(from),
			"to":   string(target),
		})
	}

	c.Enabled = target == AccountStateActive
	return true, nil
}
