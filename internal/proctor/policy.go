package proctor

import "time"

// PolicyAction is what the session state machine must do after a browser
// violation has been counted.
type PolicyAction int

const (
	ActionNone PolicyAction = iota
	ActionPause
	ActionAutoSubmit
)

func (a PolicyAction) String() string {
	switch a {
	case ActionPause:
		return "pause"
	case ActionAutoSubmit:
		return "auto_submit"
	default:
		return "none"
	}
}

// AutoSubmitGrace is the delay between deciding to auto-submit and the
// terminal transition, leaving room for the final warning to reach the
// student before the session is frozen.
const AutoSubmitGrace = 2 * time.Second

// Policy decides escalation from the cumulative browser violation count.
// Face-sample violations never feed it.
type Policy interface {
	Decide(violationCount int) PolicyAction
}

// FixedPolicy pauses on the first violation and auto-submits when the count
// reaches SubmitAt. Kind is deliberately ignored past the count.
type FixedPolicy struct {
	PauseAt  int
	SubmitAt int
}

// Decide implements Policy.
func (p FixedPolicy) Decide(violationCount int) PolicyAction {
	switch {
	case violationCount >= p.SubmitAt:
		return ActionAutoSubmit
	case violationCount == p.PauseAt:
		return ActionPause
	default:
		return ActionNone
	}
}

// DefaultPolicy returns the fixed production policy: pause at the first
// browser violation, auto-submit at the third.
func DefaultPolicy() Policy {
	return FixedPolicy{PauseAt: 1, SubmitAt: 3}
}
