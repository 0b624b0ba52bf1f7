// Package hook abstracts the OS blocking mechanism behind a capability
// interface so the decision engine never branches on platform.
package hook

import (
	"context"
)

// Outcome is the tri-state result of a block attempt.
type Outcome string

const (
	// OutcomeAlreadyBlocked means the firewall already had a rule for the source.
	OutcomeAlreadyBlocked Outcome = "already_blocked"
	// OutcomeBlocked means a new rule was added.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeFailed covers every failure mode: non-zero exit, timeout,
	// missing binary, unexpected output.
	OutcomeFailed Outcome = "failed"
)

// Hook performs the actual firewall change for one source. Implementations
// must be idempotent: invoking for an already-blocked source returns
// OutcomeAlreadyBlocked rather than erroring. All failure modes are
// normalized to OutcomeFailed; the accompanying error only carries detail
// for logging.
type Hook interface {
	Invoke(ctx context.Context, sourceID string) (Outcome, error)
}

// Func adapts a function to the Hook interface, mainly for tests.
type Func func(ctx context.Context, sourceID string) (Outcome, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, sourceID string) (Outcome, error) {
	return f(ctx, sourceID)
}
