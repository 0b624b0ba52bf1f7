package hook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Stdout tokens of the hook process contract. The process receives the
// source id as its sole argument, exits 0 on success and prints exactly one
// of these.
const (
	tokenExists = "exists"
	tokenAdded  = "added"
)

// ScriptHook runs an external hook process with a bounded timeout.
type ScriptHook struct {
	command string
	timeout time.Duration
}

// NewScriptHook creates a hook around the given command. The command is
// executed directly (not through a shell) with the source id appended.
func NewScriptHook(command string, timeout time.Duration) *ScriptHook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ScriptHook{command: command, timeout: timeout}
}

// Invoke runs the hook process for sourceID and maps its result per the
// process contract: exit 0 + "exists" means already blocked, exit 0 +
// "added" means newly blocked, anything else is a failure.
func (h *ScriptHook) Invoke(ctx context.Context, sourceID string) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, h.command, sourceID)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return OutcomeFailed, fmt.Errorf("hook timed out after %s", h.timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return OutcomeFailed, fmt.Errorf("hook %s: %w", h.command, err)
		}
		return OutcomeFailed, fmt.Errorf("hook %s: %w: %s", h.command, err, msg)
	}

	switch strings.TrimSpace(stdout.String()) {
	case tokenExists:
		return OutcomeAlreadyBlocked, nil
	case tokenAdded:
		return OutcomeBlocked, nil
	default:
		return OutcomeFailed, fmt.Errorf("hook %s: unexpected output %q", h.command, strings.TrimSpace(stdout.String()))
	}
}
