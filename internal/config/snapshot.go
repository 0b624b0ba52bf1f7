package config

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// HookSelector picks the platform blocking mechanism.
type HookSelector string

const (
	HookPosix   HookSelector = "posix"
	HookWindows HookSelector = "windows"
)

var (
	ErrGraceNegative    = errors.New("grace must be >= 0")
	ErrWindowTooSmall   = errors.New("window must be >= 1")
	ErrCooldownNegative = errors.New("cooldown_sec must be >= 0")
	ErrUnknownHook      = errors.New("hook must be \"posix\" or \"windows\"")
)

// Snapshot is one immutable set of decision parameters. The engine reads a
// whole snapshot per event; reloads publish a fully-built replacement, so a
// decision is never computed from a mix of old and new values.
type Snapshot struct {
	// Threshold is the score at or above which a window counts as suspicious.
	Threshold float64 `yaml:"threshold"`
	// Grace is how many suspicious windows within Window are required
	// before blocking. Zero means the first suspicious window blocks.
	Grace int `yaml:"grace"`
	// Window is the size of the sliding window of recent observations.
	Window int `yaml:"window"`
	// CooldownSec is the minimum seconds between block attempts per source.
	CooldownSec float64 `yaml:"cooldown_sec"`
	// InstantBlock is the score that triggers a block immediately,
	// bypassing grace.
	InstantBlock float64 `yaml:"instant_block"`
	// DryRun computes and logs decisions without invoking the hook.
	DryRun bool `yaml:"dry_run"`
	// Hook selects the platform blocking mechanism.
	Hook HookSelector `yaml:"hook"`
}

// DefaultSnapshot returns the documented defaults. DryRun defaults to true
// so a fresh install never edits the firewall before the policy has been
// explicitly tuned and armed.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Threshold:    0.70,
		Grace:        2,
		Window:       5,
		CooldownSec:  5,
		InstantBlock: 0.95,
		DryRun:       true,
		Hook:         HookPosix,
	}
}

// Validate checks structural constraints. InstantBlock below Threshold is
// legal (the two triggers are independent); callers may want to warn on it.
func (s Snapshot) Validate() error {
	if s.Grace < 0 {
		return ErrGraceNegative
	}
	if s.Window < 1 {
		return ErrWindowTooSmall
	}
	if s.CooldownSec < 0 {
		return ErrCooldownNegative
	}
	if s.Hook != HookPosix && s.Hook != HookWindows {
		return ErrUnknownHook
	}
	return nil
}

// Cooldown returns the cooldown as a duration.
func (s Snapshot) Cooldown() time.Duration {
	return time.Duration(s.CooldownSec * float64(time.Second))
}

// ParseSnapshot reads a decision policy document. Recognized keys live under
// the top-level "decision" section; unknown keys are ignored and missing
// keys keep their documented defaults.
func ParseSnapshot(data []byte) (Snapshot, error) {
	doc := struct {
		Decision Snapshot `yaml:"decision"`
	}{Decision: DefaultSnapshot()}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("parse decision config: %w", err)
	}
	if err := doc.Decision.Validate(); err != nil {
		return Snapshot{}, err
	}
	return doc.Decision, nil
}

// Store holds the active snapshot behind an atomic pointer. Readers never
// lock; Replace publishes a fully-built value or nothing at all.
type Store struct {
	cur atomic.Pointer[Snapshot]
}

// NewStore creates a store seeded with initial. The initial value is trusted
// to be valid; use Replace for anything operator-supplied.
func NewStore(initial Snapshot) *Store {
	st := &Store{}
	st.cur.Store(&initial)
	return st
}

// Current returns the active snapshot. Never blocks, never returns a torn
// value.
func (st *Store) Current() Snapshot {
	return *st.cur.Load()
}

// Replace validates next and swaps it in. On validation failure the previous
// snapshot stays active, so a bad config edit never disables protection.
func (st *Store) Replace(next Snapshot) error {
	if err := next.Validate(); err != nil {
		return err
	}
	st.cur.Store(&next)
	return nil
}
