package engine

import (
	"time"
)

// Source states as surfaced by the API.
const (
	StateMonitoring   = "MONITORING"
	StateGracePending = "GRACE_PENDING"
	StateBlocked      = "BLOCKED"
)

// observation is one scored window. The suspicious flag is frozen against
// the threshold active at insertion time; a threshold reload never rejudges
// entries already in the window.
type observation struct {
	windowIndex int64
	score       float64
	suspicious  bool
}

// sourceState is the per-source decision record. It is owned by exactly one
// shard; all access goes through the shard lock.
type sourceState struct {
	sourceID   string
	recent     []observation
	suspicious int // count of suspicious entries in recent
	lastBlock  time.Time
	blocked    bool
	lastSeen   time.Time
}

func newSourceState(sourceID string) *sourceState {
	return &sourceState{sourceID: sourceID}
}

// observe appends a scored window and trims to capacity, maintaining the
// suspicious count incrementally. A capacity smaller than the current length
// (after a window reload shrink) trims as many oldest entries as needed.
func (s *sourceState) observe(windowIndex int64, score, threshold float64, capacity int) bool {
	obs := observation{
		windowIndex: windowIndex,
		score:       score,
		suspicious:  score >= threshold,
	}
	s.recent = append(s.recent, obs)
	if obs.suspicious {
		s.suspicious++
	}

	for len(s.recent) > capacity {
		if s.recent[0].suspicious {
			s.suspicious--
		}
		s.recent = s.recent[1:]
	}

	return obs.suspicious
}

// state reports the source's position in the decision state machine.
func (s *sourceState) state() string {
	switch {
	case s.blocked:
		return StateBlocked
	case s.suspicious > 0:
		return StateGracePending
	default:
		return StateMonitoring
	}
}
