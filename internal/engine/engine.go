// Package engine turns a stream of per-window attack scores into block
// decisions. Policy (threshold, grace, window, cooldown, instant block,
// dry run) comes from an atomically-swapped config snapshot; enforcement is
// delegated to a platform hook.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iotguard/guardd/internal/config"
	"github.com/iotguard/guardd/internal/hook"
	"github.com/iotguard/guardd/internal/logger"
	"github.com/iotguard/guardd/internal/metrics"
)

// ActionKind classifies the outcome of processing one event.
type ActionKind string

const (
	ActionNone           ActionKind = "none"
	ActionBlock          ActionKind = "block"
	ActionBlockedAlready ActionKind = "blocked_already"
	ActionFailed         ActionKind = "failed"
	ActionDryRunSkip     ActionKind = "dry_run_skip"
)

// Event is one classifier observation for a source window. ObservedAt zero
// means "now".
type Event struct {
	SourceID    string  `json:"source_id"`
	WindowIndex int64   `json:"window_index"`
	Score       float64 `json:"score"`
	ObservedAt  time.Time
}

// Action is emitted for every processed event.
type Action struct {
	SourceID    string
	Kind        ActionKind
	Reason      string
	Score       float64
	WindowIndex int64
	Hits        int
	Suppressed  bool // block attempt held back by cooldown
	At          time.Time
}

// Recorder consumes actions for persistence and notification. Record is
// called from worker goroutines and must be safe for concurrent use.
type Recorder interface {
	Record(a Action)
}

// SourceInfo is a read-only view of one source's state for the API.
type SourceInfo struct {
	SourceID  string    `json:"source_id"`
	State     string    `json:"state"`
	Hits      int       `json:"hits"`
	Windows   int       `json:"windows"`
	Blocked   bool      `json:"blocked"`
	LastSeen  time.Time `json:"last_seen"`
	LastBlock time.Time `json:"last_block,omitempty"`
}

// Stats summarizes the engine for the status endpoint.
type Stats struct {
	TrackedSources int   `json:"tracked_sources"`
	BlockedSources int   `json:"blocked_sources"`
	EventsTotal    int64 `json:"events_total"`
	BlocksTotal    int64 `json:"blocks_total"`
}

type shard struct {
	mu      sync.Mutex
	sources map[string]*sourceState
	events  chan Event
}

// Engine is the decision core. Events are partitioned across shards by
// source hash; within a shard they are processed in arrival order, which
// keeps the grace/cooldown sequencing per source correct.
type Engine struct {
	store  *config.Store
	hooks  map[config.HookSelector]hook.Hook
	rec    Recorder
	shards []*shard

	tracked atomic.Int64
	events  atomic.Int64
	blocks  atomic.Int64

	wg sync.WaitGroup
}

// New creates an engine with the given number of shards. rec may be nil.
func New(store *config.Store, hooks map[config.HookSelector]hook.Hook, rec Recorder, shards int) *Engine {
	if shards < 1 {
		shards = 1
	}
	e := &Engine{store: store, hooks: hooks, rec: rec}
	for i := 0; i < shards; i++ {
		e.shards = append(e.shards, &shard{
			sources: make(map[string]*sourceState),
			events:  make(chan Event, 1024),
		})
	}
	return e
}

// Start launches one worker goroutine per shard. Workers drain their queue
// until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	for _, sh := range e.shards {
		e.wg.Add(1)
		go func(sh *shard) {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-sh.events:
					e.Process(ev)
				}
			}
		}(sh)
	}
}

// Wait blocks until all workers have exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Submit queues an event for asynchronous processing on its source's shard.
func (e *Engine) Submit(ev Event) {
	e.shardFor(ev.SourceID).events <- ev
}

func (e *Engine) shardFor(sourceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sourceID))
	return e.shards[int(h.Sum32())%len(e.shards)]
}

// Process runs the decision state machine for one event and returns the
// resulting action. Safe for concurrent use; events for the same source must
// arrive in order (Submit guarantees this via shard partitioning).
func (e *Engine) Process(ev Event) Action {
	if ev.ObservedAt.IsZero() {
		ev.ObservedAt = time.Now()
	}
	snap := e.store.Current()
	sh := e.shardFor(ev.SourceID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.sources[ev.SourceID]
	if !ok {
		// First-seen (or evicted and returned) sources are created lazily.
		st = newSourceState(ev.SourceID)
		sh.sources[ev.SourceID] = st
		metrics.SetTrackedSources(int(e.tracked.Add(1)))
	}
	st.lastSeen = ev.ObservedAt

	suspicious := st.observe(ev.WindowIndex, ev.Score, snap.Threshold, snap.Window)
	e.events.Add(1)
	metrics.IncEvent()
	if suspicious {
		metrics.IncSuspicious()
	}

	act := Action{
		SourceID:    ev.SourceID,
		Kind:        ActionNone,
		Score:       ev.Score,
		WindowIndex: ev.WindowIndex,
		Hits:        st.suspicious,
		At:          ev.ObservedAt,
	}

	switch {
	case st.blocked:
		act.Kind = ActionBlockedAlready
		act.Reason = "source already blocked"
	case ev.Score >= snap.InstantBlock:
		e.attemptBlock(st, &act, snap, fmt.Sprintf("instant block: score %.3f >= %.3f", ev.Score, snap.InstantBlock))
	case st.suspicious >= snap.Grace:
		e.attemptBlock(st, &act, snap, fmt.Sprintf("burst confirmed: %d suspicious in last %d windows", st.suspicious, snap.Window))
	default:
		act.Reason = fmt.Sprintf("below burst/instant (hits=%d<%d, score=%.3f<%.3f)", st.suspicious, snap.Grace, ev.Score, snap.InstantBlock)
	}

	e.emit(act)
	return act
}

// attemptBlock is the convergence point of the instant and grace triggers.
// Cooldown applies to every attempt, including ones whose hook call failed,
// so a failing firewall mechanism is never hammered.
func (e *Engine) attemptBlock(st *sourceState, act *Action, snap config.Snapshot, reason string) {
	if !st.lastBlock.IsZero() {
		if elapsed := act.At.Sub(st.lastBlock); elapsed < snap.Cooldown() {
			act.Reason = fmt.Sprintf("cooldown: %.1fs since last attempt, need %.1fs", elapsed.Seconds(), snap.CooldownSec)
			act.Suppressed = true
			metrics.IncSuppressed("cooldown")
			return
		}
	}

	if snap.DryRun {
		// No state change: once dry-run is switched off the same decision
		// re-evaluates and can act.
		act.Kind = ActionDryRunSkip
		act.Reason = reason
		return
	}

	h, ok := e.hooks[snap.Hook]
	if !ok {
		act.Kind = ActionFailed
		act.Reason = fmt.Sprintf("no hook registered for selector %q", snap.Hook)
		st.lastBlock = act.At
		metrics.IncHookFailure()
		return
	}

	outcome, err := h.Invoke(context.Background(), st.sourceID)
	st.lastBlock = act.At

	switch outcome {
	case hook.OutcomeAlreadyBlocked:
		st.blocked = true
		act.Kind = ActionBlockedAlready
		act.Reason = reason
	case hook.OutcomeBlocked:
		st.blocked = true
		act.Kind = ActionBlock
		act.Reason = reason
		e.blocks.Add(1)
	default:
		// Source stays unblocked; a future event can retry after cooldown.
		act.Kind = ActionFailed
		act.Reason = reason
		if err != nil {
			act.Reason = fmt.Sprintf("%s; %v", reason, err)
		}
		metrics.IncHookFailure()
	}
}

func (e *Engine) emit(act Action) {
	entry := logger.WithSource(act.SourceID).WithFields(map[string]interface{}{
		"decision": string(act.Kind),
		"score":    act.Score,
		"window":   act.WindowIndex,
		"hits":     act.Hits,
		"reason":   act.Reason,
	})
	switch act.Kind {
	case ActionBlock:
		entry.Warn("blocked source")
	case ActionFailed:
		entry.Error("block attempt failed")
	case ActionDryRunSkip:
		entry.Info("dry run: block skipped")
	default:
		entry.Debug("decision")
	}

	if act.Kind != ActionNone {
		metrics.IncAction(string(act.Kind))
	}
	if e.rec != nil {
		e.rec.Record(act)
	}
}

// Unblock resets a source back to MONITORING by dropping its state. The
// firewall rule itself is not touched; that stays with the operator's
// unblock tooling. Returns false if the source was unknown.
func (e *Engine) Unblock(sourceID string) bool {
	sh := e.shardFor(sourceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.sources[sourceID]; !ok {
		return false
	}
	delete(sh.sources, sourceID)
	metrics.SetTrackedSources(int(e.tracked.Add(-1)))
	return true
}

// EvictIdle drops state for sources with no events since cutoff and returns
// the number evicted. Evicted sources are recreated transparently on their
// next event; a blocked source that comes back re-invokes the hook, which
// reports already-blocked.
func (e *Engine) EvictIdle(cutoff time.Time) int {
	evicted := 0
	for _, sh := range e.shards {
		sh.mu.Lock()
		for id, st := range sh.sources {
			if st.lastSeen.Before(cutoff) {
				delete(sh.sources, id)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	if evicted > 0 {
		metrics.SetTrackedSources(int(e.tracked.Add(int64(-evicted))))
	}
	return evicted
}

// Stats returns engine-wide counters for the status endpoint.
func (e *Engine) Stats() Stats {
	s := Stats{
		EventsTotal: e.events.Load(),
		BlocksTotal: e.blocks.Load(),
	}
	for _, sh := range e.shards {
		sh.mu.Lock()
		s.TrackedSources += len(sh.sources)
		for _, st := range sh.sources {
			if st.blocked {
				s.BlockedSources++
			}
		}
		sh.mu.Unlock()
	}
	return s
}

// Sources returns a snapshot of all tracked sources, sorted by id.
func (e *Engine) Sources() []SourceInfo {
	var out []SourceInfo
	for _, sh := range e.shards {
		sh.mu.Lock()
		for _, st := range sh.sources {
			out = append(out, SourceInfo{
				SourceID:  st.sourceID,
				State:     st.state(),
				Hits:      st.suspicious,
				Windows:   len(st.recent),
				Blocked:   st.blocked,
				LastSeen:  st.lastSeen,
				LastBlock: st.lastBlock,
			})
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}
