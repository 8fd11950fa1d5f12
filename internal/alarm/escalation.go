// Package alarm implements the per-camera escalation state machine.
//
// A session starts the moment the gesture becomes active and ends the
// moment a single evaluated frame reports it inactive. While a session
// runs, every configured threshold (seconds) is fired at most once, in
// ascending order, as soon as the session duration reaches it. The last
// threshold plays looping; the others play once.
package alarm

import (
	"slices"
	"sync"
	"time"

	"github.com/vzahanych/gesture-guard/internal/clock"
)

// Channel is the audio channel an escalation plays through.
type Channel interface {
	// Play starts the sound for a threshold. It is a no-op returning
	// false when the channel is already playing.
	Play(threshold int, loop bool) bool
	// Stop halts playback.
	Stop()
}

// State is the escalation state.
type State int

const (
	Idle State = iota
	Detecting
	Alarming
)

func (s State) String() string {
	switch s {
	case Detecting:
		return "detecting"
	case Alarming:
		return "alarm"
	default:
		return "idle"
	}
}

// EventKind identifies an escalation event.
type EventKind int

const (
	SessionStarted EventKind = iota
	ThresholdFired
	SessionCleared
)

// Event describes a transition.
type Event struct {
	Kind       EventKind
	Threshold  int
	Level      int
	Continuous bool
	// Played is false when the channel was busy and the trigger was
	// dropped.
	Played  bool
	Session time.Duration
	At      time.Time
}

// Snapshot is a consistent view of the escalation.
type Snapshot struct {
	State      State
	Level      int
	Duration   time.Duration
	Fired      []int
	Continuous bool
}

// Escalation tracks one camera's detection session. Observe is called by
// the owning worker; Pause, Reset and the getters may be called from any
// goroutine.
type Escalation struct {
	mu         sync.Mutex
	thresholds []int
	channel    Channel
	clock      clock.Clock
	onEvent    func(Event)

	start time.Time
	fired []int
}

// Option configures an Escalation.
type Option func(*Escalation)

// WithEventHandler registers a callback invoked after each transition,
// outside the escalation lock.
func WithEventHandler(fn func(Event)) Option {
	return func(e *Escalation) { e.onEvent = fn }
}

// New creates an escalation. thresholds are copied and sorted.
func New(thresholds []int, ch Channel, clk clock.Clock, opts ...Option) *Escalation {
	sorted := slices.Clone(thresholds)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	e := &Escalation{
		thresholds: sorted,
		channel:    ch,
		clock:      clk,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Observe feeds one evaluated frame into the state machine.
func (e *Escalation) Observe(active bool) {
	var events []Event
	if active {
		events = e.observeActive()
	} else {
		events = e.clear()
	}
	e.emit(events)
}

func (e *Escalation) observeActive() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	var events []Event

	if e.start.IsZero() {
		e.start = now
		e.fired = e.fired[:0]
		events = append(events, Event{Kind: SessionStarted, At: now})
	}

	elapsed := now.Sub(e.start)
	last := len(e.thresholds) - 1
	for i, t := range e.thresholds {
		if slices.Contains(e.fired, t) {
			continue
		}
		if elapsed < time.Duration(t)*time.Second {
			break
		}
		continuous := i == last
		played := e.channel.Play(t, continuous)
		e.fired = append(e.fired, t)
		events = append(events, Event{
			Kind:       ThresholdFired,
			Threshold:  t,
			Level:      len(e.fired),
			Continuous: continuous,
			Played:     played,
			Session:    elapsed,
			At:         now,
		})
	}
	return events
}

// clear returns to Idle. It is a no-op when already Idle.
func (e *Escalation) clear() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.start.IsZero() {
		return nil
	}
	now := e.clock.Now()
	ev := Event{
		Kind:    SessionCleared,
		Level:   len(e.fired),
		Session: now.Sub(e.start),
		At:      now,
	}
	if n := len(e.fired); n > 0 {
		ev.Threshold = e.fired[n-1]
	}

	e.channel.Stop()
	e.fired = e.fired[:0]
	e.start = time.Time{}
	return []Event{ev}
}

// Pause stops playback without touching the session.
func (e *Escalation) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.channel.Stop()
}

// Reset forces Idle and stops playback regardless of gesture state.
// Calling it while Idle has no effect.
func (e *Escalation) Reset() {
	e.emit(e.clear())
}

// Snapshot returns a consistent view of the current session.
func (e *Escalation) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		State: e.stateLocked(),
		Level: len(e.fired),
		Fired: slices.Clone(e.fired),
	}
	if !e.start.IsZero() {
		s.Duration = e.clock.Since(e.start)
	}
	if n := len(e.thresholds); n > 0 && slices.Contains(e.fired, e.thresholds[n-1]) {
		s.Continuous = true
	}
	return s
}

// State returns the current state.
func (e *Escalation) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Level returns the number of thresholds fired in the current session.
func (e *Escalation) Level() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fired)
}

// Duration returns the wall-clock length of the current session.
func (e *Escalation) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.start.IsZero() {
		return 0
	}
	return e.clock.Since(e.start)
}

// Fired returns the thresholds fired in the current session, ascending.
func (e *Escalation) Fired() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.fired)
}

func (e *Escalation) stateLocked() State {
	switch {
	case e.start.IsZero():
		return Idle
	case len(e.fired) == 0:
		return Detecting
	default:
		return Alarming
	}
}

func (e *Escalation) emit(events []Event) {
	if e.onEvent == nil {
		return
	}
	for _, ev := range events {
		e.onEvent(ev)
	}
}
