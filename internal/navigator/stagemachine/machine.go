// Package stagemachine owns the per-call navigation lifecycle.
package stagemachine

import (
	"fmt"
	"sync"
	"time"

	"github.com/tiger/ivr-autopilot/api/callflow"
	"github.com/tiger/ivr-autopilot/internal/navigator/classifier"
)

// Decider maps a transcript to an optional transition decision.
type Decider interface {
	Classify(stage callflow.Stage, transcript string, isFinal bool, inStage time.Duration) (classifier.Decision, bool)
}

// Config controls machine construction.
type Config struct {
	CallID  string
	Decider Decider
	Now     func() time.Time
}

// Machine tracks one call's stage, enforcing monotonic transitions and
// at-most-one dispatched action per stage. All methods are safe for
// concurrent use; the session's media and transcript goroutines share it.
type Machine struct {
	callID  string
	decider Decider
	now     func() time.Time

	mu             sync.Mutex
	stage          callflow.Stage
	stageEnteredAt time.Time
	actionFired    bool
	lastTranscript string
	terminalSent   bool

	terminalCh chan callflow.Stage
}

var stageRank = map[callflow.Stage]int{
	callflow.StageDialing:                0,
	callflow.StageAwaitingGreeting:       1,
	callflow.StageAwaitingVerification:   2,
	callflow.StageAwaitingAcknowledgment: 3,
	callflow.StageNavigatingTree:         4,
	callflow.StageBridged:                5,
	callflow.StageHungUp:                 5,
}

// New returns a machine in the Dialing stage.
func New(cfg Config) (*Machine, error) {
	if cfg.CallID == "" {
		return nil, fmt.Errorf("call_id is required")
	}
	if cfg.Decider == nil {
		return nil, fmt.Errorf("decider is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Machine{
		callID:         cfg.CallID,
		decider:        cfg.Decider,
		now:            cfg.Now,
		stage:          callflow.StageDialing,
		stageEnteredAt: cfg.Now(),
		terminalCh:     make(chan callflow.Stage, 1),
	}, nil
}

// CallID returns the owning call identifier.
func (m *Machine) CallID() string {
	return m.callID
}

// Stage returns the current stage.
func (m *Machine) Stage() callflow.Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage
}

// Terminal delivers the terminal stage exactly once when the call concludes.
func (m *Machine) Terminal() <-chan callflow.Stage {
	return m.terminalCh
}

// StreamAttached marks stage entry for a newly attached media stream. The
// first stream moves Dialing to AwaitingGreeting; every attach clears the
// action latch and restarts the stage clock, so echoes of the previous
// stream can no longer satisfy the old stage's trigger.
func (m *Machine) StreamAttached() callflow.Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stage.Terminal() {
		return m.stage
	}
	if m.stage == callflow.StageDialing {
		m.stage = callflow.StageAwaitingGreeting
	}
	m.actionFired = false
	m.stageEnteredAt = m.now()
	return m.stage
}

// Result reports the outcome of observing one transcript event.
type Result struct {
	Stage  callflow.Stage
	Action callflow.Action
	Fired  bool
	Novel  bool
}

// Observe classifies one transcript event against the current stage. When a
// decision fires, latching the action and advancing the stage happen as one
// step under the session lock; repeated events in the same stage are inert
// until the next stream attaches.
func (m *Machine) Observe(event callflow.TranscriptEvent) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	novel := event.Transcript != m.lastTranscript
	if novel {
		m.lastTranscript = event.Transcript
	}
	result := Result{Stage: m.stage, Novel: novel}

	if m.actionFired || m.stage.Terminal() {
		return result
	}
	decision, ok := m.decider.Classify(m.stage, event.Transcript, event.IsFinal, m.now().Sub(m.stageEnteredAt))
	if !ok {
		return result
	}
	if stageRank[decision.Next] <= stageRank[m.stage] {
		// A decider must only move the call forward.
		return result
	}

	m.actionFired = true
	m.stage = decision.Next
	m.stageEnteredAt = m.now()
	result.Stage = m.stage
	result.Action = decision.Action
	result.Fired = true

	if m.stage.Terminal() && !m.terminalSent {
		m.terminalSent = true
		m.terminalCh <- m.stage
	}
	return result
}
