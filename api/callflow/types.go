package callflow

import "fmt"

// Stage identifies a phase of the call-navigation lifecycle.
type Stage string

const (
	StageDialing                Stage = "dialing"
	StageAwaitingGreeting       Stage = "awaiting_greeting"
	StageAwaitingVerification   Stage = "awaiting_verification_prompt"
	StageAwaitingAcknowledgment Stage = "awaiting_acknowledgment"
	StageNavigatingTree         Stage = "navigating_tree"
	StageBridged                Stage = "bridged"
	StageHungUp                 Stage = "hung_up"
)

// Valid reports whether the stage is a member of the lifecycle set.
func (s Stage) Valid() bool {
	switch s {
	case StageDialing, StageAwaitingGreeting, StageAwaitingVerification,
		StageAwaitingAcknowledgment, StageNavigatingTree, StageBridged, StageHungUp:
		return true
	default:
		return false
	}
}

// Terminal reports whether the stage ends the call attempt.
func (s Stage) Terminal() bool {
	return s == StageBridged || s == StageHungUp
}

// ActionType identifies the outbound call-control action kind.
type ActionType string

const (
	ActionSendDTMF ActionType = "send_dtmf"
	ActionHangup   ActionType = "hangup"
	ActionBridge   ActionType = "bridge"
)

// PauseMarker separates DTMF digit groups with an inter-digit pause.
const PauseMarker = "W"

// Action is one call-control instruction produced by classification.
type Action struct {
	Type        ActionType `json:"type"`
	Digits      string     `json:"digits,omitempty"`
	Destination string     `json:"destination,omitempty"`
}

// Validate enforces per-kind action shape.
func (a Action) Validate() error {
	switch a.Type {
	case ActionSendDTMF:
		if a.Digits == "" {
			return fmt.Errorf("send_dtmf action requires digits")
		}
	case ActionHangup:
	case ActionBridge:
		if a.Destination == "" {
			return fmt.Errorf("bridge action requires a destination")
		}
	default:
		return fmt.Errorf("invalid action type: %q", a.Type)
	}
	return nil
}

// TranscriptEvent is one unit of speech-recognition output for a stream.
type TranscriptEvent struct {
	StreamID   string  `json:"stream_id"`
	Transcript string  `json:"transcript"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
}

// Validate enforces transcript event invariants.
func (e TranscriptEvent) Validate() error {
	if e.StreamID == "" {
		return fmt.Errorf("stream_id is required")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("confidence must be within [0,1], got %v", e.Confidence)
	}
	return nil
}
