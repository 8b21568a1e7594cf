package callflow

import "testing"

func TestStageValidity(t *testing.T) {
	t.Parallel()

	for _, stage := range []Stage{
		StageDialing, StageAwaitingGreeting, StageAwaitingVerification,
		StageAwaitingAcknowledgment, StageNavigatingTree, StageBridged, StageHungUp,
	} {
		if !stage.Valid() {
			t.Fatalf("expected stage %q to be valid", stage)
		}
	}
	if Stage("ringing").Valid() {
		t.Fatalf("expected unknown stage to be invalid")
	}
}

func TestStageTerminal(t *testing.T) {
	t.Parallel()

	if !StageBridged.Terminal() || !StageHungUp.Terminal() {
		t.Fatalf("expected bridged and hung_up to be terminal")
	}
	if StageDialing.Terminal() || StageNavigatingTree.Terminal() {
		t.Fatalf("expected non-terminal stages to report false")
	}
}

func TestActionValidate(t *testing.T) {
	t.Parallel()

	if err := (Action{Type: ActionSendDTMF, Digits: "1"}).Validate(); err != nil {
		t.Fatalf("send_dtmf with digits failed: %v", err)
	}
	if err := (Action{Type: ActionSendDTMF}).Validate(); err == nil {
		t.Fatalf("expected send_dtmf without digits to fail")
	}
	if err := (Action{Type: ActionHangup}).Validate(); err != nil {
		t.Fatalf("hangup failed: %v", err)
	}
	if err := (Action{Type: ActionBridge, Destination: "+15550100"}).Validate(); err != nil {
		t.Fatalf("bridge with destination failed: %v", err)
	}
	if err := (Action{Type: ActionBridge}).Validate(); err == nil {
		t.Fatalf("expected bridge without destination to fail")
	}
	if err := (Action{Type: "transfer"}).Validate(); err == nil {
		t.Fatalf("expected unknown action type to fail")
	}
}

func TestTranscriptEventValidate(t *testing.T) {
	t.Parallel()

	ok := TranscriptEvent{StreamID: "MZ1", Transcript: "hello", Confidence: 0.92}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid event failed: %v", err)
	}
	if err := (TranscriptEvent{Transcript: "hello"}).Validate(); err == nil {
		t.Fatalf("expected missing stream_id to fail")
	}
	if err := (TranscriptEvent{StreamID: "MZ1", Confidence: 1.5}).Validate(); err == nil {
		t.Fatalf("expected out-of-range confidence to fail")
	}
}
