package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tiger/ivr-autopilot/api/callflow"
	"github.com/tiger/ivr-autopilot/internal/navigator/classifier"
	"github.com/tiger/ivr-autopilot/internal/navigator/session"
)

type fakeCreator struct {
	callID string
	err    error
	from   string
	to     string
	url    string
}

func (f *fakeCreator) CreateCall(ctx context.Context, from, to, controlURL string) (string, error) {
	f.from, f.to, f.url = from, to, controlURL
	return f.callID, f.err
}

func newOrchestrator(t *testing.T, creator CallCreator, sessions *session.Store) *Orchestrator {
	t.Helper()
	o, err := New(creator, sessions, classifier.DefaultPolicy(), Config{
		FromNumbers:    []string{"+15550001", "+15550002"},
		ToNumber:       "+15559999",
		ControlBaseURL: "https://example.test",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func TestStartCallOriginatesAndRegisters(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{callID: "CA1"}
	sessions := session.NewStore()
	o := newOrchestrator(t, creator, sessions)
	o.pick = func(int) int { return 1 }

	callID, err := o.StartCall(context.Background())
	if err != nil {
		t.Fatalf("start call: %v", err)
	}
	if callID != "CA1" {
		t.Fatalf("unexpected call id %q", callID)
	}
	if creator.from != "+15550002" {
		t.Fatalf("unexpected origin %q", creator.from)
	}
	if creator.to != "+15559999" {
		t.Fatalf("unexpected destination %q", creator.to)
	}
	if creator.url != "https://example.test/twiml" {
		t.Fatalf("unexpected control url %q", creator.url)
	}

	sess, ok := sessions.Get("CA1")
	if !ok {
		t.Fatalf("session was not registered")
	}
	if sess.AttemptID == "" {
		t.Fatalf("expected populated attempt id")
	}
	if stage := sess.Machine.Stage(); stage != callflow.StageDialing {
		t.Fatalf("unexpected initial stage %s", stage)
	}
}

func TestStartCallOriginationFailure(t *testing.T) {
	t.Parallel()

	sessions := session.NewStore()
	o := newOrchestrator(t, &fakeCreator{err: errors.New("provider down")}, sessions)
	if _, err := o.StartCall(context.Background()); err == nil {
		t.Fatalf("expected origination error")
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected no session for a failed origination")
	}
}

func TestOutcomeDeliveredOnTerminalStage(t *testing.T) {
	t.Parallel()

	sessions := session.NewStore()
	o := newOrchestrator(t, &fakeCreator{callID: "CA1"}, sessions)
	if _, err := o.StartCall(context.Background()); err != nil {
		t.Fatalf("start call: %v", err)
	}
	sess, ok := sessions.Get("CA1")
	if !ok {
		t.Fatalf("session was not registered")
	}

	// Walk the call to a failed verification hangup.
	machine := sess.Machine
	machine.StreamAttached()
	machine.Observe(callflow.TranscriptEvent{Transcript: "welcome to california services"})
	machine.StreamAttached()
	machine.Observe(callflow.TranscriptEvent{Transcript: "your verification number is 12", IsFinal: true})

	select {
	case outcome := <-o.Outcomes():
		if outcome.CallID != "CA1" || outcome.Stage != callflow.StageHungUp {
			t.Fatalf("unexpected outcome %+v", outcome)
		}
		if outcome.ExitCode() != 1 {
			t.Fatalf("unexpected exit code %d", outcome.ExitCode())
		}
		if outcome.GraceDelay() != 3*time.Second {
			t.Fatalf("unexpected grace %s", outcome.GraceDelay())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("outcome was never delivered")
	}

	if sessions.Len() != 0 {
		t.Fatalf("expected session to be removed after conclusion")
	}
}

func TestOutcomeExitMapping(t *testing.T) {
	t.Parallel()

	bridged := Outcome{Stage: callflow.StageBridged}
	if bridged.ExitCode() != 0 {
		t.Fatalf("bridged call should exit zero")
	}
	if bridged.GraceDelay() != 10*time.Second {
		t.Fatalf("unexpected bridged grace %s", bridged.GraceDelay())
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	sessions := session.NewStore()
	if _, err := New(nil, sessions, classifier.DefaultPolicy(), Config{
		FromNumbers:    []string{"+15550001"},
		ToNumber:       "+15559999",
		ControlBaseURL: "https://example.test",
	}, nil); err == nil {
		t.Fatalf("expected error for nil creator")
	}
	if _, err := New(&fakeCreator{}, sessions, classifier.DefaultPolicy(), Config{
		ToNumber:       "+15559999",
		ControlBaseURL: "https://example.test",
	}, nil); err == nil {
		t.Fatalf("expected error for empty origin pool")
	}
}
