// Package orchestrator owns the lifecycle of a call attempt: it originates
// the call, creates the session that tracks it, and reports how the call
// concluded so the process can exit with the right status.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tiger/ivr-autopilot/api/callflow"
	"github.com/tiger/ivr-autopilot/internal/navigator/classifier"
	"github.com/tiger/ivr-autopilot/internal/navigator/session"
	"github.com/tiger/ivr-autopilot/internal/navigator/stagemachine"
)

// CallCreator originates one outbound call controlled by the given URL.
type CallCreator interface {
	CreateCall(ctx context.Context, from, to, controlURL string) (string, error)
}

type Config struct {
	// FromNumbers is the caller-ID pool; each attempt picks one at random.
	FromNumbers []string
	ToNumber    string
	// ControlBaseURL is the public base URL the provider fetches markup from.
	ControlBaseURL string
}

// Outcome reports how one call attempt concluded.
type Outcome struct {
	CallID    string
	AttemptID string
	Stage     callflow.Stage
}

// ExitCode maps the terminal stage onto the process exit status: a bridged
// call is the success path, anything else failed to reach a human.
func (o Outcome) ExitCode() int {
	if o.Stage == callflow.StageBridged {
		return 0
	}
	return 1
}

// GraceDelay is how long to keep serving after the outcome. A bridged call
// still fetches markup and streams audio while the dial connects; a hangup
// only needs the final control request to drain.
func (o Outcome) GraceDelay() time.Duration {
	if o.Stage == callflow.StageBridged {
		return 10 * time.Second
	}
	return 3 * time.Second
}

type Orchestrator struct {
	creator  CallCreator
	sessions *session.Store
	policy   classifier.Policy
	cfg      Config
	log      *zap.Logger
	outcomes chan Outcome
	pick     func(n int) int
}

func New(creator CallCreator, sessions *session.Store, policy classifier.Policy, cfg Config, log *zap.Logger) (*Orchestrator, error) {
	if creator == nil {
		return nil, fmt.Errorf("call creator is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if len(cfg.FromNumbers) == 0 {
		return nil, fmt.Errorf("at least one origin number is required")
	}
	if cfg.ToNumber == "" {
		return nil, fmt.Errorf("destination number is required")
	}
	if cfg.ControlBaseURL == "" {
		return nil, fmt.Errorf("control base url is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		creator:  creator,
		sessions: sessions,
		policy:   policy,
		cfg:      cfg,
		log:      log,
		outcomes: make(chan Outcome, 4),
		pick:     rand.IntN,
	}, nil
}

// StartCall originates one attempt and registers its session. The returned
// SID identifies the call at the provider; transcripts for its media stream
// drive the session until a terminal stage is reached.
func (o *Orchestrator) StartCall(ctx context.Context) (string, error) {
	attemptID := uuid.NewString()
	from := o.cfg.FromNumbers[o.pick(len(o.cfg.FromNumbers))]
	log := o.log.With(
		zap.String("attempt_id", attemptID),
		zap.String("from", from),
		zap.String("to", o.cfg.ToNumber),
	)

	callID, err := o.creator.CreateCall(ctx, from, o.cfg.ToNumber, o.cfg.ControlBaseURL+"/twiml")
	if err != nil {
		log.Error("call origination failed", zap.Error(err))
		return "", fmt.Errorf("create call: %w", err)
	}
	log = log.With(zap.String("call_sid", callID))

	machine, err := stagemachine.New(stagemachine.Config{CallID: callID, Decider: o.policy})
	if err != nil {
		return "", fmt.Errorf("new stage machine: %w", err)
	}
	if err := o.sessions.Put(&session.Session{
		CallID:    callID,
		AttemptID: attemptID,
		Machine:   machine,
		CreatedAt: time.Now(),
	}); err != nil {
		return "", fmt.Errorf("register session: %w", err)
	}
	log.Info("call originated")

	go o.watch(callID, attemptID, machine, log)
	return callID, nil
}

// Outcomes delivers one value per concluded attempt.
func (o *Orchestrator) Outcomes() <-chan Outcome {
	return o.outcomes
}

func (o *Orchestrator) watch(callID, attemptID string, machine *stagemachine.Machine, log *zap.Logger) {
	stage := <-machine.Terminal()
	log.Info("call concluded", zap.String("stage", string(stage)))
	o.sessions.Remove(callID)
	o.outcomes <- Outcome{CallID: callID, AttemptID: attemptID, Stage: stage}
}
