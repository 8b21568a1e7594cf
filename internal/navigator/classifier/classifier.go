// Package classifier turns transcript text into call-control decisions.
//
// Classification is pure policy: no I/O, no session state. The stage machine
// owns ordering and idempotency; this package only answers "given this stage
// and this transcript, what should the call do next".
package classifier

import (
	"regexp"
	"strings"
	"time"

	"github.com/tiger/ivr-autopilot/api/callflow"
)

var digitRunRE = regexp.MustCompile(`[0-9]+`)

// Policy holds the domain phrase lists and scripted responses. Phrases are
// tuning data for one specific IVR, not algorithm; they ship as defaults and
// may be overridden from configuration.
type Policy struct {
	GreetingKeyword       string
	GreetingDigits        string
	VerificationKeyword   string
	AcknowledgmentKeyword string
	TreeDigits            string
	HoldKeyword           string
	LimitKeyword          string
	BridgeDestination     string
	TreeGuard             time.Duration
}

// DefaultPolicy returns the scripted navigation policy for the target IVR.
func DefaultPolicy() Policy {
	return Policy{
		GreetingKeyword:       "california",
		GreetingDigits:        "1",
		VerificationKeyword:   "verification",
		AcknowledgmentKeyword: "thank you",
		TreeDigits:            "WW3WWWWW1WWWWW5WWWWW0",
		HoldKeyword:           "stay on the line",
		LimitKeyword:          "maximum number",
		TreeGuard:             3 * time.Second,
	}
}

// Decision pairs the action to dispatch with the stage the session moves to.
type Decision struct {
	Action callflow.Action
	Next   callflow.Stage
}

// Classify inspects one transcript against the current stage. It returns
// false when the transcript does not trigger a transition.
func (p Policy) Classify(stage callflow.Stage, transcript string, isFinal bool, inStage time.Duration) (Decision, bool) {
	switch stage {
	case callflow.StageAwaitingGreeting:
		if containsFold(transcript, p.GreetingKeyword) {
			return Decision{
				Action: callflow.Action{Type: callflow.ActionSendDTMF, Digits: p.GreetingDigits},
				Next:   callflow.StageAwaitingVerification,
			}, true
		}
	case callflow.StageAwaitingVerification:
		// Interim hypotheses are too unstable to extract a code from;
		// only the final transcript of the prompt decides.
		if !isFinal {
			return Decision{}, false
		}
		groups := p.ExtractDigitGroups(transcript)
		if len(groups) != 4 {
			// Anything other than exactly four groups fails safe: wrong
			// digits in a live verification flow are worse than no call.
			return Decision{
				Action: callflow.Action{Type: callflow.ActionHangup},
				Next:   callflow.StageHungUp,
			}, true
		}
		return Decision{
			Action: callflow.Action{Type: callflow.ActionSendDTMF, Digits: strings.Join(groups, callflow.PauseMarker)},
			Next:   callflow.StageAwaitingAcknowledgment,
		}, true
	case callflow.StageAwaitingAcknowledgment:
		if containsFold(transcript, p.AcknowledgmentKeyword) {
			return Decision{
				Action: callflow.Action{Type: callflow.ActionSendDTMF, Digits: p.TreeDigits},
				Next:   callflow.StageNavigatingTree,
			}, true
		}
	case callflow.StageNavigatingTree:
		// The tree DTMF playback echoes back through the new stream; ignore
		// everything heard in the first moments after stage entry.
		if inStage < p.TreeGuard {
			return Decision{}, false
		}
		if containsFold(transcript, p.HoldKeyword) {
			return Decision{
				Action: callflow.Action{Type: callflow.ActionBridge, Destination: p.BridgeDestination},
				Next:   callflow.StageBridged,
			}, true
		}
		if containsFold(transcript, p.LimitKeyword) {
			return Decision{
				Action: callflow.Action{Type: callflow.ActionHangup},
				Next:   callflow.StageHungUp,
			}, true
		}
	}
	return Decision{}, false
}

// ExtractDigitGroups collects the maximal decimal runs, in order, from the
// transcript tail following the last occurrence of the verification keyword.
// It returns nil when the keyword is absent.
func (p Policy) ExtractDigitGroups(transcript string) []string {
	lower := strings.ToLower(transcript)
	keyword := strings.ToLower(p.VerificationKeyword)
	idx := strings.LastIndex(lower, keyword)
	if idx < 0 {
		return nil
	}
	tail := transcript[idx+len(keyword):]
	return digitRunRE.FindAllString(tail, -1)
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
