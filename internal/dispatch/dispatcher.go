// Package dispatch turns classifier actions into call-control requests.
package dispatch

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tiger/ivr-autopilot/api/callflow"
)

// CallUpdater redirects an in-progress call to new control markup.
type CallUpdater interface {
	UpdateCall(ctx context.Context, callID, controlURL, method string) error
}

// Config controls dispatcher construction.
type Config struct {
	// ControlBaseURL is the public base the provider fetches markup from,
	// scheme included.
	ControlBaseURL string
	Timeout        time.Duration
}

// Dispatcher issues exactly one asynchronous control request per action.
// There is no retry: by the time a retry would land, the IVR has moved on
// and a stale redirect could fire an already-superseded action.
type Dispatcher struct {
	updater CallUpdater
	cfg     Config
	log     *zap.Logger
	wg      sync.WaitGroup
}

// New validates dependencies and applies defaults.
func New(updater CallUpdater, cfg Config, log *zap.Logger) (*Dispatcher, error) {
	if updater == nil {
		return nil, fmt.Errorf("call updater is required")
	}
	if cfg.ControlBaseURL == "" {
		return nil, fmt.Errorf("control base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{updater: updater, cfg: cfg, log: log}, nil
}

// Dispatch maps the action onto its control endpoint and fires the request
// in the background so transcript processing never blocks on the provider.
func (d *Dispatcher) Dispatch(callID string, action callflow.Action) error {
	if callID == "" {
		return fmt.Errorf("call_id is required")
	}
	if err := action.Validate(); err != nil {
		return err
	}
	controlURL, err := d.controlURL(action)
	if err != nil {
		return err
	}

	log := d.log.With(
		zap.String("call_sid", callID),
		zap.String("action", string(action.Type)),
		zap.String("control_url", controlURL),
	)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
		defer cancel()
		if err := d.updater.UpdateCall(ctx, callID, controlURL, "POST"); err != nil {
			// The session already advanced; the failure is terminal for
			// this action but not for the process.
			log.Error("call control request failed", zap.Error(err))
			return
		}
		log.Info("call redirected")
	}()
	return nil
}

// Wait blocks until all in-flight control requests complete. Used during
// shutdown grace.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) controlURL(action callflow.Action) (string, error) {
	switch action.Type {
	case callflow.ActionSendDTMF:
		return fmt.Sprintf("%s/dtmf?digits=%s", d.cfg.ControlBaseURL, url.QueryEscape(action.Digits)), nil
	case callflow.ActionHangup:
		return d.cfg.ControlBaseURL + "/hangup", nil
	case callflow.ActionBridge:
		return d.cfg.ControlBaseURL + "/redirect", nil
	default:
		return "", fmt.Errorf("invalid action type: %q", action.Type)
	}
}
