// Command ivrnav places an outbound call into an IVR, listens to the live
// transcript, and navigates the menu tree until the call either bridges to a
// human or is hung up. The process exits 0 for a bridged call and 1 for any
// other conclusion.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	appconfig "github.com/tiger/ivr-autopilot/internal/config"
	"github.com/tiger/ivr-autopilot/internal/dispatch"
	"github.com/tiger/ivr-autopilot/internal/ingest"
	"github.com/tiger/ivr-autopilot/internal/markup"
	"github.com/tiger/ivr-autopilot/internal/navigator/classifier"
	"github.com/tiger/ivr-autopilot/internal/navigator/registry"
	"github.com/tiger/ivr-autopilot/internal/navigator/session"
	"github.com/tiger/ivr-autopilot/internal/orchestrator"
	"github.com/tiger/ivr-autopilot/internal/recording"
	"github.com/tiger/ivr-autopilot/internal/server"
	"github.com/tiger/ivr-autopilot/providers/callcontrol/twilio"
	promptpolly "github.com/tiger/ivr-autopilot/providers/prompt/polly"
	googlestt "github.com/tiger/ivr-autopilot/providers/transcribe/google"
)

func main() {
	code, err := run(context.Background(), os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ivrnav: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) (int, error) {
	env := appconfig.FromEnv()

	fs := flag.NewFlagSet("ivrnav", flag.ContinueOnError)
	fs.SetOutput(stderr)
	host := fs.String("host", env.Host, "public hostname the telephony provider reaches this process on")
	port := fs.Int("port", env.Port, "listen port")
	from := fs.String("from", strings.Join(env.FromNumbers, ","), "comma-separated caller-ID pool")
	to := fs.String("to", env.ToNumber, "IVR number to dial")
	bridge := fs.String("redirect", env.BridgeNumber, "number dialed when the call bridges to a human")
	recordingsDir := fs.String("recordings", env.RecordingsDir, "directory for call recordings")
	policyPath := fs.String("policy", "", "YAML keyword-policy override file")
	autoCall := fs.Bool("auto-call", env.AutoCall, "originate a call automatically shortly after startup")
	synthesizePrompt := fs.Bool("synthesize-prompt", false, "synthesize the greeting prompt through Amazon Polly")
	if err := fs.Parse(args); err != nil {
		return 2, err
	}

	cfg := env
	cfg.Host = *host
	cfg.Port = *port
	cfg.FromNumbers = nil
	for _, n := range strings.Split(*from, ",") {
		if trimmed := strings.TrimSpace(n); trimmed != "" {
			cfg.FromNumbers = append(cfg.FromNumbers, trimmed)
		}
	}
	cfg.ToNumber = *to
	cfg.BridgeNumber = *bridge
	cfg.RecordingsDir = *recordingsDir
	cfg.AutoCall = *autoCall
	if err := cfg.Validate(); err != nil {
		return 2, err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return 1, fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	policy := classifier.DefaultPolicy()
	policy.BridgeDestination = cfg.BridgeNumber
	policy, err = appconfig.LoadPolicy(*policyPath, policy)
	if err != nil {
		return 2, err
	}

	controlBase := "https://" + cfg.Host
	streamURL := "wss://" + cfg.Host + "/stream"

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	telephony, err := twilio.NewClient(twilio.ConfigFromEnv())
	if err != nil {
		return 2, fmt.Errorf("telephony client: %w", err)
	}
	recordings, err := recording.NewStore(cfg.RecordingsDir, log)
	if err != nil {
		return 1, fmt.Errorf("recording store: %w", err)
	}
	recognizer, err := googlestt.NewClient(ctx, googlestt.ConfigFromEnv(), log)
	if err != nil {
		return 1, fmt.Errorf("speech client: %w", err)
	}
	defer func() { _ = recognizer.Close() }()

	reg := registry.New()
	sessions := session.NewStore()
	dispatcher, err := dispatch.New(telephony, dispatch.Config{ControlBaseURL: controlBase}, log)
	if err != nil {
		return 1, fmt.Errorf("dispatcher: %w", err)
	}
	pipeline, err := ingest.New(reg, sessions, recordings, recognizer, dispatcher, log)
	if err != nil {
		return 1, fmt.Errorf("ingest pipeline: %w", err)
	}
	orch, err := orchestrator.New(telephony, sessions, policy, orchestrator.Config{
		FromNumbers:    cfg.FromNumbers,
		ToNumber:       cfg.ToNumber,
		ControlBaseURL: controlBase,
	}, log)
	if err != nil {
		return 1, fmt.Errorf("orchestrator: %w", err)
	}

	var promptURL string
	var promptSource server.PromptSource
	if *synthesizePrompt {
		synth, err := promptpolly.New(ctx, promptpolly.ConfigFromEnv())
		if err != nil {
			return 1, fmt.Errorf("prompt synthesizer: %w", err)
		}
		promptSource = synth
		promptURL = controlBase + "/prompt.mp3"
	}

	builder, err := markup.NewBuilder(streamURL)
	if err != nil {
		return 1, fmt.Errorf("markup builder: %w", err)
	}
	srv, err := server.New(server.Config{
		PromptURL:    promptURL,
		BridgeNumber: cfg.BridgeNumber,
	}, builder, reg, pipeline, orch, promptSource, log)
	if err != nil {
		return 1, fmt.Errorf("server: %w", err)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Router(),
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	log.Info("listening",
		zap.Int("port", cfg.Port),
		zap.String("control_base", controlBase),
		zap.Bool("auto_call", cfg.AutoCall),
	)

	if cfg.AutoCall {
		// Matches the manual flow: the process is reachable well within a
		// second of binding the listener.
		time.AfterFunc(time.Second, func() {
			if _, err := orch.StartCall(ctx); err != nil {
				log.Error("automatic call failed", zap.Error(err))
			}
		})
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	select {
	case outcome := <-orch.Outcomes():
		log.Info("attempt concluded",
			zap.String("call_sid", outcome.CallID),
			zap.String("stage", string(outcome.Stage)),
		)
		// Grace keeps the markup endpoints and stream alive while the
		// provider finishes acting on the last control document.
		timer := time.NewTimer(outcome.GraceDelay())
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
		dispatcher.Wait()
		return outcome.ExitCode(), nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return 0, nil
		}
		return 1, fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown requested")
		dispatcher.Wait()
		return 1, nil
	}
}
