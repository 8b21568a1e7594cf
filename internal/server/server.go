// Package server exposes the public HTTP surface: call-control markup
// endpoints fetched by the telephony provider, the media-stream websocket,
// and the trigger endpoint that launches a call attempt.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tiger/ivr-autopilot/internal/ingest"
	"github.com/tiger/ivr-autopilot/internal/markup"
	"github.com/tiger/ivr-autopilot/internal/navigator/registry"
)

// CallStarter launches one outbound call attempt and returns its call SID.
type CallStarter interface {
	StartCall(ctx context.Context) (string, error)
}

// PromptSource serves the synthesized greeting audio.
type PromptSource interface {
	Prompt(ctx context.Context) ([]byte, error)
}

// StreamHandler consumes one media-stream connection until it ends.
type StreamHandler interface {
	HandleStream(ctx context.Context, conn ingest.Conn)
}

type Config struct {
	// PromptURL is the public URL of the greeting audio. Empty falls back
	// to provider-side speech in the markup.
	PromptURL string
	// BridgeNumber is dialed when a session bridges to a human.
	BridgeNumber string
}

type Server struct {
	cfg      Config
	markup   *markup.Builder
	registry *registry.Registry
	streams  StreamHandler
	starter  CallStarter
	prompt   PromptSource
	upgrader websocket.Upgrader
	router   *mux.Router
	log      *zap.Logger
}

// New wires the route table. starter and prompt may be nil; their routes
// then answer 503 and 404 respectively.
func New(cfg Config, builder *markup.Builder, reg *registry.Registry, streams StreamHandler, starter CallStarter, prompt PromptSource, log *zap.Logger) (*Server, error) {
	if builder == nil {
		return nil, fmt.Errorf("markup builder is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("stream registry is required")
	}
	if streams == nil {
		return nil, fmt.Errorf("stream handler is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		markup:   builder,
		registry: reg,
		streams:  streams,
		starter:  starter,
		prompt:   prompt,
		log:      log,
	}
	r := mux.NewRouter()
	r.HandleFunc("/call", s.handleCall).Methods(http.MethodGet)
	r.HandleFunc("/twiml", s.handleAnswer).Methods(http.MethodPost)
	r.HandleFunc("/dtmf", s.handleDigits).Methods(http.MethodPost)
	r.HandleFunc("/hangup", s.handleHangup).Methods(http.MethodPost)
	r.HandleFunc("/redirect", s.handleBridge).Methods(http.MethodPost)
	r.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/stream/status", s.handleStreamStatus).Methods(http.MethodPost)
	r.HandleFunc("/prompt.mp3", s.handlePrompt).Methods(http.MethodGet)
	s.router = r
	return s, nil
}

// Router returns the HTTP handler for mounting.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if s.starter == nil {
		http.Error(w, "call origination is not configured", http.StatusServiceUnavailable)
		return
	}
	callID, err := s.starter.StartCall(r.Context())
	if err != nil {
		s.log.Error("start call failed", zap.Error(err))
		http.Error(w, "call origination failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "callSid": callID})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	body, err := s.markup.Initial(s.cfg.PromptURL)
	if err != nil {
		s.markupError(w, "initial", err)
		return
	}
	s.writeMarkup(w, body)
}

func (s *Server) handleDigits(w http.ResponseWriter, r *http.Request) {
	digits := r.URL.Query().Get("digits")
	if digits == "" {
		http.Error(w, "digits query parameter is required", http.StatusBadRequest)
		return
	}
	body, err := s.markup.Digits(digits)
	if err != nil {
		s.markupError(w, "digits", err)
		return
	}
	s.writeMarkup(w, body)
}

func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	body, err := s.markup.Hangup()
	if err != nil {
		s.markupError(w, "hangup", err)
		return
	}
	s.writeMarkup(w, body)
}

func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	body, err := s.markup.Bridge(s.cfg.BridgeNumber)
	if err != nil {
		s.markupError(w, "bridge", err)
		return
	}
	s.writeMarkup(w, body)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	s.streams.HandleStream(r.Context(), conn)
}

// handleStreamStatus records the stream-to-call association from the
// provider's status callback. Some providers omit the call SID from the
// stream's own start frame, so this callback is the authoritative mapping.
func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}
	streamID := r.PostFormValue("StreamSid")
	callID := r.PostFormValue("CallSid")
	if streamID == "" || callID == "" {
		http.Error(w, "StreamSid and CallSid are required", http.StatusBadRequest)
		return
	}
	if err := s.registry.Put(streamID, callID); err != nil {
		s.log.Warn("stream already registered",
			zap.String("stream_sid", streamID),
			zap.String("call_sid", callID))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	if s.prompt == nil {
		http.NotFound(w, r)
		return
	}
	audio, err := s.prompt.Prompt(r.Context())
	if err != nil {
		s.log.Error("prompt synthesis failed", zap.Error(err))
		http.Error(w, "prompt unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	_, _ = w.Write(audio)
}

func (s *Server) writeMarkup(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(body)
}

func (s *Server) markupError(w http.ResponseWriter, kind string, err error) {
	s.log.Error("markup render failed", zap.String("document", kind), zap.Error(err))
	http.Error(w, "markup render failed", http.StatusInternalServerError)
}
