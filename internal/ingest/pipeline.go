// Package ingest demultiplexes one media stream into the recording sink and
// the recognition channel, and feeds transcripts back into the call's stage
// machine.
package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tiger/ivr-autopilot/api/callflow"
	"github.com/tiger/ivr-autopilot/internal/navigator/registry"
	"github.com/tiger/ivr-autopilot/internal/navigator/session"
	"github.com/tiger/ivr-autopilot/internal/navigator/stagemachine"
	"github.com/tiger/ivr-autopilot/internal/recording"
	"github.com/tiger/ivr-autopilot/providers/transcribe"
)

// Frame is the JSON envelope on the media-stream channel.
type Frame struct {
	Event          string      `json:"event"`
	SequenceNumber string      `json:"sequenceNumber,omitempty"`
	StreamSid      string      `json:"streamSid,omitempty"`
	CallSid        string      `json:"callSid,omitempty"`
	Protocol       string      `json:"protocol,omitempty"`
	Version        string      `json:"version,omitempty"`
	Start          *FrameStart `json:"start,omitempty"`
	Media          *FrameMedia `json:"media,omitempty"`
	Mark           *FrameMark  `json:"mark,omitempty"`
}

// FrameStart carries stream-attach context.
type FrameStart struct {
	AccountSid  string            `json:"accountSid,omitempty"`
	CallSid     string            `json:"callSid,omitempty"`
	StreamSid   string            `json:"streamSid,omitempty"`
	Tracks      []string          `json:"tracks,omitempty"`
	MediaFormat *FrameMediaFormat `json:"mediaFormat,omitempty"`
}

// FrameMediaFormat describes the audio encoding on the stream.
type FrameMediaFormat struct {
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// FrameMedia carries one base64 mu-law audio chunk.
type FrameMedia struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// FrameMark echoes a playback marker back to the sender.
type FrameMark struct {
	Name string `json:"name,omitempty"`
}

// Conn is the message source for one media-stream connection.
type Conn interface {
	ReadMessage() (int, []byte, error)
}

// ActionDispatcher issues the control request for a fired action.
type ActionDispatcher interface {
	Dispatch(callID string, action callflow.Action) error
}

// Pipeline wires stream connections into per-call navigation state.
type Pipeline struct {
	registry   *registry.Registry
	sessions   *session.Store
	recordings *recording.Store
	recognizer transcribe.Opener
	dispatcher ActionDispatcher
	log        *zap.Logger
}

// New validates collaborators.
func New(reg *registry.Registry, sessions *session.Store, recordings *recording.Store, recognizer transcribe.Opener, dispatcher ActionDispatcher, log *zap.Logger) (*Pipeline, error) {
	if reg == nil || sessions == nil || recordings == nil || recognizer == nil || dispatcher == nil {
		return nil, fmt.Errorf("registry, sessions, recordings, recognizer, and dispatcher are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		registry:   reg,
		sessions:   sessions,
		recordings: recordings,
		recognizer: recognizer,
		dispatcher: dispatcher,
		log:        log,
	}, nil
}

// streamState is the per-connection resource set, torn down exactly once no
// matter which of the stop event or the socket close lands first.
type streamState struct {
	streamID string
	callID   string
	machine  *stagemachine.Machine
	sink     *recording.Sink
	stt      transcribe.Session
	teardown sync.Once
}

// HandleStream consumes one media-stream connection until it stops or drops.
func (p *Pipeline) HandleStream(ctx context.Context, conn Conn) {
	state := &streamState{}
	defer p.close(state)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			// Abrupt disconnect; the deferred teardown covers it.
			return
		}
		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			p.log.Warn("dropping malformed stream frame", zap.Error(err))
			continue
		}
		switch frame.Event {
		case "connected":
			p.log.Debug("media stream connected")
		case "start":
			p.start(ctx, state, frame)
		case "media":
			p.media(state, frame)
		case "stop":
			p.close(state)
			return
		case "mark":
			// Playback markers are not used for navigation.
		default:
			p.log.Warn("dropping unknown stream event", zap.String("event", frame.Event))
		}
	}
}

func (p *Pipeline) start(ctx context.Context, state *streamState, frame Frame) {
	if state.streamID != "" {
		p.log.Warn("duplicate start event", zap.String("stream_sid", frame.StreamSid))
		return
	}
	if frame.StreamSid == "" {
		p.log.Warn("start event without stream sid")
		return
	}
	state.streamID = frame.StreamSid
	log := p.log.With(zap.String("stream_sid", state.streamID))

	state.callID = p.resolveCallID(frame)
	if state.callID == "" {
		// The stream still records and transcribes, but nothing can act
		// on a call we cannot name.
		log.Error("no call sid found in stream event")
	} else {
		if err := p.registry.Put(state.streamID, state.callID); err != nil {
			log.Error("registering stream failed", zap.Error(err))
		}
		log.Info("stream associated", zap.String("call_sid", state.callID))
		if sess, ok := p.sessions.Get(state.callID); ok {
			state.machine = sess.Machine
			stage := state.machine.StreamAttached()
			log.Info("stage entered", zap.String("stage", string(stage)))
		} else {
			log.Error("no session for call", zap.String("call_sid", state.callID))
		}
	}

	sink, err := p.recordings.Open(state.streamID)
	if err != nil {
		// Recording is best-effort; transcription continues without it.
		log.Error("opening recording sink failed", zap.Error(err))
	} else {
		state.sink = sink
	}

	stt, err := p.recognizer.OpenSession(ctx)
	if err != nil {
		log.Error("opening recognition channel failed", zap.Error(err))
		return
	}
	state.stt = stt
	go p.forward(state, log)
}

func (p *Pipeline) media(state *streamState, frame Frame) {
	if frame.Media == nil || frame.Media.Payload == "" {
		return
	}
	audio, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
	if err != nil {
		p.log.Warn("dropping undecodable media payload", zap.Error(err))
		return
	}
	if state.sink != nil {
		if err := state.sink.Write(audio); err != nil {
			p.log.Warn("recording write failed", zap.Error(err))
		}
	}
	if state.stt != nil {
		if err := state.stt.Write(audio); err != nil {
			p.log.Warn("recognition write failed", zap.Error(err))
		}
	}
}

// forward hands recognition results to the stage machine in emission order
// and dispatches at most one action per stage transition.
func (p *Pipeline) forward(state *streamState, log *zap.Logger) {
	for result := range state.stt.Results() {
		event := callflow.TranscriptEvent{
			StreamID:   state.streamID,
			Transcript: result.Transcript,
			IsFinal:    result.IsFinal,
			Confidence: result.Confidence,
		}
		if state.machine == nil {
			log.Debug("transcript without session", zap.String("transcript", event.Transcript))
			continue
		}
		obs := state.machine.Observe(event)
		if obs.Novel {
			log.Info("transcript",
				zap.String("stage", string(obs.Stage)),
				zap.Bool("final", event.IsFinal),
				zap.String("text", event.Transcript))
		}
		if !obs.Fired {
			continue
		}
		log.Info("stage transition",
			zap.String("stage", string(obs.Stage)),
			zap.String("action", string(obs.Action.Type)))
		if err := p.dispatcher.Dispatch(state.callID, obs.Action); err != nil {
			log.Error("action dispatch failed", zap.Error(err))
		}
	}
}

// close releases the stream's resources. Idempotent: the explicit stop event
// and the connection teardown both funnel here.
func (p *Pipeline) close(state *streamState) {
	state.teardown.Do(func() {
		if state.stt != nil {
			if err := state.stt.Close(); err != nil {
				p.log.Warn("closing recognition channel failed", zap.Error(err))
			}
		}
		if state.sink != nil {
			sink := state.sink
			if err := sink.Close(); err != nil {
				p.log.Warn("closing recording sink failed", zap.Error(err))
			}
			// Transcoding must not block protocol handling.
			go func() {
				if err := sink.Finalize(); err != nil {
					p.log.Warn("finalizing recording failed", zap.Error(err))
				}
			}()
		}
		if state.streamID != "" {
			p.registry.Remove(state.streamID)
			p.log.Info("stream released", zap.String("stream_sid", state.streamID))
		}
	})
}

func (p *Pipeline) resolveCallID(frame Frame) string {
	if frame.CallSid != "" {
		return frame.CallSid
	}
	if frame.Start != nil && frame.Start.CallSid != "" {
		return frame.Start.CallSid
	}
	// The status callback may have correlated the stream out of band.
	if callID, ok := p.registry.Get(frame.StreamSid); ok {
		return callID
	}
	return ""
}
