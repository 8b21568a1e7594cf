// Package google streams call audio into Google Cloud Speech-to-Text.
package google

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tiger/ivr-autopilot/providers/transcribe"
)

// digitPhrases are the recognition hints boosted so spoken verification
// digits survive telephone audio.
var digitPhrases = []string{
	"zero", "one", "two", "three", "four",
	"five", "six", "seven", "eight", "nine",
}

// Config fixes the recognition request for 8kHz mu-law telephony audio.
type Config struct {
	Language        string
	Model           string
	SampleRateHz    int32
	PhraseBoost     float32
	CredentialsFile string
}

// ConfigFromEnv resolves recognition settings from the environment.
func ConfigFromEnv() Config {
	return Config{
		Language:        defaultString(os.Getenv("IVRNAV_STT_LANGUAGE"), "en-US"),
		Model:           defaultString(os.Getenv("IVRNAV_STT_MODEL"), "phone_call"),
		SampleRateHz:    8000,
		PhraseBoost:     20,
		CredentialsFile: strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
	}
}

// Client opens streaming recognition sessions.
type Client struct {
	speech *speech.Client
	cfg    Config
	log    *zap.Logger
}

// NewClient dials the Speech-to-Text backend.
func NewClient(ctx context.Context, cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.Model == "" {
		cfg.Model = "phone_call"
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = 8000
	}
	if cfg.PhraseBoost <= 0 {
		cfg.PhraseBoost = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial speech backend: %w", err)
	}
	return &Client{speech: client, cfg: cfg, log: log}, nil
}

// Close releases the backend connection.
func (c *Client) Close() error {
	return c.speech.Close()
}

// OpenSession starts one streaming recognition channel configured for the
// call's media format.
func (c *Client) OpenSession(ctx context.Context) (transcribe.Session, error) {
	stream, err := c.speech.StreamingRecognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("open recognition stream: %w", err)
	}
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_MULAW,
					SampleRateHertz:            c.cfg.SampleRateHz,
					LanguageCode:               c.cfg.Language,
					Model:                      c.cfg.Model,
					UseEnhanced:                true,
					EnableAutomaticPunctuation: true,
					MaxAlternatives:            1,
					SpeechContexts: []*speechpb.SpeechContext{{
						Phrases: digitPhrases,
						Boost:   c.cfg.PhraseBoost,
					}},
				},
				InterimResults: true,
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("send recognition config: %w", err)
	}

	sess := &session{
		stream:  stream,
		results: make(chan transcribe.Result, 16),
		log:     c.log,
	}
	go sess.receive()
	return sess, nil
}

type session struct {
	stream    speechpb.Speech_StreamingRecognizeClient
	results   chan transcribe.Result
	log       *zap.Logger
	closeOnce sync.Once
	closeErr  error
}

func (s *session) Write(audio []byte) error {
	if err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	}); err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

func (s *session) Results() <-chan transcribe.Result {
	return s.results
}

// Close half-closes the send side; the receive loop drains the remaining
// hypotheses and then closes Results.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.stream.CloseSend()
	})
	return s.closeErr
}

func (s *session) receive() {
	defer close(s.results)
	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			switch status.Code(err) {
			case codes.Canceled, codes.OutOfRange:
				// Expected when the call ends or the stream hits the
				// service's duration limit.
				s.log.Info("recognition stream closed", zap.String("code", status.Code(err).String()))
			default:
				// Fatal only for this stream's recognition channel.
				s.log.Error("recognition stream ended", zap.Error(err))
			}
			return
		}
		for _, result := range resp.GetResults() {
			alts := result.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			s.results <- transcribe.Result{
				Transcript: alts[0].GetTranscript(),
				IsFinal:    result.GetIsFinal(),
				Confidence: float64(alts[0].GetConfidence()),
			}
		}
	}
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
