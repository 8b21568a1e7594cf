// Package polly synthesizes the spoken greeting prompt played at the top of
// each outbound call. The prompt text never changes during a run, so the
// synthesized MP3 is rendered once and cached for every later fetch.
package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

// ContentType is the media type of synthesized prompt audio.
const ContentType = "audio/mpeg"

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type Config struct {
	Region  string
	VoiceID string
	Engine  string
	Text    string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Region:  defaultString(os.Getenv("IVRNAV_PROMPT_REGION"), defaultString(os.Getenv("AWS_REGION"), "us-east-1")),
		VoiceID: defaultString(os.Getenv("IVRNAV_PROMPT_VOICE"), "Joanna"),
		Engine:  defaultString(os.Getenv("IVRNAV_PROMPT_ENGINE"), "neural"),
		Text:    defaultString(os.Getenv("IVRNAV_PROMPT_TEXT"), "Hi."),
		Timeout: 15 * time.Second,
	}
}

// Synthesizer renders the greeting prompt through Amazon Polly.
type Synthesizer struct {
	mu     sync.Mutex
	client synthClient
	cfg    Config
	cached []byte
}

// New builds a synthesizer backed by the default AWS credential chain.
func New(ctx context.Context, cfg Config) (*Synthesizer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(cfg, polly.NewFromConfig(awsCfg))
}

// NewWithClient builds a synthesizer around an explicit client. Tests use it
// to substitute a double.
func NewWithClient(cfg Config, client synthClient) (*Synthesizer, error) {
	if client == nil {
		return nil, errors.New("polly client is required")
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = "Joanna"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if strings.TrimSpace(cfg.Text) == "" {
		cfg.Text = "Hi."
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Synthesizer{client: client, cfg: cfg}, nil
}

// Prompt returns the greeting MP3, synthesizing it on first use.
func (s *Synthesizer) Prompt(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return s.cached, nil
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(s.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	output, err := s.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &s.cfg.Text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(s.cfg.VoiceID),
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	if output == nil || output.AudioStream == nil {
		return nil, errors.New("polly returned no audio stream")
	}
	defer output.AudioStream.Close()

	audio, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("read audio stream: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("polly returned empty audio")
	}
	s.cached = audio
	return s.cached, nil
}

func normalizeError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("synthesize prompt: %w", err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException":
			return fmt.Errorf("synthesize prompt: throttled: %w", err)
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException":
			return fmt.Errorf("synthesize prompt: rejected input: %w", err)
		default:
			return fmt.Errorf("synthesize prompt: %s: %w", apiErr.ErrorCode(), err)
		}
	}
	return fmt.Errorf("synthesize prompt: %w", err)
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
