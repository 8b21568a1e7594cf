package google

import (
	"testing"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg := ConfigFromEnv()
	if cfg.Language != "en-US" {
		t.Fatalf("unexpected language %q", cfg.Language)
	}
	if cfg.Model != "phone_call" {
		t.Fatalf("unexpected model %q", cfg.Model)
	}
	if cfg.SampleRateHz != 8000 {
		t.Fatalf("unexpected sample rate %d", cfg.SampleRateHz)
	}
	if cfg.PhraseBoost != 20 {
		t.Fatalf("unexpected boost %v", cfg.PhraseBoost)
	}
}

func TestDigitPhrasesCoverAllDigits(t *testing.T) {
	t.Parallel()

	if len(digitPhrases) != 10 {
		t.Fatalf("expected ten digit phrases, got %d", len(digitPhrases))
	}
	seen := map[string]bool{}
	for _, phrase := range digitPhrases {
		if seen[phrase] {
			t.Fatalf("duplicate phrase %q", phrase)
		}
		seen[phrase] = true
	}
}
