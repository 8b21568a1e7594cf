package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tiger/ivr-autopilot/internal/navigator/classifier"
)

func TestResolveSecretRefWithLookup(t *testing.T) {
	t.Parallel()

	lookup := func(name string) (string, bool) {
		if name == "TOKEN" {
			return "s3cret", true
		}
		return "", false
	}
	for _, ref := range []string{"TOKEN", "env://TOKEN"} {
		value, err := ResolveSecretRefWithLookup(ref, lookup)
		if err != nil || value != "s3cret" {
			t.Fatalf("resolve %q: value=%q err=%v", ref, value, err)
		}
	}
	if _, err := ResolveSecretRefWithLookup("MISSING", lookup); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
	if _, err := ResolveSecretRefWithLookup("", lookup); err == nil {
		t.Fatalf("expected empty ref to fail")
	}
}

func TestRedactSecret(t *testing.T) {
	t.Parallel()

	if got := RedactSecret("abc"); got != "***redacted***" {
		t.Fatalf("unexpected marker %q", got)
	}
	if got := RedactSecret("  "); got != "" {
		t.Fatalf("expected empty marker for blank secret, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := Config{
		Host:          "example.ngrok.app",
		Port:          3000,
		FromNumbers:   []string{"+15550001"},
		ToNumber:      "+15550002",
		BridgeNumber:  "+15550003",
		RecordingsDir: "recordings",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config failed: %v", err)
	}

	cases := []func(Config) Config{
		func(c Config) Config { c.Host = ""; return c },
		func(c Config) Config { c.Port = 0; return c },
		func(c Config) Config { c.FromNumbers = nil; return c },
		func(c Config) Config { c.ToNumber = ""; return c },
		func(c Config) Config { c.BridgeNumber = ""; return c },
		func(c Config) Config { c.RecordingsDir = ""; return c },
	}
	for i, mutate := range cases {
		if err := mutate(base).Validate(); err == nil {
			t.Fatalf("case %d: expected validation to fail", i)
		}
	}
}

func TestLoadPolicyOverlaysFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "policy.yaml")
	body := []byte("greeting_keyword: colorado\ntree_guard_ms: 5000\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	policy, err := LoadPolicy(path, classifier.DefaultPolicy())
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	if policy.GreetingKeyword != "colorado" {
		t.Fatalf("unexpected greeting keyword %q", policy.GreetingKeyword)
	}
	if policy.TreeGuard != 5*time.Second {
		t.Fatalf("unexpected tree guard %s", policy.TreeGuard)
	}
	// Untouched fields keep defaults.
	if policy.VerificationKeyword != "verification" {
		t.Fatalf("unexpected verification keyword %q", policy.VerificationKeyword)
	}
}

func TestLoadPolicyEmptyPathKeepsBase(t *testing.T) {
	t.Parallel()

	base := classifier.DefaultPolicy()
	policy, err := LoadPolicy("", base)
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	if policy != base {
		t.Fatalf("expected base policy, got %+v", policy)
	}
}

func TestLoadPolicyMissingFileFails(t *testing.T) {
	t.Parallel()

	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"), classifier.DefaultPolicy()); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	got := splitList(" +15550001, +15550002 ,,")
	if len(got) != 2 || got[0] != "+15550001" || got[1] != "+15550002" {
		t.Fatalf("unexpected list %v", got)
	}
	if splitList("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}
