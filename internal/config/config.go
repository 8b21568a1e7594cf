// Package config resolves process configuration from the environment and an
// optional keyword-policy file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tiger/ivr-autopilot/internal/navigator/classifier"
)

const envSecretRefPrefix = "env://"

// ResolveSecretRef resolves a secret reference using process environment
// lookup. Supported forms are "env://VARIABLE_NAME" and "VARIABLE_NAME".
func ResolveSecretRef(ref string) (string, error) {
	return ResolveSecretRefWithLookup(ref, os.LookupEnv)
}

// ResolveSecretRefWithLookup resolves a secret reference using the supplied
// lookup function.
func ResolveSecretRefWithLookup(ref string, lookup func(string) (string, bool)) (string, error) {
	name := strings.TrimSpace(ref)
	name = strings.TrimPrefix(name, envSecretRefPrefix)
	if name == "" {
		return "", fmt.Errorf("secret_ref is required")
	}
	if lookup == nil {
		return "", fmt.Errorf("secret lookup function is required")
	}
	value, ok := lookup(name)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("secret_ref %q resolved empty value", name)
	}
	return value, nil
}

// ResolveEnvValue resolves a config value using literal and secret-ref env
// variables. `fallback` applies when the literal env var is empty.
func ResolveEnvValue(literalEnvVar string, secretRefEnvVar string, fallback string) string {
	literal := strings.TrimSpace(os.Getenv(literalEnvVar))
	if literal == "" {
		literal = fallback
	}
	if secretRefEnvVar == "" {
		return literal
	}
	secretRef := strings.TrimSpace(os.Getenv(secretRefEnvVar))
	if secretRef == "" {
		return literal
	}
	value, err := ResolveSecretRef(secretRef)
	if err != nil {
		return literal
	}
	return value
}

// RedactSecret returns a deterministic redacted marker for non-empty secret
// material.
func RedactSecret(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return "***redacted***"
}

// Config is the process-level navigator configuration.
type Config struct {
	// Host is the public hostname the telephony provider reaches this
	// process on, without scheme.
	Host          string
	Port          int
	FromNumbers   []string
	ToNumber      string
	BridgeNumber  string
	RecordingsDir string
	AutoCall      bool
}

// FromEnv reads navigator settings from IVRNAV_* variables.
func FromEnv() Config {
	port := 3000
	if raw := strings.TrimSpace(os.Getenv("IVRNAV_PORT")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			port = parsed
		}
	}
	return Config{
		Host:          strings.TrimSpace(os.Getenv("IVRNAV_HOST")),
		Port:          port,
		FromNumbers:   splitList(os.Getenv("IVRNAV_FROM_NUMBERS")),
		ToNumber:      strings.TrimSpace(os.Getenv("IVRNAV_TO_NUMBER")),
		BridgeNumber:  strings.TrimSpace(os.Getenv("IVRNAV_BRIDGE_NUMBER")),
		RecordingsDir: ResolveEnvValue("IVRNAV_RECORDINGS_DIR", "", "recordings"),
	}
}

// Validate enforces the settings one attempt cannot run without.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("public host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	if len(c.FromNumbers) == 0 {
		return fmt.Errorf("at least one origin number is required")
	}
	if c.ToNumber == "" {
		return fmt.Errorf("destination number is required")
	}
	if c.BridgeNumber == "" {
		return fmt.Errorf("bridge number is required")
	}
	if c.RecordingsDir == "" {
		return fmt.Errorf("recordings directory is required")
	}
	return nil
}

// filePolicy is the YAML schema for keyword-policy overrides. Empty fields
// keep the compiled defaults.
type filePolicy struct {
	GreetingKeyword       string `yaml:"greeting_keyword"`
	GreetingDigits        string `yaml:"greeting_digits"`
	VerificationKeyword   string `yaml:"verification_keyword"`
	AcknowledgmentKeyword string `yaml:"acknowledgment_keyword"`
	TreeDigits            string `yaml:"tree_digits"`
	HoldKeyword           string `yaml:"hold_keyword"`
	LimitKeyword          string `yaml:"limit_keyword"`
	TreeGuardMS           int    `yaml:"tree_guard_ms"`
}

// LoadPolicy overlays a YAML policy file onto the base policy. An empty path
// returns the base unchanged.
func LoadPolicy(path string, base classifier.Policy) (classifier.Policy, error) {
	if path == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read policy file: %w", err)
	}
	var overlay filePolicy
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return base, fmt.Errorf("parse policy file: %w", err)
	}
	if overlay.GreetingKeyword != "" {
		base.GreetingKeyword = overlay.GreetingKeyword
	}
	if overlay.GreetingDigits != "" {
		base.GreetingDigits = overlay.GreetingDigits
	}
	if overlay.VerificationKeyword != "" {
		base.VerificationKeyword = overlay.VerificationKeyword
	}
	if overlay.AcknowledgmentKeyword != "" {
		base.AcknowledgmentKeyword = overlay.AcknowledgmentKeyword
	}
	if overlay.TreeDigits != "" {
		base.TreeDigits = overlay.TreeDigits
	}
	if overlay.HoldKeyword != "" {
		base.HoldKeyword = overlay.HoldKeyword
	}
	if overlay.LimitKeyword != "" {
		base.LimitKeyword = overlay.LimitKeyword
	}
	if overlay.TreeGuardMS > 0 {
		base.TreeGuard = time.Duration(overlay.TreeGuardMS) * time.Millisecond
	}
	return base, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
