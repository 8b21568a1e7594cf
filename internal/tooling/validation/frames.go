// Package validation checks media-stream frame fixtures against both the
// typed decoder and the published JSON schema, so the two can never drift
// apart silently.
package validation

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tiger/ivr-autopilot/internal/ingest"
)

// FrameValidationSummary reports fixture validation totals.
type FrameValidationSummary struct {
	Total    int
	Failed   int
	Failures []string
}

// ValidateFrameFixtures validates the valid/invalid fixture sets under root
// against the default schema location.
func ValidateFrameFixtures(root string) (FrameValidationSummary, error) {
	return ValidateFrameFixturesWithSchema(filepath.Join("docs", "MediaStreamFrames.schema.json"), root)
}

// ValidateFrameFixturesWithSchema walks root/frame/{valid,invalid} and checks
// every fixture with the typed decoder and the JSON schema. A valid fixture
// must pass both; an invalid fixture must fail both.
func ValidateFrameFixturesWithSchema(schemaPath, root string) (FrameValidationSummary, error) {
	summary := FrameValidationSummary{}
	compiled, err := compileSchema(schemaPath)
	if err != nil {
		return summary, err
	}

	for _, validity := range []struct {
		dir        string
		shouldPass bool
	}{
		{dir: "valid", shouldPass: true},
		{dir: "invalid", shouldPass: false},
	} {
		dir := filepath.Join(root, "frame", validity.dir)
		items, err := os.ReadDir(dir)
		if err != nil {
			return summary, fmt.Errorf("read fixtures %s: %w", dir, err)
		}
		names := make([]string, 0, len(items))
		for _, item := range items {
			if !item.IsDir() {
				names = append(names, item.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			summary.Total++
			filePath := filepath.Join(dir, name)
			raw, readErr := os.ReadFile(filePath)
			if readErr != nil {
				summary.Failed++
				summary.Failures = append(summary.Failures, fmt.Sprintf("%s: read error: %v", filePath, readErr))
				continue
			}

			typedErr := ValidateFrame(raw)
			schemaErr := validateAgainstSchema(compiled, raw)

			if validity.shouldPass {
				if typedErr != nil || schemaErr != nil {
					summary.Failed++
					summary.Failures = append(summary.Failures, fmt.Sprintf("%s: expected valid, typed_err=%v schema_err=%v", filePath, typedErr, schemaErr))
				}
				continue
			}

			if typedErr == nil || schemaErr == nil {
				summary.Failed++
				summary.Failures = append(summary.Failures, fmt.Sprintf("%s: expected invalid by both validators, typed_err=%v schema_err=%v", filePath, typedErr, schemaErr))
			}
		}
	}

	return summary, nil
}

// ValidateFrame strictly decodes one frame and enforces the per-event
// requirements the schema also expresses.
func ValidateFrame(raw []byte) error {
	var frame ingest.Frame
	if err := strictUnmarshal(raw, &frame); err != nil {
		return err
	}
	switch frame.Event {
	case "connected", "stop":
	case "start":
		if frame.StreamSid == "" {
			return fmt.Errorf("start frame requires streamSid")
		}
	case "media":
		if frame.StreamSid == "" {
			return fmt.Errorf("media frame requires streamSid")
		}
		if frame.Media == nil || frame.Media.Payload == "" {
			return fmt.Errorf("media frame requires a payload")
		}
		if _, err := base64.StdEncoding.DecodeString(frame.Media.Payload); err != nil {
			return fmt.Errorf("media payload is not base64: %w", err)
		}
	case "mark":
	case "":
		return fmt.Errorf("frame event is required")
	default:
		return fmt.Errorf("unknown frame event %q", frame.Event)
	}
	return nil
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	absSchemaPath, err := filepath.Abs(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("resolve schema path: %w", err)
	}
	if _, err := os.Stat(absSchemaPath); err != nil {
		return nil, fmt.Errorf("schema file unavailable at %s: %w", absSchemaPath, err)
	}

	compiler := jsonschema.NewCompiler()
	f, err := os.Open(absSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("open schema file: %w", err)
	}
	defer f.Close()
	if err := compiler.AddResource(absSchemaPath, f); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(absSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func validateAgainstSchema(schema *jsonschema.Schema, raw []byte) error {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}

func RenderSummary(summary FrameValidationSummary) string {
	lines := []string{fmt.Sprintf("frame fixtures: total=%d failed=%d", summary.Total, summary.Failed)}
	if len(summary.Failures) > 0 {
		lines = append(lines, "failures:")
		for _, f := range summary.Failures {
			lines = append(lines, "- "+f)
		}
	}
	return strings.Join(lines, "\n")
}

func strictUnmarshal(raw []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err == nil {
		return fmt.Errorf("unexpected trailing JSON content")
	}
	return nil
}
