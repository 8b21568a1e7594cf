package validation

import (
	"strings"
	"testing"
)

func TestValidateFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{name: "connected", raw: `{"event":"connected","protocol":"Call","version":"1.0.0"}`},
		{name: "start", raw: `{"event":"start","streamSid":"MZ1","start":{"callSid":"CA1"}}`},
		{name: "media", raw: `{"event":"media","streamSid":"MZ1","media":{"payload":"fn5+fg=="}}`},
		{name: "stop", raw: `{"event":"stop","streamSid":"MZ1"}`},
		{name: "missing event", raw: `{"streamSid":"MZ1"}`, wantErr: "event is required"},
		{name: "unknown event", raw: `{"event":"kickoff"}`, wantErr: "unknown frame event"},
		{name: "start without stream", raw: `{"event":"start"}`, wantErr: "requires streamSid"},
		{name: "media without payload", raw: `{"event":"media","streamSid":"MZ1","media":{}}`, wantErr: "requires a payload"},
		{name: "media bad base64", raw: `{"event":"media","streamSid":"MZ1","media":{"payload":"!!!"}}`, wantErr: "not base64"},
		{name: "unknown field", raw: `{"event":"stop","streamSid":"MZ1","bogus":true}`, wantErr: "unknown field"},
		{name: "trailing content", raw: `{"event":"stop","streamSid":"MZ1"}{}`, wantErr: "trailing"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateFrame([]byte(tc.raw))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}
