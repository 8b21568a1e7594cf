package main

import (
	"context"
	"io"
	"testing"
)

func TestRunRejectsUnknownFlags(t *testing.T) {
	t.Parallel()

	code, err := run(context.Background(), []string{"-bogus"}, io.Discard)
	if err == nil {
		t.Fatalf("expected flag parse error")
	}
	if code != 2 {
		t.Fatalf("expected usage exit code, got %d", code)
	}
}

func TestRunRejectsIncompleteConfig(t *testing.T) {
	t.Parallel()

	// No host, numbers, or bridge destination.
	code, err := run(context.Background(), []string{"-host", ""}, io.Discard)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if code != 2 {
		t.Fatalf("expected usage exit code, got %d", code)
	}
}
