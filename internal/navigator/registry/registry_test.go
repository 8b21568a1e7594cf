package registry

import (
	"fmt"
	"sync"
	"testing"
)

func TestPutGetRemove(t *testing.T) {
	t.Parallel()

	r := New()
	if err := r.Put("MZxx", "CAxx"); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	callID, ok := r.Get("MZxx")
	if !ok || callID != "CAxx" {
		t.Fatalf("get returned call=%q ok=%t", callID, ok)
	}
	r.Remove("MZxx")
	if _, ok := r.Get("MZxx"); ok {
		t.Fatalf("expected mapping to be removed")
	}
}

func TestPutRequiresIdentifiers(t *testing.T) {
	t.Parallel()

	r := New()
	if err := r.Put("", "CAxx"); err == nil {
		t.Fatalf("expected missing stream_id to fail")
	}
	if err := r.Put("MZxx", ""); err == nil {
		t.Fatalf("expected missing call_id to fail")
	}
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	t.Parallel()

	r := New()
	r.Remove("MZmissing")
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d entries", r.Len())
	}
}

func TestConcurrentAttachDetach(t *testing.T) {
	t.Parallel()

	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			streamID := fmt.Sprintf("MZ%03d", n)
			callID := fmt.Sprintf("CA%03d", n)
			if err := r.Put(streamID, callID); err != nil {
				t.Errorf("put %s failed: %v", streamID, err)
				return
			}
			got, ok := r.Get(streamID)
			if !ok || got != callID {
				t.Errorf("get %s returned call=%q ok=%t", streamID, got, ok)
			}
			if n%2 == 0 {
				r.Remove(streamID)
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 32 {
		t.Fatalf("expected 32 surviving mappings, got %d", r.Len())
	}
}
