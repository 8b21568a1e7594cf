// Package registry maps live media-stream identifiers to the call they belong to.
package registry

import (
	"fmt"
	"sync"
)

// Registry is the stream→call correlation table shared by all stream handlers.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{calls: map[string]string{}}
}

// Put associates a live stream with its owning call.
func (r *Registry) Put(streamID, callID string) error {
	if streamID == "" || callID == "" {
		return fmt.Errorf("stream_id and call_id are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[streamID] = callID
	return nil
}

// Get resolves the call owning a stream.
func (r *Registry) Get(streamID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	callID, ok := r.calls[streamID]
	return callID, ok
}

// Remove drops the mapping for a closed stream. Removing an absent
// stream is a no-op.
func (r *Registry) Remove(streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, streamID)
}

// Len reports the number of live stream mappings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}
