// Package mock provides an in-memory journal.Recorder for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/internal/journal"
)

// Recorder keeps every entry in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []journal.Entry
}

var _ journal.Recorder = (*Recorder)(nil)

// Record implements journal.Recorder.
func (r *Recorder) Record(_ context.Context, e journal.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Entries returns a copy of all recorded entries.
func (r *Recorder) Entries() []journal.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]journal.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Kinds returns the kind of every entry in order.
func (r *Recorder) Kinds() []journal.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]journal.Kind, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Kind
	}
	return out
}
