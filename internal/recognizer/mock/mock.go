// Package mock provides a scripted [recognizer.Recognizer] for session tests.
//
// Each Feed call pops the next scripted step. Steps can be pushed before or
// during a test with Partial, Final, and Nothing.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/internal/recognizer"
	"github.com/MrWong99/earshot/pkg/types"
)

// Step is one scripted Feed result.
type Step struct {
	Event types.TranscriptEvent
	OK    bool
	Err   error
}

// Recognizer is a mock implementation of recognizer.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	steps  []Step
	locale types.Locale

	// ResetErr, if non-nil, is returned by Reset and the locale is unchanged.
	ResetErr error

	// FeedCalls holds a copy of every chunk passed to Feed.
	FeedCalls [][]byte

	// ResetCalls records the locale of every Reset call, including failed ones.
	ResetCalls []types.Locale

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

var _ recognizer.Recognizer = (*Recognizer)(nil)

// New returns a Recognizer bound to locale.
func New(locale types.Locale) *Recognizer {
	return &Recognizer{locale: locale}
}

// Factory returns a recognizer.Factory that hands out r.
func (r *Recognizer) Factory() recognizer.Factory {
	return func(_ context.Context, locale types.Locale) (recognizer.Recognizer, error) {
		r.mu.Lock()
		r.locale = locale
		r.mu.Unlock()
		return r, nil
	}
}

// Partial scripts a partial result for the next Feed.
func (r *Recognizer) Partial(text string) *Recognizer {
	return r.push(Step{Event: types.TranscriptEvent{Kind: types.Partial, Text: text}, OK: true})
}

// Final scripts a final result for the next Feed.
func (r *Recognizer) Final(text string) *Recognizer {
	return r.push(Step{Event: types.TranscriptEvent{Kind: types.Final, Text: text}, OK: true})
}

// Nothing scripts a Feed that yields no event.
func (r *Recognizer) Nothing() *Recognizer {
	return r.push(Step{})
}

// Fail scripts a Feed that returns err.
func (r *Recognizer) Fail(err error) *Recognizer {
	return r.push(Step{Err: err})
}

func (r *Recognizer) push(s Step) *Recognizer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, s)
	return r
}

// Feed records chunk and returns the next scripted step. An empty script
// yields no event.
func (r *Recognizer) Feed(chunk []byte) (types.TranscriptEvent, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FeedCalls = append(r.FeedCalls, append([]byte(nil), chunk...))
	if len(r.steps) == 0 {
		return types.TranscriptEvent{}, false, nil
	}
	s := r.steps[0]
	r.steps = r.steps[1:]
	return s.Event, s.OK, s.Err
}

// Reset records the call and switches the locale unless ResetErr is set.
func (r *Recognizer) Reset(locale types.Locale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResetCalls = append(r.ResetCalls, locale)
	if r.ResetErr != nil {
		return r.ResetErr
	}
	r.locale = locale
	return nil
}

// Locale reports the current locale.
func (r *Recognizer) Locale() types.Locale {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locale
}

// Close records the call.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CloseCallCount++
	return nil
}

// Resets returns a copy of ResetCalls. Thread-safe.
func (r *Recognizer) Resets() []types.Locale {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Locale(nil), r.ResetCalls...)
}

// FeedCount returns the number of Feed calls. Thread-safe.
func (r *Recognizer) FeedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.FeedCalls)
}

// Closes returns CloseCallCount. Thread-safe.
func (r *Recognizer) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.CloseCallCount
}
