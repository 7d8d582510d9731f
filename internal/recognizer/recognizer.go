// Package recognizer adapts a streaming [stt.Provider] to the synchronous,
// chunk-at-a-time contract the session read loop needs.
//
// Each connection owns one [Recognizer]. Feed pushes audio into the live
// stream and reports at most one transcript event without blocking. Reset
// replaces the stream, dropping any utterance in progress, and is how wake,
// sleep, and language switches discard stale audio.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/types"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("recognizer: closed")

// Recognizer converts audio into transcript events for a single session.
type Recognizer interface {
	// Feed consumes one chunk of PCM. ok is false when nothing new is
	// available yet. An empty Final is still reported.
	Feed(chunk []byte) (ev types.TranscriptEvent, ok bool, err error)

	// Reset discards all buffered audio and hypotheses and rebinds to locale.
	Reset(locale types.Locale) error

	// Locale reports the locale of the live stream.
	Locale() types.Locale

	// Close releases the live stream.
	Close() error
}

// Factory opens a Recognizer for a new session. ctx bounds the lifetime of
// every stream the Recognizer opens.
type Factory func(ctx context.Context, locale types.Locale) (Recognizer, error)

// Config controls how locales map onto provider streams.
type Config struct {
	// SampleRate of the inbound audio. Defaults to 16000.
	SampleRate int

	// Languages maps a locale to the provider's language code. A locale
	// without an entry uses its own code.
	Languages map[types.Locale]string

	// Keywords returns the words to boost for a locale. Optional.
	Keywords func(types.Locale) []string

	// KeywordBoost is the boost applied to every keyword. Defaults to 2.
	KeywordBoost float64
}

// NewFactory returns a Factory that builds an [Adapter] per session.
func NewFactory(provider stt.Provider, cfg Config) Factory {
	return func(ctx context.Context, locale types.Locale) (Recognizer, error) {
		return New(ctx, provider, locale, cfg)
	}
}

// Adapter is the [Recognizer] backed by an [stt.Provider].
type Adapter struct {
	ctx      context.Context
	provider stt.Provider
	cfg      Config

	mu     sync.Mutex
	handle stt.SessionHandle
	locale types.Locale
	closed bool
}

var _ Recognizer = (*Adapter)(nil)

// New opens the first stream for locale.
func New(ctx context.Context, provider stt.Provider, locale types.Locale, cfg Config) (*Adapter, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.KeywordBoost == 0 {
		cfg.KeywordBoost = 2
	}
	a := &Adapter{ctx: ctx, provider: provider, cfg: cfg}
	h, err := a.open(locale)
	if err != nil {
		return nil, err
	}
	a.handle, a.locale = h, locale
	return a, nil
}

// Feed sends chunk to the live stream, then drains without blocking. The
// oldest queued final wins over any partials; otherwise the newest non-empty
// partial is reported. A stream that died is reopened once.
func (a *Adapter) Feed(chunk []byte) (types.TranscriptEvent, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return types.TranscriptEvent{}, false, ErrClosed
	}

	// Providers may retain the slice past this call.
	buf := append([]byte(nil), chunk...)
	if err := a.handle.SendAudio(buf); err != nil {
		slog.Warn("recognizer: stream lost, reopening", "locale", a.locale, "err", err)
		if err := a.resetLocked(a.locale); err != nil {
			return types.TranscriptEvent{}, false, fmt.Errorf("recognizer: reopen after send failure: %w", err)
		}
		if err := a.handle.SendAudio(buf); err != nil {
			return types.TranscriptEvent{}, false, fmt.Errorf("recognizer: send audio: %w", err)
		}
	}
	ev, ok := drain(a.handle)
	return ev, ok, nil
}

// drain collects whatever the stream has produced so far. ok is false when
// there was neither a final nor a non-empty partial.
func drain(h stt.SessionHandle) (types.TranscriptEvent, bool) {
	var (
		partial string
		seen    bool
	)
	partials := h.Partials()
	for partials != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if t.Text != "" {
				partial, seen = t.Text, true
			}
		default:
			partials = nil
		}
	}

	select {
	case t, ok := <-h.Finals():
		if ok {
			return types.TranscriptEvent{Kind: types.Final, Text: t.Text}, true
		}
	default:
	}
	if seen {
		return types.TranscriptEvent{Kind: types.Partial, Text: partial}, true
	}
	return types.TranscriptEvent{}, false
}

// Reset opens a stream for locale and only then closes the old one, so a
// failed reset leaves the session with a working recognizer.
func (a *Adapter) Reset(locale types.Locale) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	return a.resetLocked(locale)
}

func (a *Adapter) resetLocked(locale types.Locale) error {
	h, err := a.open(locale)
	if err != nil {
		return err
	}
	old := a.handle
	a.handle, a.locale = h, locale
	if err := old.Close(); err != nil {
		slog.Debug("recognizer: close replaced stream", "err", err)
	}
	return nil
}

// Locale reports the locale of the live stream.
func (a *Adapter) Locale() types.Locale {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locale
}

// Close closes the live stream. It is idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.handle.Close(); err != nil {
		return fmt.Errorf("recognizer: close: %w", err)
	}
	return nil
}

func (a *Adapter) open(locale types.Locale) (stt.SessionHandle, error) {
	lang := a.cfg.Languages[locale]
	if lang == "" {
		lang = string(locale)
	}
	var kws []types.KeywordBoost
	if a.cfg.Keywords != nil {
		for _, w := range a.cfg.Keywords(locale) {
			kws = append(kws, types.KeywordBoost{Keyword: w, Boost: a.cfg.KeywordBoost})
		}
	}

	h, err := a.provider.StartStream(a.ctx, stt.StreamConfig{
		SampleRate: a.cfg.SampleRate,
		Channels:   1,
		Language:   lang,
		Keywords:   kws,
	})
	if err != nil {
		return nil, fmt.Errorf("recognizer: start %s stream: %w", locale, err)
	}
	return h, nil
}
