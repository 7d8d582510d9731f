// Package whisper runs speech recognition locally with the whisper.cpp CGO
// bindings. It implements [stt.Provider].
//
// One model is loaded per language at startup and shared read-only by every
// stream. Each inference runs on its own whisper context, so concurrent
// sessions never interfere. The whisper.cpp static library and headers must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
//
// whisper.cpp is not a streaming recognizer. A stream gates the audio by
// energy, transcribes the speech buffered so far at a fixed cadence to
// produce partials, and transcribes the whole utterance once trailing
// silence closes it. Audio at other rates is resampled to the 16 kHz whisper
// expects before inference.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/types"
)

const (
	defaultSampleRate = 16000

	// defaultRMSThreshold separates speech from background noise, in 16-bit
	// sample units.
	defaultRMSThreshold = 300.0

	defaultSilenceMs = 500
	defaultMaxMs     = 10_000
	defaultPartialMs = 1_000
)

var _ stt.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithSilenceMs sets the trailing silence that closes an utterance.
func WithSilenceMs(ms int) Option {
	return func(p *Provider) { p.silenceMs = ms }
}

// WithMaxUtteranceMs forces a final once this much audio is buffered.
func WithMaxUtteranceMs(ms int) Option {
	return func(p *Provider) { p.maxMs = ms }
}

// WithPartialEveryMs sets how much new speech triggers an interim
// transcription. Zero disables partials.
func WithPartialEveryMs(ms int) Option {
	return func(p *Provider) { p.partialMs = ms }
}

// WithRMSThreshold sets the energy gate.
func WithRMSThreshold(v float64) Option {
	return func(p *Provider) { p.threshold = v }
}

// Provider holds one loaded model per language.
type Provider struct {
	models    map[string]whisperlib.Model
	fallback  string
	threshold float64
	silenceMs int
	maxMs     int
	partialMs int
}

// New loads a model for each language in modelPaths (language code to model
// file). Streams for a language without a model use defaultLang's model.
// Call Close to release the models.
func New(modelPaths map[string]string, defaultLang string, opts ...Option) (*Provider, error) {
	if len(modelPaths) == 0 {
		return nil, errors.New("whisper: at least one model path is required")
	}
	if _, ok := modelPaths[defaultLang]; !ok {
		return nil, fmt.Errorf("whisper: no model for default language %q", defaultLang)
	}

	p := &Provider{
		models:    make(map[string]whisperlib.Model, len(modelPaths)),
		fallback:  defaultLang,
		threshold: defaultRMSThreshold,
		silenceMs: defaultSilenceMs,
		maxMs:     defaultMaxMs,
		partialMs: defaultPartialMs,
	}
	for lang, path := range modelPaths {
		if path == "" {
			_ = p.Close()
			return nil, fmt.Errorf("whisper: empty model path for %q", lang)
		}
		m, err := whisperlib.New(path)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("whisper: load model %q: %w", path, err)
		}
		p.models[lang] = m
		slog.Info("whisper: model loaded", "language", lang, "path", path)
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases every loaded model.
func (p *Provider) Close() error {
	var errs []error
	for lang, m := range p.models {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("whisper: close %s model: %w", lang, err))
		}
	}
	return errors.Join(errs...)
}

// StartStream opens a stream on the model for cfg.Language. Only mono audio
// is accepted.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	if cfg.Channels > 1 {
		return nil, fmt.Errorf("whisper: %d channels not supported, want mono", cfg.Channels)
	}

	lang := cfg.Language
	model, ok := p.models[lang]
	if !ok {
		lang = p.fallback
		model = p.models[lang]
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}

	s := &session{
		model:    model,
		language: lang,
		seg: segmenter{
			sampleRate:   sr,
			threshold:    p.threshold,
			silenceMs:    p.silenceMs,
			maxMs:        p.maxMs,
			partialEvery: p.partialMs,
		},
		audio:    make(chan []byte, 256),
		partials: make(chan types.Transcript, 16),
		finals:   make(chan types.Transcript, 16),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

type session struct {
	model    whisperlib.Model
	language string
	seg      segmenter // owned by run

	audio    chan []byte
	partials chan types.Transcript
	finals   chan types.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return stt.ErrClosed
	}
}

func (s *session) Partials() <-chan types.Transcript { return s.partials }

func (s *session) Finals() <-chan types.Transcript { return s.finals }

// Close stops the stream. Speech still buffered is transcribed first.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			if pcm := s.seg.flush(); pcm != nil {
				s.emit(s.finals, pcm, true)
			}
			return
		case chunk := <-s.audio:
			switch act, pcm := s.seg.push(chunk); act {
			case actPartial:
				s.emit(s.partials, pcm, false)
			case actFinal:
				s.emit(s.finals, pcm, true)
			}
		}
	}
}

func (s *session) emit(out chan types.Transcript, pcm []byte, final bool) {
	text, err := s.infer(pcm)
	if err != nil {
		slog.Error("whisper: inference failed", "language", s.language, "err", err)
		return
	}
	if text == "" && !final {
		return
	}
	select {
	case out <- types.Transcript{Text: text, IsFinal: final}:
	default:
		slog.Debug("whisper: transcript dropped", "final", final)
	}
}

func (s *session) infer(pcm []byte) (string, error) {
	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whisper: set language failed, using model default", "language", s.language, "err", err)
	}
	pcm = audio.Resample(pcm, s.seg.sampleRate, defaultSampleRate)
	if err := wctx.Process(pcmToFloat32(pcm), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if t := strings.TrimSpace(segment.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}
