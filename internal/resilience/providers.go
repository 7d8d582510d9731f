package resilience

import (
	"context"

	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/types"
)

// LLMFallback is an [llm.Provider] that fails over across backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an LLMFallback with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	cfg.Kind = "llm"
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.group.AddFallback(name, p) }

// Complete asks the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(ctx, f.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// STTFallback is an [stt.Provider] that fails over when a stream cannot be
// opened. A stream that fails after opening is not moved.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an STTFallback with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	cfg.Kind = "stt"
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.group.AddFallback(name, p) }

// StartStream opens a stream on the first healthy backend.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return Call(ctx, f.group, func(ctx context.Context, p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

// TTSFallback is a [tts.Provider] that fails over across backends.
//
// The text channel can only be read once, so the whole text is collected
// before the first attempt and replayed to each backend. A backend counts as
// failed when it cannot start or when its stream ends without audio. Once the
// first chunk arrives the stream is committed to that backend.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a TTSFallback with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	cfg.Kind = "tts"
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) { f.group.AddFallback(name, p) }

// SynthesizeStream implements [tts.Provider].
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	var fragments []string
	for {
		select {
		case frag, ok := <-text:
			if !ok {
				return f.synthesize(ctx, fragments, voice)
			}
			fragments = append(fragments, frag)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (f *TTSFallback) synthesize(ctx context.Context, fragments []string, voice types.VoiceProfile) (<-chan []byte, error) {
	return Call(ctx, f.group, func(ctx context.Context, p tts.Provider) (<-chan []byte, error) {
		replay := make(chan string, len(fragments))
		for _, frag := range fragments {
			replay <- frag
		}
		close(replay)

		audio, err := p.SynthesizeStream(ctx, replay, voice)
		if err != nil {
			return nil, err
		}
		var first []byte
		select {
		case chunk, ok := <-audio:
			if !ok {
				return nil, tts.ErrNoAudio
			}
			first = chunk
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		out := make(chan []byte, 1)
		go func() {
			defer close(out)
			out <- first
			for chunk := range audio {
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	})
}
