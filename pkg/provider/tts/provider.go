// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (OpenAI speech, ElevenLabs)
// and presents a uniform streaming interface. Replies in earshot are a single
// short sentence, so callers usually go through [Collect], which feeds one
// text fragment and gathers the complete PCM payload for one speech frame.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"bytes"
	"context"
	"errors"

	"github.com/MrWong99/earshot/pkg/types"
)

// ErrNoAudio is returned by [Collect] when the provider closed its audio
// channel without producing a single byte.
var ErrNoAudio = errors.New("tts: no audio produced")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits raw PCM audio byte slices as they are
	// synthesised.
	//
	// The returned audio channel is closed by the implementation when all text
	// has been synthesised, when synthesis fails, or when ctx is cancelled.
	// The caller must drain the audio channel.
	//
	// Returns a non-nil error only if the stream cannot be started.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)
}

// Collect synthesises text with p and returns the concatenated PCM audio.
// It returns ctx.Err() if ctx ends before the stream completes and
// [ErrNoAudio] if the stream produced nothing.
func Collect(ctx context.Context, p Provider, text string, voice types.VoiceProfile) ([]byte, error) {
	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	audioCh, err := p.SynthesizeStream(ctx, textCh, voice)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for chunk := range audioCh {
		buf.Write(chunk)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, ErrNoAudio
	}
	return buf.Bytes(), nil
}
