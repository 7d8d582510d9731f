// Package stt defines the streaming speech-to-text contract the recognizer
// adapter is built on.
//
// A Provider opens a [SessionHandle] per recognizer binding. The handle
// accepts raw 16-bit PCM and emits interim hypotheses on Partials and
// committed utterances on Finals. Both channels are closed when the handle
// shuts down.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/earshot/pkg/types"
)

// ErrClosed is returned by [SessionHandle.SendAudio] after Close.
var ErrClosed = errors.New("stt: session closed")

// StreamConfig describes the audio format and recognition hints of a stream.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. earshot devices send 16000.
	SampleRate int

	// Channels is the number of interleaved channels. Devices send mono.
	Channels int

	// Language is the provider-specific language code ("ru", "en-US", ...).
	Language string

	// Keywords are words the recognizer should favour.
	Keywords []types.KeywordBoost
}

// SessionHandle is one live recognition stream.
type SessionHandle interface {
	// SendAudio queues a PCM chunk. The handle may retain chunk, so callers
	// must not reuse the slice.
	SendAudio(chunk []byte) error

	// Partials delivers interim transcripts.
	Partials() <-chan types.Transcript

	// Finals delivers committed transcripts.
	Finals() <-chan types.Transcript

	// Close ends the stream and releases its resources. It is idempotent.
	Close() error
}

// Provider opens recognition streams.
type Provider interface {
	// StartStream opens a stream. ctx bounds the lifetime of the stream, not
	// only its setup.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
