// Package types defines the value types shared between the earshot providers,
// the recognizer adapter, and the session layer.
//
// Each package keeps its own domain types. Only data structures that cross
// package boundaries live here, to avoid circular imports.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Locale identifies the active interaction language of a session. It selects
// the recognizer model, the command bucket tried first, and the language of
// acknowledgement phrases.
type Locale string

const (
	// LocaleRU is Russian. It is the default language of a new session.
	LocaleRU Locale = "ru"

	// LocaleEN is English.
	LocaleEN Locale = "en"
)

// Locales lists every supported locale in a stable order.
var Locales = []Locale{LocaleRU, LocaleEN}

// ParseLocale converts a case-insensitive locale code into a [Locale].
func ParseLocale(s string) (Locale, error) {
	switch Locale(strings.ToLower(strings.TrimSpace(s))) {
	case LocaleRU:
		return LocaleRU, nil
	case LocaleEN:
		return LocaleEN, nil
	default:
		return "", fmt.Errorf("types: unknown locale %q", s)
	}
}

// Valid reports whether l is one of the supported locales.
func (l Locale) Valid() bool {
	return l == LocaleRU || l == LocaleEN
}

// Other returns the remaining supported locale.
func (l Locale) Other() Locale {
	if l == LocaleEN {
		return LocaleRU
	}
	return LocaleEN
}

// Pick returns ru when l is [LocaleRU] and en otherwise. It keeps bilingual
// phrase pairs readable at the call site.
func (l Locale) Pick(ru, en string) string {
	if l == LocaleRU {
		return ru
	}
	return en
}

// TranscriptKind distinguishes interim from committed recognizer output.
type TranscriptKind int

const (
	// Partial is an interim hypothesis that may still change.
	Partial TranscriptKind = iota + 1

	// Final is a committed utterance.
	Final
)

// String implements [fmt.Stringer].
func (k TranscriptKind) String() string {
	switch k {
	case Partial:
		return "partial"
	case Final:
		return "final"
	default:
		return "unknown"
	}
}

// TranscriptEvent is what the recognizer adapter reports after consuming a
// chunk of audio. Text is raw recognizer output and may be empty.
type TranscriptEvent struct {
	Kind TranscriptKind
	Text string
}

// Transcript is a speech-to-text result emitted by an STT provider stream.
// Both partial and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is an authoritative result.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report confidence.
	Confidence float64

	// Timestamp is the offset of the utterance start from the stream start.
	Timestamp time.Duration
}

// KeywordBoost asks the recognizer to favour a word it would otherwise
// mis-hear. Wake words are boosted this way.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}

// Message is a single turn of a conversation sent to an LLM.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string

	// Content is the text of the turn.
	Content string
}

// Usage reports token consumption of one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// VoiceProfile selects the synthesized voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier ("onyx" for OpenAI, a
	// voice ID for ElevenLabs).
	ID string

	// Name is a human-readable label used in logs.
	Name string

	// Provider names the TTS backend this voice belongs to.
	Provider string
}
