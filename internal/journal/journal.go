// Package journal records what happened in each session for later audit:
// wake and sleep transitions, language switches, dispatched commands, and
// conversational replies. The journal is write-only; nothing in earshot reads
// it back.
package journal

import (
	"context"
	"time"

	"github.com/MrWong99/earshot/pkg/types"
)

// Kind classifies an [Entry].
type Kind string

const (
	KindConnect    Kind = "connect"
	KindDisconnect Kind = "disconnect"
	KindWake       Kind = "wake"
	KindSleep      Kind = "sleep"
	KindLanguage   Kind = "language"
	KindCommand    Kind = "command"
	KindReply      Kind = "reply"
)

// Entry is one journal row.
type Entry struct {
	Time      time.Time
	SessionID string
	Kind      Kind
	Locale    types.Locale

	// Utterance is what the user said, if the entry was caused by speech.
	Utterance string

	// Response is what earshot answered.
	Response string

	// Detail carries kind-specific data: the action ID and status for
	// commands, the source ("marker" or "voice") for language switches.
	Detail string
}

// Recorder accepts journal entries. Record must not block the caller for
// long and never fails the session; implementations log their own errors.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Nop discards every entry.
type Nop struct{}

// Record implements [Recorder].
func (Nop) Record(context.Context, Entry) {}
