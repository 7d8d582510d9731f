// Package mock provides test doubles for the stt package interfaces.
//
// Provider opens a fresh [Session] on every StartStream call and keeps them
// all, so tests can tell the stream opened by a reset apart from the one it
// replaced. Sessions emit transcripts either directly via Emit* or from an
// OnAudio hook that runs inside SendAudio.
//
// Example:
//
//	p := &mock.Provider{
//	    OnAudio: func(s *mock.Session, chunk []byte) { s.EmitFinal("jarvis") },
//	}
//	handle, _ := p.StartStream(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/types"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// OnAudio is installed on every session the provider opens.
	OnAudio func(s *Session, chunk []byte)

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	// Sessions holds every session opened, oldest first.
	Sessions []*Session
}

// StartStream records the call and returns a new Session, or StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	s := NewSession()
	s.Cfg = cfg
	s.OnAudio = p.OnAudio
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// SetStartStreamErr changes StartStreamErr. Thread-safe.
func (p *Provider) SetStartStreamErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamErr = err
}

// Latest returns the most recently opened session, or nil. Thread-safe.
func (p *Provider) Latest() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// StartStreamCallCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) StartStreamCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle with buffered
// transcript channels.
type Session struct {
	mu sync.Mutex

	// Cfg is the StreamConfig the session was opened with.
	Cfg stt.StreamConfig

	// PartialsCh and FinalsCh back Partials and Finals.
	PartialsCh chan types.Transcript
	FinalsCh   chan types.Transcript

	// OnAudio, if set, is called by SendAudio after the chunk is recorded.
	OnAudio func(s *Session, chunk []byte)

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SendAudioCalls holds a copy of every chunk passed to SendAudio.
	SendAudioCalls [][]byte

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession returns a Session with buffered channels.
func NewSession() *Session {
	return &Session{
		PartialsCh: make(chan types.Transcript, 64),
		FinalsCh:   make(chan types.Transcript, 64),
	}
}

// SendAudio records the call, runs OnAudio, and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	s.SendAudioCalls = append(s.SendAudioCalls, append([]byte(nil), chunk...))
	hook, err := s.OnAudio, s.SendAudioErr
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook(s, chunk)
	}
	return nil
}

// Partials returns PartialsCh.
func (s *Session) Partials() <-chan types.Transcript { return s.PartialsCh }

// Finals returns FinalsCh.
func (s *Session) Finals() <-chan types.Transcript { return s.FinalsCh }

// EmitPartial queues an interim transcript.
func (s *Session) EmitPartial(text string) {
	s.PartialsCh <- types.Transcript{Text: text}
}

// EmitFinal queues a final transcript.
func (s *Session) EmitFinal(text string) {
	s.FinalsCh <- types.Transcript{Text: text, IsFinal: true}
}

// SendAudioCallCount returns the number of SendAudio calls. Thread-safe.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Closed reports whether Close was called at least once. Thread-safe.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount > 0
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)
