// Package session runs the per-connection voice protocol: it feeds inbound
// audio to the recognizer, decides from each transcript whether the user is
// addressing the assistant, and routes what they said to a whitelisted
// command or to the reply engine.
//
// A Session is SLEEPING until it hears a wake word and AWAKE until it hears a
// sleep word. All state except the conversation context and the turn
// generation is owned by the read loop in [Session.Run].
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/earshot/internal/command"
	"github.com/MrWong99/earshot/internal/journal"
	"github.com/MrWong99/earshot/internal/lexicon"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/playback"
	"github.com/MrWong99/earshot/internal/protocol"
	"github.com/MrWong99/earshot/internal/recognizer"
	"github.com/MrWong99/earshot/internal/text"
	"github.com/MrWong99/earshot/pkg/types"
)

const (
	defaultReadBuffer = 4096
	defaultTurnQueue  = 8
)

// Commander runs whitelisted commands. *command.Dispatcher implements it.
type Commander interface {
	Dispatch(ctx context.Context, locale types.Locale, raw string) (command.Result, bool)
}

// Replier answers free-form utterances. *reply.Engine implements it.
type Replier interface {
	Reply(ctx context.Context, history []types.Message, utterance string) (string, error)
	Fallback(locale types.Locale) string
}

// Speaker queues responses for playback. *playback.Mailbox implements it.
type Speaker interface {
	Enqueue(item playback.Item) bool
	Forget(sessionID string)
}

// Config holds the collaborators and tunables shared by every session.
type Config struct {
	// Lexicon supplies wake, sleep, and language-switch vocabularies.
	// Defaults to lexicon.New().
	Lexicon *lexicon.Lexicon

	// Commands is optional. Without it every utterance goes to Replies.
	Commands Commander

	// Replies is required.
	Replies Replier

	// Playback is required.
	Playback Speaker

	// Journal defaults to journal.Nop.
	Journal journal.Recorder

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// Language is the initial locale. Defaults to types.LocaleRU.
	Language types.Locale

	// HistoryLimit caps the conversation context. Default: 10.
	HistoryLimit int

	// TurnQueue is the number of content turns that may wait for the turn
	// worker. Default: 8.
	TurnQueue int

	// ReadBuffer is the socket read size in bytes. Default: 4096.
	ReadBuffer int
}

func (c *Config) applyDefaults() error {
	if c.Replies == nil {
		return errors.New("session: Replies must not be nil")
	}
	if c.Playback == nil {
		return errors.New("session: Playback must not be nil")
	}
	if c.Lexicon == nil {
		c.Lexicon = lexicon.New()
	}
	if c.Journal == nil {
		c.Journal = journal.Nop{}
	}
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}
	if !c.Language.Valid() {
		c.Language = types.LocaleRU
	}
	if c.TurnQueue <= 0 {
		c.TurnQueue = defaultTurnQueue
	}
	if c.ReadBuffer <= 0 {
		c.ReadBuffer = defaultReadBuffer
	}
	return nil
}

// turn is one content utterance waiting for the turn worker.
type turn struct {
	gen    uint64
	locale types.Locale
	text   string
}

// Session is one connected device.
type Session struct {
	id      string
	conn    io.ReadWriter
	out     *protocol.Writer
	rec     recognizer.Recognizer
	cfg     Config
	lex     *lexicon.Lexicon
	conv    *Conversation
	scanner *protocol.Scanner
	log     *slog.Logger

	// Owned by the read loop.
	language          types.Locale
	awake             bool
	suppressNextFinal bool
	listening         bool

	// turnMu makes a generation bump atomic with the check-then-enqueue of
	// a turn result.
	turnMu     sync.Mutex
	gen        atomic.Uint64
	alive      atomic.Bool
	writeErr   atomic.Pointer[error]
	closeOnce  sync.Once
	turns      chan turn
	workerDone chan struct{}
}

var _ playback.Sink = (*Session)(nil)

// New creates a session that reads audio from conn and writes the outbound
// protocol to it. The session owns rec and closes it when Run returns. The
// caller owns conn; the session closes it only after a failed write.
func New(id string, conn io.ReadWriter, rec recognizer.Recognizer, cfg Config) (*Session, error) {
	if rec == nil {
		return nil, errors.New("session: recognizer must not be nil")
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &Session{
		id:         id,
		conn:       conn,
		out:        protocol.NewWriter(conn),
		rec:        rec,
		cfg:        cfg,
		lex:        cfg.Lexicon,
		conv:       NewConversation(cfg.HistoryLimit),
		scanner:    protocol.NewScanner(),
		log:        slog.With("session", id),
		language:   cfg.Language,
		turns:      make(chan turn, cfg.TurnQueue),
		workerDone: make(chan struct{}),
	}, nil
}

// ID implements playback.Sink.
func (s *Session) ID() string { return s.id }

// Alive implements playback.Sink. It is false once Run has returned.
func (s *Session) Alive() bool { return s.alive.Load() }

// WriteLine implements playback.Sink.
func (s *Session) WriteLine(line string) error { return s.failed(s.out.WriteLine(line)) }

// WriteSpeech implements playback.Sink.
func (s *Session) WriteSpeech(pcm []byte) error { return s.failed(s.out.WriteSpeech(pcm)) }

// failed records the first outbound write error and closes the connection
// if it can be closed, which ends the read loop. The device is expected to
// reconnect.
func (s *Session) failed(err error) error {
	if err == nil {
		return nil
	}
	s.writeErr.CompareAndSwap(nil, &err)
	s.closeOnce.Do(func() {
		if c, ok := s.conn.(io.Closer); ok {
			c.Close()
		}
	})
	return err
}

func (s *Session) writeFailure() error {
	if p := s.writeErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Run reads the connection until EOF, a read or write error, or a recognizer
// failure.
// It returns nil on a clean disconnect. On return the recognizer is closed,
// the turn worker has stopped, and pending playback is dropped.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(observe.WithSession(ctx, s.id))
	defer cancel()

	s.start(ctx)
	defer s.stop(ctx)

	s.record(ctx, journal.Entry{Kind: journal.KindConnect})
	s.emit(protocol.TokenSleeping)
	s.emit(protocol.TokenListeningOff)

	buf := make([]byte, s.cfg.ReadBuffer)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			if ferr := s.feed(ctx, buf[:n]); ferr != nil {
				return ferr
			}
		}
		if werr := s.writeFailure(); werr != nil {
			return fmt.Errorf("session: %w", werr)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("session: read: %w", err)
		}
	}
}

func (s *Session) start(ctx context.Context) {
	s.alive.Store(true)
	s.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	go s.runTurns(ctx)
}

func (s *Session) stop(ctx context.Context) {
	s.alive.Store(false)
	close(s.turns)
	<-s.workerDone
	if err := s.rec.Close(); err != nil {
		s.log.Debug("session: close recognizer", "err", err)
	}
	s.cfg.Playback.Forget(s.id)
	s.cfg.Metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	s.record(context.WithoutCancel(ctx), journal.Entry{Kind: journal.KindDisconnect})
}

// feed splits chunk into markers and audio and processes them in order.
func (s *Session) feed(ctx context.Context, chunk []byte) error {
	for _, seg := range s.scanner.Feed(chunk) {
		if seg.IsMarker() {
			s.HandleMarker(ctx, seg.Marker)
			continue
		}
		ev, ok, err := s.rec.Feed(seg.Audio)
		if err != nil {
			return fmt.Errorf("session: recognize: %w", err)
		}
		if ok {
			s.HandleEvent(ctx, ev)
		}
	}
	return nil
}

// HandleMarker applies an in-band language marker: the recognizer is rebound,
// the locale changes, and the device is told. If the rebind fails nothing
// changes and no confirmation is sent.
func (s *Session) HandleMarker(ctx context.Context, marker string) {
	var target types.Locale
	switch marker {
	case protocol.MarkerLangRU:
		target = types.LocaleRU
	case protocol.MarkerLangEN:
		target = types.LocaleEN
	default:
		return
	}
	if err := s.rec.Reset(target); err != nil {
		s.log.Warn("session: recognizer reset after marker failed, keeping locale",
			"locale", s.language, "requested", target, "err", err)
		return
	}
	s.language = target
	s.emit(langToken(target))
	s.cfg.Metrics.RecordLanguageSwitch(ctx, string(target), "marker")
	s.record(ctx, journal.Entry{Kind: journal.KindLanguage, Detail: "marker"})
	s.log.Info("session: language set by device", "locale", target)
}

// HandleEvent advances the state machine with one recognizer event. It never
// fails; empty and unrecognized input is ignored.
func (s *Session) HandleEvent(ctx context.Context, ev types.TranscriptEvent) {
	s.cfg.Metrics.RecordTranscript(ctx, ev.Kind.String())
	norm := text.Normalize(ev.Text)
	switch ev.Kind {
	case types.Partial:
		s.handlePartial(ctx, norm)
	case types.Final:
		s.handleFinal(ctx, ev.Text, norm)
	}
}

func (s *Session) handlePartial(ctx context.Context, norm text.Normalized) {
	if norm.Empty() {
		return
	}
	if !s.awake {
		if s.lex.HasWake(norm.Tokens) {
			s.wake(ctx, norm.Joined)
		}
		return
	}
	if !s.listening {
		s.emit(protocol.TokenListeningOn)
		s.listening = true
	}
}

func (s *Session) handleFinal(ctx context.Context, raw string, norm text.Normalized) {
	if s.listening {
		s.emit(protocol.TokenListeningOff)
		s.listening = false
	}

	if !s.awake {
		if s.lex.HasWake(norm.Tokens) {
			s.wake(ctx, norm.Joined)
		}
		return
	}

	raw = strings.TrimSpace(raw)

	// The first final after waking usually repeats the wake word.
	if s.suppressNextFinal {
		s.suppressNextFinal = false
		rest := s.lex.StripWake(norm.Tokens)
		if rest == "" {
			s.log.Debug("session: suppressed final after wake", "text", norm.Joined)
			return
		}
		raw, norm = remainder(raw, norm, rest)
	}
	if norm.Empty() {
		return
	}

	if s.lex.HasSleep(norm.Tokens) {
		s.sleep(ctx, norm.Joined)
		return
	}

	rest := s.lex.StripWake(norm.Tokens)
	if rest == "" {
		s.speak(s.language.Pick("Да?", "Yes?"))
		return
	}
	if rest != norm.Joined {
		raw, norm = remainder(raw, norm, rest)
	}

	if target, ok := s.lex.SwitchTarget(norm.Joined); ok {
		s.switchLanguage(ctx, target, raw)
		return
	}

	s.submit(raw)
}

func (s *Session) wake(ctx context.Context, heard string) {
	s.awake = true
	s.advance()
	s.conv.Reset()
	s.emit(protocol.TokenAwake)
	s.emit(protocol.TokenListeningOff)
	s.listening = false
	s.resetRecognizer()
	s.suppressNextFinal = true

	ack := s.language.Pick("Да?", "Yes?")
	s.speak(ack)
	s.cfg.Metrics.RecordTransition(ctx, "awake")
	s.record(ctx, journal.Entry{Kind: journal.KindWake, Utterance: heard, Response: ack})
	s.log.Info("session: awake", "locale", s.language)
}

func (s *Session) sleep(ctx context.Context, heard string) {
	s.awake = false
	s.advance()
	s.conv.Reset()
	s.emit(protocol.TokenSleeping)
	s.emit(protocol.TokenListeningOff)
	s.listening = false
	s.resetRecognizer()
	s.suppressNextFinal = false

	ack := s.language.Pick("Сплю.", "Going to sleep.")
	s.speak(ack)
	s.cfg.Metrics.RecordTransition(ctx, "sleeping")
	s.record(ctx, journal.Entry{Kind: journal.KindSleep, Utterance: heard, Response: ack})
	s.log.Info("session: sleeping", "locale", s.language)
}

// switchLanguage handles a spoken request to change language. Asking for the
// current language only repeats the confirmation.
func (s *Session) switchLanguage(ctx context.Context, target types.Locale, heard string) {
	ok := target.Pick("Ок. Русский режим.", "Okay. English mode.")
	if target == s.language {
		s.speak(ok)
		return
	}
	if err := s.rec.Reset(target); err != nil {
		s.log.Warn("session: language switch failed", "locale", target, "err", err)
		s.speak(target.Pick("Не получилось переключить язык.", "I couldn't switch language."))
		return
	}
	s.language = target
	s.emit(langToken(target))
	s.speak(ok)
	s.cfg.Metrics.RecordLanguageSwitch(ctx, string(target), "voice")
	s.record(ctx, journal.Entry{Kind: journal.KindLanguage, Utterance: heard, Response: ok, Detail: "voice"})
	s.log.Info("session: language switched by voice", "locale", target)
}

// advance starts a new turn generation. Results of older turns that have not
// been enqueued yet are discarded.
func (s *Session) advance() {
	s.turnMu.Lock()
	s.gen.Add(1)
	s.turnMu.Unlock()
}

// submit hands a content utterance to the turn worker without blocking.
func (s *Session) submit(utterance string) {
	t := turn{gen: s.gen.Load(), locale: s.language, text: utterance}
	select {
	case s.turns <- t:
	default:
		s.log.Warn("session: turn queue full, dropping utterance", "text", utterance)
	}
}

func (s *Session) resetRecognizer() {
	if err := s.rec.Reset(s.language); err != nil {
		s.log.Warn("session: recognizer reset failed", "locale", s.language, "err", err)
	}
}

// speak queues text for playback, replacing anything not yet delivered.
func (s *Session) speak(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	s.cfg.Playback.Enqueue(playback.Item{Session: s, Text: msg})
}

// emit writes a control token. A failed write ends the session.
func (s *Session) emit(token string) {
	if err := s.WriteLine(token); err != nil {
		s.log.Debug("session: write token failed", "token", token, "err", err)
	}
}

func (s *Session) record(ctx context.Context, e journal.Entry) {
	e.SessionID = s.id
	if e.Locale == "" {
		e.Locale = s.language
	}
	s.cfg.Journal.Record(ctx, e)
}

func langToken(l types.Locale) string {
	return l.Pick(protocol.TokenLangRUOK, protocol.TokenLangENOK)
}

// remainder returns the utterance left after stripping leading wake words.
// rest is the normalized remainder; the raw text is preferred when dropping
// the same number of raw words gives the same normalized result, so that
// free-text arguments keep their case.
func remainder(raw string, norm text.Normalized, rest string) (string, text.Normalized) {
	dropped := len(norm.Tokens) - len(strings.Fields(rest))
	if candidate := text.DropWords(raw, dropped); text.Phrase(candidate) == rest {
		return candidate, text.Normalize(candidate)
	}
	return rest, text.Normalize(rest)
}
