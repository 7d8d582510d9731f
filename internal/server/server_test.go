package server_test

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/MrWong99/earshot/internal/playback"
	"github.com/MrWong99/earshot/internal/protocol"
	"github.com/MrWong99/earshot/internal/recognizer"
	recmock "github.com/MrWong99/earshot/internal/recognizer/mock"
	"github.com/MrWong99/earshot/internal/reply"
	"github.com/MrWong99/earshot/internal/server"
	"github.com/MrWong99/earshot/internal/session"
	llmmock "github.com/MrWong99/earshot/pkg/provider/llm/mock"
	ttsmock "github.com/MrWong99/earshot/pkg/provider/tts/mock"
	"github.com/MrWong99/earshot/pkg/types"
)

// panicRecognizer blows up on the first chunk.
type panicRecognizer struct {
	*recmock.Recognizer
}

func (panicRecognizer) Feed([]byte) (types.TranscriptEvent, bool, error) {
	panic("recognizer exploded")
}

type fixture struct {
	srv    *server.Server
	addr   string
	cancel context.CancelFunc
	served chan error
}

func start(t *testing.T, factory recognizer.Factory) *fixture {
	t.Helper()
	return startOn(t, factory, nil)
}

// startOn is start with the listener passed through wrap, if non-nil.
func startOn(t *testing.T, factory recognizer.Factory, wrap func(net.Listener) net.Listener) *fixture {
	t.Helper()

	mb := playback.NewMailbox()
	worker := playback.NewWorker(mb, &ttsmock.Provider{SynthesizeChunks: [][]byte{{7, 7}}})
	engine := reply.New(&llmmock.Provider{}, reply.Config{})
	cfg := func() session.Config {
		return session.Config{Replies: engine, Playback: mb}
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	if wrap != nil {
		ln = wrap(ln)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = worker.Run(ctx, 1) }()

	f := &fixture{
		srv:    server.New(factory, cfg),
		addr:   addr,
		cancel: cancel,
		served: make(chan error, 1),
	}
	go func() { f.served <- f.srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		mb.Close()
		<-f.served
	})
	return f
}

func dial(t *testing.T, addr string) (net.Conn, *protocol.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn, protocol.NewReader(conn)
}

func expectLines(t *testing.T, r *protocol.Reader, want ...string) {
	t.Helper()
	for _, w := range want {
		f, err := r.Next()
		if err != nil {
			t.Fatalf("reading %q: %v", w, err)
		}
		if f.Kind != protocol.FrameLine || f.Line != w {
			t.Fatalf("got %+v, want line %q", f, w)
		}
	}
}

func TestWakeOverTCP(t *testing.T) {
	t.Parallel()

	f := start(t, func(_ context.Context, locale types.Locale) (recognizer.Recognizer, error) {
		return recmock.New(locale).Final("jarvis"), nil
	})
	conn, r := dial(t, f.addr)

	expectLines(t, r, protocol.TokenSleeping, protocol.TokenListeningOff)
	if _, err := conn.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectLines(t, r, protocol.TokenAwake, protocol.TokenListeningOff, "Да?")

	frame, err := r.Next()
	if err != nil {
		t.Fatalf("speech frame: %v", err)
	}
	if frame.Kind != protocol.FrameSpeech || string(frame.Audio) != string([]byte{7, 7}) {
		t.Errorf("frame = %+v", frame)
	}
	if !f.srv.Accepting() || f.srv.Active() != 1 {
		t.Errorf("accepting=%v active=%d", f.srv.Accepting(), f.srv.Active())
	}
}

func TestPanickingSessionIsIsolated(t *testing.T) {
	t.Parallel()

	calls := make(chan struct{}, 4)
	f := start(t, func(_ context.Context, locale types.Locale) (recognizer.Recognizer, error) {
		calls <- struct{}{}
		if len(calls) == 1 {
			return panicRecognizer{recmock.New(locale)}, nil
		}
		return recmock.New(locale).Final("jarvis"), nil
	})

	bad, badReader := dial(t, f.addr)
	expectLines(t, badReader, protocol.TokenSleeping, protocol.TokenListeningOff)
	if _, err := bad.Write([]byte{1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := badReader.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("panicking session: err = %v, want EOF", err)
	}

	good, goodReader := dial(t, f.addr)
	expectLines(t, goodReader, protocol.TokenSleeping, protocol.TokenListeningOff)
	if _, err := good.Write([]byte{1, 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectLines(t, goodReader, protocol.TokenAwake)
}

func TestRecognizerFactoryFailureClosesConnection(t *testing.T) {
	t.Parallel()

	f := start(t, func(context.Context, types.Locale) (recognizer.Recognizer, error) {
		return nil, errors.New("no model")
	})
	_, r := dial(t, f.addr)
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want EOF", err)
	}
}

func TestShutdownClosesSessions(t *testing.T) {
	t.Parallel()

	f := start(t, func(_ context.Context, locale types.Locale) (recognizer.Recognizer, error) {
		return recmock.New(locale), nil
	})
	_, r := dial(t, f.addr)
	expectLines(t, r, protocol.TokenSleeping, protocol.TokenListeningOff)

	f.cancel()
	select {
	case err := <-f.served:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
		f.served <- nil
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("client read after shutdown = %v, want EOF", err)
	}
	if f.srv.Accepting() {
		t.Error("still accepting after shutdown")
	}
}

// exhaustedListener fails its first Accept calls as if the process had run
// out of file descriptors.
type exhaustedListener struct {
	net.Listener
	failures atomic.Int32
}

func (l *exhaustedListener) Accept() (net.Conn, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: syscall.EMFILE}
	}
	return l.Listener.Accept()
}

func TestAcceptErrorsAreRetried(t *testing.T) {
	t.Parallel()

	f := startOn(t, func(_ context.Context, locale types.Locale) (recognizer.Recognizer, error) {
		return recmock.New(locale), nil
	}, func(ln net.Listener) net.Listener {
		el := &exhaustedListener{Listener: ln}
		el.failures.Store(3)
		return el
	})

	_, r := dial(t, f.addr)
	expectLines(t, r, protocol.TokenSleeping, protocol.TokenListeningOff)

	select {
	case err := <-f.served:
		f.served <- err
		t.Fatalf("Serve returned %v after a transient accept error", err)
	default:
	}
	if !f.srv.Accepting() {
		t.Error("not accepting after transient accept errors")
	}
}
