// Package server accepts device connections and runs one [session.Session]
// per connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/earshot/internal/recognizer"
	"github.com/MrWong99/earshot/internal/session"
	"github.com/MrWong99/earshot/pkg/types"
)

// ConfigSource returns the session configuration for a new connection. It is
// called once per accepted connection so that hot-reloaded vocabulary and
// prompts apply to new sessions.
type ConfigSource func() session.Config

// Server is the device-facing TCP listener.
type Server struct {
	recognizers recognizer.Factory
	configFor   ConfigSource

	accepting atomic.Bool
	active    atomic.Int64

	mu    sync.Mutex
	conns map[string]net.Conn
	wg    sync.WaitGroup
}

// New creates a Server that opens a recognizer per session with recognizers
// and configures each session with configFor.
func New(recognizers recognizer.Factory, configFor ConfigSource) *Server {
	return &Server{
		recognizers: recognizers,
		configFor:   configFor,
		conns:       make(map[string]net.Conn),
	}
}

// Accepting reports whether the accept loop is running. Used as a readiness
// check.
func (s *Server) Accepting() bool { return s.accepting.Load() }

// Active returns the number of connected sessions.
func (s *Server) Active() int { return int(s.active.Load()) }

// CheckReady implements a health check: it fails unless the accept loop is
// running.
func (s *Server) CheckReady(context.Context) error {
	if !s.Accepting() {
		return errors.New("server: not accepting connections")
	}
	return nil
}

// Serve accepts connections on ln until ctx is cancelled. On return the
// listener is closed, every connection has been closed, and every session has
// finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.accepting.Store(true)
	defer s.accepting.Store(false)
	slog.Info("server: listening", "addr", ln.Addr().String())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.drain()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.drain()
				return fmt.Errorf("server: accept: %w", err)
			}
			// Descriptor exhaustion and aborted handshakes are transient.
			backoff = nextBackoff(backoff)
			slog.Warn("server: accept failed, retrying", "err", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0
		s.track(ctx, conn)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

func (s *Server) track(ctx context.Context, conn net.Conn) {
	id := uuid.NewString()
	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()

	s.wg.Add(1)
	s.active.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)
		defer func() {
			s.mu.Lock()
			delete(s.conns, id)
			s.mu.Unlock()
			conn.Close()
		}()
		s.handle(ctx, id, conn)
	}()
}

// handle runs one session. A panic inside the session is logged and confined
// to this connection.
func (s *Server) handle(ctx context.Context, id string, conn net.Conn) {
	log := slog.With("session", id, "remote", conn.RemoteAddr().String())
	defer func() {
		if r := recover(); r != nil {
			log.Error("server: session panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	cfg := s.configFor()
	if !cfg.Language.Valid() {
		cfg.Language = types.LocaleRU
	}
	rec, err := s.recognizers(ctx, cfg.Language)
	if err != nil {
		log.Error("server: open recognizer", "err", err)
		return
	}
	sess, err := session.New(id, conn, rec, cfg)
	if err != nil {
		rec.Close()
		log.Error("server: create session", "err", err)
		return
	}

	log.Info("server: device connected")
	start := time.Now()
	if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
		log.Warn("server: session ended with error", "err", err, "duration", time.Since(start))
		return
	}
	log.Info("server: device disconnected", "duration", time.Since(start))
}

// drain closes every connection and waits for the sessions to finish.
func (s *Server) drain() {
	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
