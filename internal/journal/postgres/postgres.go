// Package postgres is a PostgreSQL-backed journal.Recorder.
//
// Entries are queued in memory and written by a single background goroutine
// so that recording never adds a database round trip to a voice turn. When
// the queue is full new entries are dropped and counted.
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	store.Record(ctx, journal.Entry{SessionID: id, Kind: journal.KindWake})
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/earshot/internal/journal"
)

const (
	defaultQueueSize = 1024
	writeTimeout     = 5 * time.Second
)

const ddlJournal = `
CREATE TABLE IF NOT EXISTS journal_entries (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    kind        TEXT         NOT NULL,
    locale      TEXT         NOT NULL DEFAULT '',
    utterance   TEXT         NOT NULL DEFAULT '',
    response    TEXT         NOT NULL DEFAULT '',
    detail      TEXT         NOT NULL DEFAULT '',
    recorded_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_session
    ON journal_entries (session_id, recorded_at);

CREATE INDEX IF NOT EXISTS idx_journal_entries_kind
    ON journal_entries (kind);
`

// Migrate creates the journal table and its indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlJournal); err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Option configures a [Store].
type Option func(*Store)

// WithQueueSize sets how many entries may wait for the writer. Default: 1024.
func WithQueueSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// Store writes journal entries to PostgreSQL.
type Store struct {
	pool      *pgxpool.Pool
	queueSize int
	queue     chan journal.Entry
	dropped   atomic.Int64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

var _ journal.Recorder = (*Store)(nil)

// New connects to dsn, runs [Migrate], and starts the background writer.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{pool: pool, queueSize: defaultQueueSize, done: make(chan struct{})}
	for _, o := range opts {
		o(s)
	}
	s.queue = make(chan journal.Entry, s.queueSize)
	go s.run()
	return s, nil
}

// Record implements journal.Recorder. It never blocks.
func (s *Store) Record(_ context.Context, e journal.Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- e:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("journal: queue full, dropping entries", "dropped", n)
		}
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (s *Store) Dropped() int64 { return s.dropped.Load() }

// Ping checks database connectivity. Used as a readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close flushes queued entries and releases the pool.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		<-s.done
		s.pool.Close()
	})
	return nil
}

func (s *Store) run() {
	defer close(s.done)
	for e := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := s.insert(ctx, e); err != nil {
			slog.Warn("journal: write failed", "session", e.SessionID, "kind", e.Kind, "err", err)
		}
		cancel()
	}
}

func (s *Store) insert(ctx context.Context, e journal.Entry) error {
	const q = `
		INSERT INTO journal_entries
		    (session_id, kind, locale, utterance, response, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, q,
		e.SessionID,
		string(e.Kind),
		string(e.Locale),
		e.Utterance,
		e.Response,
		e.Detail,
		e.Time,
	)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}
