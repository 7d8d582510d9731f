// Package playback delivers spoken responses to devices.
//
// A [Mailbox] holds at most one undelivered [Item] per session. Enqueueing a
// new item for a session that already has one replaces it, so a device only
// ever hears the most recent thing the assistant had to say. Sessions with a
// pending item are served in the order they first became pending, and no
// session is handed to two workers at once.
//
// A [Worker] pool drains the mailbox: it writes the text line, synthesises
// speech, and writes the speech frame.
package playback

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by [Mailbox.Next] after [Mailbox.Close].
var ErrClosed = errors.New("playback: mailbox closed")

// Sink is the outbound side of one session.
type Sink interface {
	// ID identifies the session. Items are keyed by it.
	ID() string

	// Alive reports whether the session is still connected.
	Alive() bool

	// WriteLine writes one text line.
	WriteLine(s string) error

	// WriteSpeech writes one complete speech frame.
	WriteSpeech(pcm []byte) error
}

// Item is one response waiting to be spoken.
type Item struct {
	Session Sink
	Text    string
}

// Mailbox is a keyed single-slot queue shared by all sessions. It is safe for
// concurrent use.
type Mailbox struct {
	mu      sync.Mutex
	pending map[string]Item
	order   []string
	busy    map[string]struct{}
	closed  bool
	done    chan struct{}

	// notify has capacity 1 so Enqueue never blocks.
	notify chan struct{}

	onReplace func()
}

// NewMailbox returns an empty Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		pending: make(map[string]Item),
		busy:    make(map[string]struct{}),
		done:    make(chan struct{}),
		notify:  make(chan struct{}, 1),
	}
}

// OnReplace registers fn to be called each time an undelivered item is
// replaced. Must be called before the mailbox is shared.
func (m *Mailbox) OnReplace(fn func()) {
	m.onReplace = fn
}

// Enqueue stores item as the pending item of its session, replacing any
// earlier undelivered one. Items with empty text or no session are ignored.
// It reports whether an earlier item was replaced.
func (m *Mailbox) Enqueue(item Item) bool {
	if item.Session == nil || item.Text == "" {
		return false
	}
	id := item.Session.ID()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	_, replaced := m.pending[id]
	m.pending[id] = item
	if !replaced {
		m.order = append(m.order, id)
	}
	m.mu.Unlock()

	if replaced && m.onReplace != nil {
		m.onReplace()
	}
	m.signal()
	return replaced
}

// Next blocks until an item whose session is not being delivered by another
// worker is available, then marks that session busy and returns the item.
// The caller must call [Mailbox.Done] with the session ID afterwards.
func (m *Mailbox) Next(ctx context.Context) (Item, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return Item{}, ErrClosed
		}
		item, ok, more := m.takeLocked()
		m.mu.Unlock()
		if ok {
			if more {
				m.signal()
			}
			return item, nil
		}

		select {
		case <-m.notify:
		case <-m.done:
		case <-ctx.Done():
			return Item{}, ctx.Err()
		}
	}
}

// takeLocked removes the first pending item whose session is idle. more
// reports whether another idle session still has an item.
func (m *Mailbox) takeLocked() (item Item, ok, more bool) {
	for i, id := range m.order {
		if _, busy := m.busy[id]; busy {
			continue
		}
		if !ok {
			item, ok = m.pending[id], true
			delete(m.pending, id)
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			m.busy[id] = struct{}{}
			continue
		}
		return item, true, true
	}
	return item, ok, false
}

// Done releases the session taken by [Mailbox.Next].
func (m *Mailbox) Done(sessionID string) {
	m.mu.Lock()
	delete(m.busy, sessionID)
	_, waiting := m.pending[sessionID]
	m.mu.Unlock()
	if waiting {
		m.signal()
	}
}

// Forget drops the undelivered item of sessionID, if any.
func (m *Mailbox) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[sessionID]; !ok {
		return
	}
	delete(m.pending, sessionID)
	for i, id := range m.order {
		if id == sessionID {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of sessions with an undelivered item.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close wakes all waiting workers. Pending items are dropped.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.pending = make(map[string]Item)
	m.order = nil
	close(m.done)
}

func (m *Mailbox) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}
