package session

import (
	"sync"

	"github.com/MrWong99/earshot/pkg/types"
)

// DefaultHistoryLimit is how many messages a [Conversation] keeps.
const DefaultHistoryLimit = 10

// Conversation is the short rolling context handed to the reply engine.
// Messages beyond the limit are evicted oldest first.
//
// Each [Conversation.Reset] starts a new epoch. Appends carrying an older
// epoch are ignored, so a reply that finishes after a wake or sleep
// transition cannot leak into the fresh context.
//
// All methods are safe for concurrent use.
type Conversation struct {
	limit int

	mu       sync.Mutex
	epoch    uint64
	messages []types.Message
}

// NewConversation returns an empty Conversation keeping at most limit
// messages. limit <= 0 selects [DefaultHistoryLimit].
func NewConversation(limit int) *Conversation {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Conversation{limit: limit, messages: make([]types.Message, 0, limit)}
}

// Snapshot returns a copy of the messages and the current epoch.
func (c *Conversation) Snapshot() ([]types.Message, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Message, len(c.messages))
	copy(out, c.messages)
	return out, c.epoch
}

// Append adds msgs if epoch is still current and reports whether it did.
func (c *Conversation) Append(epoch uint64, msgs ...types.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return false
	}
	c.messages = append(c.messages, msgs...)
	if over := len(c.messages) - c.limit; over > 0 {
		c.messages = append(c.messages[:0], c.messages[over:]...)
	}
	return true
}

// Reset clears the messages and starts a new epoch.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = c.messages[:0]
	c.epoch++
}

// Len returns the number of stored messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
