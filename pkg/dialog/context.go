// Package dialog manages per-call conversation history.
//
// A Context keeps the bounded message window that is replayed to the
// completion provider on every turn. History is trimmed FIFO so the
// most recent exchanges always survive; the system prompt is injected
// on read and never counts against the bound.
package dialog

import (
	"sync"
	"time"
)

// Role identifies a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation entry. Immutable once created.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// DefaultMaxMessages bounds history when no explicit limit is given.
const DefaultMaxMessages = 20

// Context holds the conversation history for one call.
// Safe for use from concurrent event handlers.
type Context struct {
	mu           sync.Mutex
	callID       string
	messages     []Message
	maxMessages  int
	systemPrompt string
}

// NewContext creates a conversation context for a call.
// maxMessages <= 0 selects DefaultMaxMessages.
func NewContext(callID string, maxMessages int, systemPrompt string) *Context {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Context{
		callID:       callID,
		maxMessages:  maxMessages,
		systemPrompt: systemPrompt,
	}
}

// CallID returns the call this context belongs to.
func (c *Context) CallID() string {
	return c.callID
}

// AddMessage appends a message, trimming the oldest entries until the
// history fits the configured bound.
func (c *Context) AddMessage(role Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if n := len(c.messages) - c.maxMessages; n > 0 {
		c.messages = append(c.messages[:0], c.messages[n:]...)
	}
}

// Messages returns a copy of the stored history in insertion order.
func (c *Context) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of stored messages, excluding the system prompt.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// ToLLMMessages returns the history formatted for a completion request:
// the system prompt first when configured, then the stored messages.
// No system entry is emitted when the prompt is empty.
func (c *Context) ToLLMMessages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, 0, len(c.messages)+1)
	if c.systemPrompt != "" {
		out = append(out, Message{Role: RoleSystem, Content: c.systemPrompt})
	}
	out = append(out, c.messages...)
	return out
}

// Clear empties the history. The system prompt is retained; used for
// conversation resets within a call, not teardown.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
