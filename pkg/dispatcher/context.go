package dispatcher

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
)

// ErrReceiverGone is returned by ToolCallContext.Send when the consumer of
// the response stream has already disconnected; a tool must treat this as a
// cancellation signal.
var ErrReceiverGone = errors.New("chat response receiver gone")

// ToolCallContext is the lightweight, cloneable progress-channel handle
// passed into every tool execution (spec.md §4.6). It is safe for
// concurrent use: Send never blocks (a full channel drops the response on
// the floor rather than stalling the tool), and complete is an atomic flag
// shared by every clone derived from the same conversation activation.
type ToolCallContext struct {
	ConversationID string
	AgentID        string
	ToolCallID     string

	out      chan<- forgetype.ChatResponse
	complete *atomic.Bool

	// EnqueueEvent lets the event_dispatch special tool enqueue a synthetic
	// event into the owning conversation's queue, enabling handovers without
	// the Tool interface needing a dependency on the conversation store.
	EnqueueEvent func(forgetype.Event) error
}

// NewToolCallContext builds a root ToolCallContext for one agent activation.
// out is the bounded channel the orchestrator is draining.
func NewToolCallContext(conversationID, agentID string, out chan<- forgetype.ChatResponse, enqueue func(forgetype.Event) error) *ToolCallContext {
	return &ToolCallContext{
		ConversationID: conversationID,
		AgentID:        agentID,
		out:            out,
		complete:       new(atomic.Bool),
		EnqueueEvent:   enqueue,
	}
}

// WithCall returns a shallow copy scoped to one specific tool call id,
// sharing the same underlying channel and completion flag.
func (c *ToolCallContext) WithCall(toolCallID string) *ToolCallContext {
	cp := *c
	cp.ToolCallID = toolCallID
	return &cp
}

// Send enqueues a ChatResponse without blocking. If the out channel's buffer
// is full or closed, it returns ErrReceiverGone, which the calling tool
// should treat as "stop working, the caller went away".
func (c *ToolCallContext) Send(resp forgetype.ChatResponse) (err error) {
	defer func() {
		// A send on a closed channel panics even inside a select.
		if recover() != nil {
			err = ErrReceiverGone
		}
	}()
	select {
	case c.out <- resp:
		return nil
	default:
		return ErrReceiverGone
	}
}

// SetComplete marks the conversation-scoped completion flag, used by the
// Completion tool to signal the enclosing orchestrator loop is done.
func (c *ToolCallContext) SetComplete() { c.complete.Store(true) }

// GetComplete reports whether SetComplete has been called for this
// activation.
func (c *ToolCallContext) GetComplete() bool { return c.complete.Load() }
