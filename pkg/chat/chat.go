// Package chat keeps a conversation with the ask backend: the question
// history and the assistant messages that streams are folded into.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devsecrin/askstream/pkg/ask"
	"github.com/devsecrin/askstream/pkg/types"
)

// Message is one entry in a conversation.
type Message struct {
	ID        string              `json:"id"`
	Role      types.Role          `json:"role"`
	Content   string              `json:"content"`
	Timestamp time.Time           `json:"timestamp"`
	AgentType types.AgentType     `json:"agent_type,omitempty"`
	Streaming bool                `json:"is_streaming,omitempty"`
	Context   []types.ContextItem `json:"context,omitempty"`
	Metadata  ask.Metadata        `json:"metadata"`

	// Error holds the failure that ended the answer. Content keeps whatever
	// arrived before it.
	Error string `json:"error,omitempty"`
	// Stopped is set when the answer was cancelled before it completed.
	Stopped bool `json:"stopped,omitempty"`
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithAgent sets the agent used for new questions (default pathfinder).
func WithAgent(a types.AgentType) Option {
	return func(c *Conversation) { c.agent = a }
}

// WithRequestOptions applies opts to every request the conversation sends.
func WithRequestOptions(opts ...ask.RequestOption) Option {
	return func(c *Conversation) { c.reqOpts = append(c.reqOpts, opts...) }
}

// WithLogger sets the conversation's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conversation) { c.log = l }
}

// OnUpdate registers fn to receive a snapshot of the assistant message each
// time a stream event changes it. fn runs on the goroutine calling Send.
func OnUpdate(fn func(Message)) Option {
	return func(c *Conversation) { c.onUpdate = fn }
}

// Conversation is safe for concurrent use, but only one answer streams at a
// time: Send waits for the previous one to finish.
type Conversation struct {
	client   ask.Client
	agent    types.AgentType
	reqOpts  []ask.RequestOption
	log      *slog.Logger
	onUpdate func(Message)

	sendMu   sync.Mutex // serializes Send
	mu       sync.Mutex
	messages []Message
	active   *ask.Stream
}

// New creates an empty conversation backed by client.
func New(client ask.Client, opts ...Option) *Conversation {
	c := &Conversation{
		client: client,
		agent:  types.AgentPathfinder,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Agent returns the agent used for new questions.
func (c *Conversation) Agent() types.AgentType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agent
}

// SetAgent switches the agent for subsequent questions.
func (c *Conversation) SetAgent(a types.AgentType) {
	c.mu.Lock()
	c.agent = a
	c.mu.Unlock()
}

// Messages returns a copy of the conversation so far.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Clear drops the history. An answer in flight is stopped first.
func (c *Conversation) Clear() {
	c.Stop()
	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
}

// Streaming reports whether an answer is in flight.
func (c *Conversation) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Stop cancels the answer in flight, if any. The message keeps the text
// received so far and is marked stopped.
func (c *Conversation) Stop() {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

// Send appends question as a user message, streams the answer into a new
// assistant message and returns that message once the stream ends.
//
// A failure leaves the partial answer in place, records the error on the
// message and returns it. Cancellation, by Stop or ctx, is not an error: the
// message comes back with Stopped set.
func (c *Conversation) Send(ctx context.Context, question string) (Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Message{}, ask.ErrEmptyQuestion
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	agent := c.Agent()
	now := time.Now()
	msg := Message{ID: uuid.NewString(), Role: types.RoleAssistant, Timestamp: now, AgentType: agent, Streaming: true}
	c.mu.Lock()
	c.messages = append(c.messages,
		Message{ID: uuid.NewString(), Role: types.RoleUser, Content: question, Timestamp: now},
		msg,
	)
	c.mu.Unlock()

	req := ask.NewStreamRequest(question, agent, c.reqOpts...)
	s, err := c.client.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return c.stopped(msg), nil
		}
		return c.fail(msg, err), err
	}

	c.mu.Lock()
	c.active = s
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
	}()

	for ev, err := range s.All() {
		if err != nil {
			return c.fail(msg, err), err
		}
		switch ev.Kind {
		case ask.KindContext:
			msg.Context = ev.Items
			msg.Metadata = ev.Metadata
		case ask.KindAnswerChunk:
			msg.Content += ev.Text
		}
		c.store(msg)
	}

	if s.Termination() == ask.TerminationCancelled {
		return c.stopped(msg), nil
	}
	msg.Streaming = false
	c.store(msg)
	return msg, nil
}

// store writes msg back over the entry with the same ID and notifies the
// update callback. A message dropped by Clear is not re-added.
func (c *Conversation) store(msg Message) {
	c.mu.Lock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == msg.ID {
			c.messages[i] = msg
			break
		}
	}
	c.mu.Unlock()

	if c.onUpdate != nil {
		c.onUpdate(msg)
	}
}

func (c *Conversation) stopped(msg Message) Message {
	c.log.Debug("chat: answer stopped", "message_id", msg.ID)
	msg.Streaming = false
	msg.Stopped = true
	c.store(msg)
	return msg
}

func (c *Conversation) fail(msg Message, err error) Message {
	c.log.Warn("chat: answer failed", "message_id", msg.ID, "err", err)
	msg.Streaming = false
	msg.Error = err.Error()
	c.store(msg)
	return msg
}
