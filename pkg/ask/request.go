package ask

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/devsecrin/askstream/pkg/types"
)

const (
	// DefaultContextLimit is the number of context items requested when unset.
	DefaultContextLimit = 5
	// MaxContextLimit is the largest context limit the backend accepts.
	MaxContextLimit = 20
	// MaxQuestionLength is the longest question the backend accepts, in characters.
	MaxQuestionLength = 500
)

// StreamRequest is the body posted to the ask endpoint. Build it with
// NewStreamRequest; the client sets Stream on its own copy.
type StreamRequest struct {
	Question     string           `json:"question"`
	AgentType    types.AgentType  `json:"agent_type"`
	SearchType   types.SearchType `json:"search_type"`
	ContextLimit int              `json:"context_limit"`
	Stream       bool             `json:"stream"`
}

// RequestOption customizes a StreamRequest.
type RequestOption func(*StreamRequest)

// WithSearchType overrides the default hybrid search.
func WithSearchType(st types.SearchType) RequestOption {
	return func(r *StreamRequest) { r.SearchType = st }
}

// WithContextLimit overrides the default context limit.
func WithContextLimit(n int) RequestOption {
	return func(r *StreamRequest) { r.ContextLimit = n }
}

// NewStreamRequest builds a request with hybrid search and a context limit of 5.
func NewStreamRequest(question string, agent types.AgentType, opts ...RequestOption) StreamRequest {
	r := StreamRequest{
		Question:     question,
		AgentType:    agent,
		SearchType:   types.SearchHybrid,
		ContextLimit: DefaultContextLimit,
		Stream:       true,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Validate applies the backend's input rules. The client itself only rejects
// empty questions; callers accepting outside input run Validate first.
func (r StreamRequest) Validate() error {
	q := strings.TrimSpace(r.Question)
	if q == "" {
		return ErrEmptyQuestion
	}
	if n := utf8.RuneCountInString(q); n > MaxQuestionLength {
		return fmt.Errorf("ask: question is %d characters, limit is %d", n, MaxQuestionLength)
	}
	if !r.AgentType.Valid() {
		return fmt.Errorf("ask: unknown agent type %q", r.AgentType)
	}
	if !r.SearchType.Valid() {
		return fmt.Errorf("ask: unknown search type %q", r.SearchType)
	}
	if r.ContextLimit < 0 || r.ContextLimit > MaxContextLimit {
		return fmt.Errorf("ask: context limit %d out of range [0, %d]", r.ContextLimit, MaxContextLimit)
	}
	return nil
}
