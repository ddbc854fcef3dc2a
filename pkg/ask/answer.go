package ask

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devsecrin/askstream/pkg/types"
)

// Answer is a complete answer, either returned by Ask or assembled from a stream.
type Answer struct {
	Text           string              `json:"answer"`
	Context        []types.ContextItem `json:"context,omitempty"`
	Metadata       Metadata            `json:"metadata"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Timestamp      string              `json:"timestamp,omitempty"` // RFC 3339; Ask fills in the receive time when the backend omits it
}

// answerPayload accepts both the bare {answer, ...} object and the backend's
// {"data": {...}, "message": ...} envelope.
type answerPayload struct {
	Answer         *string             `json:"answer"`
	ConversationID string              `json:"conversation_id"`
	Timestamp      string              `json:"timestamp"`
	Context        []types.ContextItem `json:"context"`
	Model          string              `json:"model"`
	Provider       string              `json:"provider"`
	NodeTypes      []string            `json:"node_types"`
	Data           *answerPayload      `json:"data"`
}

// Ask sends req with stream disabled and decodes the single JSON answer.
func (c *httpClient) Ask(ctx context.Context, req StreamRequest) (*Answer, error) {
	req.Stream = false

	resp, err := c.open(ctx, req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var p answerPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("ask: decode answer: %w", err)
	}
	if p.Answer == nil && p.Data != nil {
		p = *p.Data
	}
	if p.Answer == nil || *p.Answer == "" {
		return nil, ErrInvalidAnswer
	}
	if p.Timestamp == "" {
		p.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	return &Answer{
		Text:           *p.Answer,
		Context:        p.Context,
		Metadata:       Metadata{Model: p.Model, Provider: p.Provider, NodeTypes: p.NodeTypes},
		ConversationID: p.ConversationID,
		Timestamp:      p.Timestamp,
	}, nil
}
