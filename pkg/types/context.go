// Package types holds the domain types shared by the streaming client,
// the conversation model and the relay transports.
package types

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SearchType selects the backend's context retrieval strategy.
type SearchType string

const (
	SearchVector SearchType = "vector"
	SearchHybrid SearchType = "hybrid"
)

// Valid reports whether s is a known search strategy.
func (s SearchType) Valid() bool {
	return s == SearchVector || s == SearchHybrid
}

// ParseSearchType accepts a search strategy name case-insensitively.
func ParseSearchType(s string) (SearchType, error) {
	st := SearchType(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown search type %q (want vector or hybrid)", s)
	}
	return st, nil
}

// ContextItem is one retrieved code element the backend used to ground its answer.
type ContextItem struct {
	Type    string   `json:"type"`
	Name    string   `json:"name"`
	Content string   `json:"content"`
	Score   *float64 `json:"score,omitempty"` // relevance in [0,1] when the backend reports it
}

// FilterContext keeps the items whose Name matches any of the glob patterns
// ("pkg/auth/**", "*Handler"). No patterns keeps everything.
func FilterContext(items []ContextItem, patterns ...string) ([]ContextItem, error) {
	if len(patterns) == 0 {
		return items, nil
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid source pattern %q", p)
		}
	}

	var out []ContextItem
	for _, item := range items {
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, item.Name); ok {
				out = append(out, item)
				break
			}
		}
	}
	return out, nil
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)
