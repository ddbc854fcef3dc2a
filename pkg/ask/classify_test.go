package ask

import (
	"errors"
	"reflect"
	"testing"

	"github.com/devsecrin/askstream/pkg/types"
)

func TestClassify(t *testing.T) {
	score := 0.92
	lenientScore := 0.9

	tests := []struct {
		name    string
		frame   string
		verdict Verdict
		event   Event
		err     error
	}{
		{name: "done sentinel", frame: "[DONE]", verdict: VerdictDone},
		{name: "invalid json", frame: "not json", verdict: VerdictSkip, err: ErrMalformedFrame},
		{name: "json string", frame: `"hello"`, verdict: VerdictSkip, err: ErrMalformedFrame},
		{
			name:    "context with metadata",
			frame:   `{"context":[{"type":"Function","name":"Login","content":"func Login()","score":0.92}],"model":"llama3","provider":"ollama","node_types":["Function"]}`,
			verdict: VerdictEmit,
			event: Event{
				Kind:     KindContext,
				Items:    []types.ContextItem{{Type: "Function", Name: "Login", Content: "func Login()", Score: &score}},
				Metadata: Metadata{Model: "llama3", Provider: "ollama", NodeTypes: []string{"Function"}},
			},
		},
		{
			name:    "context without metadata",
			frame:   `{"context":[{"type":"Doc","name":"README","content":"intro"}]}`,
			verdict: VerdictEmit,
			event: Event{
				Kind:  KindContext,
				Items: []types.ContextItem{{Type: "Doc", Name: "README", Content: "intro"}},
			},
		},
		{
			name:    "empty context array is truthy",
			frame:   `{"context":[],"chunk":"x"}`,
			verdict: VerdictEmit,
			event:   Event{Kind: KindContext, Items: []types.ContextItem{}},
		},
		{
			name:    "null context falls through to chunk",
			frame:   `{"context":null,"chunk":"x"}`,
			verdict: VerdictEmit,
			event:   Event{Kind: KindAnswerChunk, Text: "x"},
		},
		{
			name:    "context of wrong type keeps metadata",
			frame:   `{"context":"oops","model":"llama3"}`,
			verdict: VerdictEmit,
			event:   Event{Kind: KindContext, Metadata: Metadata{Model: "llama3"}},
			err:     ErrMalformedFrame,
		},
		{
			name:    "context score as string",
			frame:   `{"context":[{"type":"Function","name":"Login","content":"func Login()","score":"0.9"},{"type":"Doc","name":"README","content":"intro"}]}`,
			verdict: VerdictEmit,
			event: Event{Kind: KindContext, Items: []types.ContextItem{
				{Type: "Function", Name: "Login", Content: "func Login()", Score: &lenientScore},
				{Type: "Doc", Name: "README", Content: "intro"},
			}},
		},
		{
			name:    "context item that is not an object",
			frame:   `{"context":["stray",{"type":"Doc","name":"README","content":"intro"}]}`,
			verdict: VerdictEmit,
			event:   Event{Kind: KindContext, Items: []types.ContextItem{{Type: "Doc", Name: "README", Content: "intro"}}},
			err:     ErrMalformedFrame,
		},
		{
			name:    "node types of wrong type",
			frame:   `{"context":[],"provider":"ollama","node_types":"Function"}`,
			verdict: VerdictEmit,
			event:   Event{Kind: KindContext, Items: []types.ContextItem{}, Metadata: Metadata{Provider: "ollama"}},
			err:     ErrMalformedFrame,
		},
		{
			name:    "chunk",
			frame:   `{"chunk":"Hello"}`,
			verdict: VerdictEmit,
			event:   Event{Kind: KindAnswerChunk, Text: "Hello"},
		},
		{
			name:    "chunk wins over error",
			frame:   `{"chunk":"a","error":"b"}`,
			verdict: VerdictEmit,
			event:   Event{Kind: KindAnswerChunk, Text: "a"},
		},
		{
			name:    "numeric chunk",
			frame:   `{"chunk":42}`,
			verdict: VerdictEmit,
			event:   Event{Kind: KindAnswerChunk, Text: "42"},
		},
		{name: "empty chunk then done", frame: `{"chunk":"","done":true}`, verdict: VerdictDone},
		{name: "done wins over error", frame: `{"done":true,"error":"late"}`, verdict: VerdictDone},
		{name: "numeric done", frame: `{"done":1}`, verdict: VerdictDone},
		{
			name:    "error string",
			frame:   `{"done":false,"error":"boom"}`,
			verdict: VerdictFail,
			event:   Event{Kind: KindError, Message: "boom"},
		},
		{
			name:    "error object",
			frame:   `{"error":{"message":"nested"}}`,
			verdict: VerdictFail,
			event:   Event{Kind: KindError, Message: "nested"},
		},
		{name: "empty error", frame: `{"error":""}`, verdict: VerdictSkip, err: ErrUnrecognizedShape},
		{name: "all falsy", frame: `{"chunk":0,"done":0,"context":false}`, verdict: VerdictSkip, err: ErrUnrecognizedShape},
		{name: "unknown keys", frame: `{"status":"thinking"}`, verdict: VerdictSkip, err: ErrUnrecognizedShape},
		{name: "empty object", frame: `{}`, verdict: VerdictSkip, err: ErrUnrecognizedShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, verdict, err := Classify(tt.frame)
			if verdict != tt.verdict {
				t.Fatalf("verdict = %v, want %v", verdict, tt.verdict)
			}
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(ev, tt.event) {
				t.Errorf("event = %+v, want %+v", ev, tt.event)
			}
		})
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", false},
		{"null", false},
		{"false", false},
		{"0", false},
		{"0.0", false},
		{"-0", false},
		{`""`, false},
		{"true", true},
		{"1", true},
		{"-2.5", true},
		{`"x"`, true},
		{`" "`, true},
		{"{}", true},
		{"[]", true},
		{"  [] ", true},
	}

	for _, tt := range tests {
		if got := truthy([]byte(tt.raw)); got != tt.want {
			t.Errorf("truthy(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
