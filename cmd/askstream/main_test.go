package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsecrin/askstream/pkg/ask"
	"github.com/devsecrin/askstream/pkg/ask/asktest"
	"github.com/devsecrin/askstream/pkg/chat"
	"github.com/devsecrin/askstream/pkg/config"
	"github.com/devsecrin/askstream/pkg/transport"
	"github.com/devsecrin/askstream/pkg/types"
)

// execute runs the root command with args in an empty working directory and
// a clean environment, restoring the flag globals afterwards.
func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvBaseURL, "")
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvListen, "")
	t.Cleanup(func() {
		configPath, baseURL, verbose = "", "", false
		askAgent, askSearch, askLimit, askRetries = "", "", 0, 0
		askNoStream, askJSON, askContext, askMatch = false, false, true, nil
		relayListen, relayStdio = "", false
		for _, name := range []string{"limit", "retries"} {
			askCmd.Flags().Lookup(name).Changed = false
		}
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	if stdin != nil {
		rootCmd.SetIn(stdin)
	}
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAskCommand_StreamsAnswer(t *testing.T) {
	srv := asktest.NewServer(t, asktest.Script{
		Chunks: []string{
			asktest.Frames(`{"context":[{"type":"Function","name":"Login","content":"func Login()"}]}`),
			asktest.Frames(`{"chunk":"Tokens are "}`),
			asktest.Frames(`{"chunk":"signed."}`, `[DONE]`),
		},
	})

	out, err := execute(t, nil, "ask", "--base-url", srv.URL, "--agent", "sentinel", "--limit", "3", "How are tokens signed?")
	require.NoError(t, err)
	assert.Equal(t, "Tokens are signed.\n\nSources:\n  - Function Login\n", out)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, ask.DefaultPath, reqs[0].Path)
	assert.Equal(t, "How are tokens signed?", reqs[0].Question)
	assert.Equal(t, string(types.AgentSentinel), reqs[0].AgentType)
	assert.Equal(t, 3, reqs[0].ContextLimit)
	assert.True(t, reqs[0].Stream)
}

func TestAskCommand_ServerError(t *testing.T) {
	srv := asktest.NewServer(t, asktest.Script{
		Chunks: []string{asktest.Frames(`{"chunk":"Partial"}`, `{"error":"LLM timeout"}`)},
	})

	out, err := execute(t, nil, "ask", "--base-url", srv.URL, "q")
	var serr *ask.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "Partial\n[error: ask: server error: LLM timeout]\n", out)
}

func TestAskCommand_InvalidAgent(t *testing.T) {
	srv := asktest.NewServer(t, asktest.Script{})

	_, err := execute(t, nil, "ask", "--base-url", srv.URL, "--agent", "oracle", "q")
	require.Error(t, err)
	assert.Empty(t, srv.Requests())
}

func TestRelayCommand_Stdio(t *testing.T) {
	srv := asktest.NewServer(t, asktest.Script{
		Chunks: []string{asktest.Frames(`{"chunk":"signed."}`, `[DONE]`)},
	})
	in := strings.NewReader(`{"question":"How are tokens signed?","agent_type":"sentinel"}` + "\n")

	out, err := execute(t, in, "relay", "--stdio", "--base-url", srv.URL)
	require.NoError(t, err)

	var got []transport.Envelope
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var env transport.Envelope
		require.NoError(t, dec.Decode(&env))
		got = append(got, env)
	}
	assert.Equal(t, []transport.Envelope{
		{Type: transport.EnvAnswerChunk, Content: "signed."},
		{Type: transport.EnvDone},
	}, got)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, string(types.AgentSentinel), reqs[0].AgentType)
}

func TestPrinter_WritesDeltas(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, true)

	p.update(chat.Message{Content: ""})
	p.update(chat.Message{Content: "Tokens "})
	p.update(chat.Message{Content: "Tokens are "})
	p.update(chat.Message{Content: "Tokens are signed."})
	p.update(chat.Message{Content: "Tokens are signed."})

	assert.Equal(t, "Tokens are signed.", out.String())
}

func TestPrinter_Disabled(t *testing.T) {
	var out bytes.Buffer
	newPrinter(&out, false).update(chat.Message{Content: "x"})
	assert.Empty(t, out.String())
}

func TestFinishMessage(t *testing.T) {
	score := 0.8
	tests := []struct {
		name string
		msg  chat.Message
		want string
	}{
		{"stopped", chat.Message{Stopped: true}, "\n[stopped]\n"},
		{"error", chat.Message{Error: "ask: server error: LLM timeout"}, "\n[error: ask: server error: LLM timeout]\n"},
		{
			"sources",
			chat.Message{Context: []types.ContextItem{
				{Type: "Function", Name: "Login", Score: &score},
				{Type: "File", Name: "pkg/auth/login.go"},
			}},
			"\n\nSources:\n  - Function Login (0.80)\n  - File pkg/auth/login.go\n",
		},
	}

	askContext = true
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			finishMessage(&out, tt.msg)
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestPrintSources_Match(t *testing.T) {
	askContext = true
	askMatch = []string{"pkg/**"}
	t.Cleanup(func() { askMatch = nil })

	var out bytes.Buffer
	printSources(&out, []types.ContextItem{
		{Type: "Function", Name: "Login"},
		{Type: "File", Name: "pkg/auth/login.go"},
	})
	assert.Equal(t, "\nSources:\n  - File pkg/auth/login.go\n", out.String())
}

func TestRunChatCommand(t *testing.T) {
	conv := chat.New(ask.NewClient(ask.ClientConfig{BaseURL: "http://127.0.0.1:0"}))
	var out bytes.Buffer

	assert.False(t, runChatCommand(&out, conv, "/agent blueprint"))
	assert.Equal(t, types.AgentBlueprint, conv.Agent())
	assert.Contains(t, out.String(), "Blueprint")

	out.Reset()
	assert.False(t, runChatCommand(&out, conv, "/agent oracle"))
	assert.Equal(t, types.AgentBlueprint, conv.Agent())
	assert.Contains(t, out.String(), "unknown agent")

	out.Reset()
	assert.False(t, runChatCommand(&out, conv, "/agents"))
	assert.Contains(t, out.String(), "sentinel")

	assert.False(t, runChatCommand(&out, conv, "/bogus"))
	assert.True(t, runChatCommand(&out, conv, "/quit"))
}
