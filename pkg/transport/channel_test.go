package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSink_SendReceive(t *testing.T) {
	s := NewChannelSink(2)
	require.NoError(t, s.Send(Envelope{Type: EnvAnswerChunk, Content: "a"}))
	require.NoError(t, s.Send(Envelope{Type: EnvDone}))

	env, ok := s.Receive()
	require.True(t, ok)
	assert.Equal(t, "a", env.Content)

	env, ok = s.Receive()
	require.True(t, ok)
	assert.Equal(t, EnvDone, env.Type)
}

func TestChannelSink_CloseDrainsThenStops(t *testing.T) {
	s := NewChannelSink(4)
	require.NoError(t, s.Send(Envelope{Type: EnvAnswerChunk, Content: "queued"}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	env, ok := s.Receive()
	require.True(t, ok)
	assert.Equal(t, "queued", env.Content)

	_, ok = s.Receive()
	assert.False(t, ok)

	assert.ErrorIs(t, s.Send(Envelope{Type: EnvDone}), ErrSinkClosed)
}

func TestChannelSink_CloseUnblocksSend(t *testing.T) {
	s := NewChannelSink(1)
	require.NoError(t, s.Send(Envelope{Type: EnvAnswerChunk}))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Send(Envelope{Type: EnvAnswerChunk}) }()

	time.Sleep(20 * time.Millisecond)
	s.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSinkClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not unblock on Close")
	}
}
