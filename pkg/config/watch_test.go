package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsecrin/askstream/pkg/types"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "defaults:\n  agent: pathfinder\n")

	changes := make(chan *Config, 4)
	w := NewWatcher(path, func(c *Config) { changes <- c }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Give watcher time to start
	time.Sleep(100 * time.Millisecond)

	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644))

	// An invalid file keeps the previous config.
	writeFile(t, dir, "defaults:\n  agent: oracle\n")
	time.Sleep(500 * time.Millisecond)
	select {
	case c := <-changes:
		t.Fatalf("unexpected reload: %+v", c)
	default:
	}

	writeFile(t, dir, "defaults:\n  agent: chronicle\n")

	select {
	case c := <-changes:
		assert.Equal(t, types.AgentChronicle, c.Defaults.Agent)
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "nope", "askstream.yaml"), func(*Config) {}, nil)
	require.Error(t, w.Run(context.Background()))
}
