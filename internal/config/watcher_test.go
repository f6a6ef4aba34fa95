package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, path string) <-chan *Config {
	t.Helper()

	changes := make(chan *Config, 8)
	w, err := NewWatcher(path, func(c *Config) { changes <- c },
		WithDebounce(10*time.Millisecond),
		WithWatcherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	return changes
}

func TestWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("loop:\n  fps: 30\n"), 0o644))

	changes := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("loop:\n  fps: 90\n"), 0o644))

	select {
	case cfg := <-changes:
		assert.Equal(t, 90, cfg.Loop.FPS)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatcherSkipsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("loop:\n  fps: 30\n"), 0o644))

	changes := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("loop:\n  fps: 0\n  dispatchBuffer: -1\n"), 0o644))
	select {
	case cfg := <-changes:
		t.Fatalf("invalid config delivered: %+v", cfg.Loop)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("loop:\n  fps: 45\n"), 0o644))
	select {
	case cfg := <-changes:
		assert.Equal(t, 45, cfg.Loop.FPS)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after fixing the file")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("loop:\n  fps: 30\n"), 0o644))

	changes := startWatcher(t, path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	select {
	case <-changes:
		t.Fatal("reload triggered by an unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
