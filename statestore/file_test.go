package statestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpnhouse/killswitch-lib-go/killswitch"
)

func TestFileRoundTrip(t *testing.T) {
	store := NewFile(filepath.Join(t.TempDir(), "killswitch.yaml"))

	require.NoError(t, store.Save(killswitch.ModeHard))
	mode, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, killswitch.ModeHard, mode)

	require.NoError(t, store.Save(killswitch.ModeOff))
	mode, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, killswitch.ModeOff, mode)
}

func TestFileMissingLoadsOff(t *testing.T) {
	store := NewFile(filepath.Join(t.TempDir(), "absent.yaml"))
	mode, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, killswitch.ModeOff, mode)
}

func TestFileCorruptLoadsOff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "killswitch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":: not yaml {"), 0o600))

	mode, err := NewFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, killswitch.ModeOff, mode)
}

func TestFileUnknownModeLoadsOff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "killswitch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: strict\n"), 0o600))

	mode, err := NewFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, killswitch.ModeOff, mode)
}

func TestFileWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "killswitch.yaml")
	store := NewFile(path)
	require.NoError(t, store.Save(killswitch.ModeOff))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := store.Watch(ctx)
	require.NoError(t, err)

	// an external writer flips the mode
	require.NoError(t, NewFile(path).Save(killswitch.ModeSoft))

	select {
	case mode := <-updates:
		assert.Equal(t, killswitch.ModeSoft, mode)
	case <-time.After(5 * time.Second):
		t.Fatal("no update from state watcher")
	}

	cancel()
	select {
	case _, ok := <-updates:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher channel not closed")
	}
}
