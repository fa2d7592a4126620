package statestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vpnhouse/killswitch-lib-go/killswitch"
)

type fileState struct {
	Mode killswitch.Mode `yaml:"mode"`
}

// File persists the kill switch mode as a small yaml file. Writes go
// through a temp file plus rename so a crash mid-write leaves either the
// old state or the new one, never garbage.
type File struct {
	lock sync.Mutex
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Load() (killswitch.Mode, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.load()
}

func (f *File) load() (killswitch.Mode, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return killswitch.ModeOff, nil
		}
		return killswitch.ModeOff, fmt.Errorf("read state %s: %w", f.path, err)
	}

	var st fileState
	if err := yaml.Unmarshal(data, &st); err != nil {
		// Corrupt state must not brick the switch, it loads as off.
		zap.L().Warn("corrupt kill switch state, assuming off",
			zap.String("path", f.path), zap.Error(err))
		return killswitch.ModeOff, nil
	}
	return st.Mode, nil
}

func (f *File) Save(mode killswitch.Mode) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	data, err := yaml.Marshal(fileState{Mode: mode})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".killswitch-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace state %s: %w", f.path, err)
	}
	return nil
}

// Watch reports modes written to the state file by other processes, e.g. a
// CLI editing the state while a daemon runs. Consecutive duplicates are
// collapsed. The channel closes when ctx is cancelled.
func (f *File) Watch(ctx context.Context) (<-chan killswitch.Mode, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("state watcher: %w", err)
	}
	// Watch the directory: editors and our own Save replace the file by
	// rename, which drops a watch set on the file itself.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(f.path), err)
	}

	out := make(chan killswitch.Mode, 1)
	go func() {
		defer close(out)
		defer watcher.Close()

		last, _ := f.Load()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != f.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				mode, err := f.Load()
				if err != nil || mode == last {
					continue
				}
				last = mode
				select {
				case out <- mode:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				zap.L().Warn("state watcher error", zap.Error(err))
			}
		}
	}()
	return out, nil
}
