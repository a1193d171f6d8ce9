package storage

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "civcal/internal/log"
)

const watchDebounce = 100 * time.Millisecond

// FileWatcher calls onChange when a single file is written, created,
// replaced or removed. It watches the parent directory so that editors
// and login flows that replace the file atomically are still seen.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(string)
	done     chan struct{}
	once     sync.Once
}

func WatchFile(path string, onChange func(string)) (*FileWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	fw := &FileWatcher{
		watcher:  watcher,
		path:     absPath,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go fw.watch()
	return fw, nil
}

func (fw *FileWatcher) watch() {
	var (
		mu    sync.Mutex
		timer *time.Timer
	)

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			// Debounce rapid events
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case <-fw.done:
					return
				default:
				}
				if fw.onChange != nil {
					fw.onChange(fw.path)
				}
			})
			mu.Unlock()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			appLog.Error("file watch error", err, "path", fw.path)

		case <-fw.done:
			return
		}
	}
}

func (fw *FileWatcher) Close() error {
	var err error
	fw.once.Do(func() {
		close(fw.done)
		err = fw.watcher.Close()
	})
	return err
}
