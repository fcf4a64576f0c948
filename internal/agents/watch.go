package agents

import (
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/ensemble/internal/logx"
)

// debounceWindow coalesces bursts of filesystem events into one reload.
const debounceWindow = 200 * time.Millisecond

// Watcher triggers a reload callback when agent definition files change.
type Watcher struct {
	fs       *fsnotify.Watcher
	onReload func()

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// Watch starts watching the given directories for *.md changes. Missing
// directories are ignored. The callback runs on the watcher goroutine after
// a short debounce.
func Watch(dirs []string, onReload func()) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{fs: fs, onReload: onReload}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := fs.Add(dir); err != nil {
			logx.Debugf("[agents] not watching %s: %v", dir, err)
		}
	}

	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fs.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logx.Debugf("[agents] watch error: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceWindow, w.onReload)
}
