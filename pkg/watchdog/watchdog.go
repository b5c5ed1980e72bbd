package watchdog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type WatchDogFactory struct {
	logger *zap.Logger
}

type filterFun func(string) bool

// WatchDog monitors directories for file creation and forwards matching
// paths to the notify channel. Directories that appear under a watched
// root are added to the watch list, so fuzzer output dirs created
// mid-run are picked up too.
type WatchDog struct {
	watchCtx   context.Context
	notifyChan chan<- string
	filter     filterFun
	logger     *zap.Logger

	watcher *fsnotify.Watcher
}

func NewWatchDogFactory(logger *zap.Logger) *WatchDogFactory {
	return &WatchDogFactory{
		logger: logger.Named("watchdog"),
	}
}

// New creates a WatchDog. The watcher stops when watchCtx is done and
// closes notifyChan on the way out. A nil filter forwards every created
// file; otherwise only paths the filter accepts are sent.
func (w *WatchDogFactory) New(watchCtx context.Context, notifyChan chan<- string, filter filterFun) (*WatchDog, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	watchDog := &WatchDog{
		watchCtx,
		notifyChan, // send only channel
		filter,
		w.logger,
		watcher,
	}

	go watchDog.watch()

	return watchDog, nil
}

// AddDir adds a directory to the watch list.
func (w *WatchDog) AddDir(dir string) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		w.logger.Error("Failed to get absolute path", zap.String("dir", dir), zap.Error(err))
		return
	}
	if _, err := os.Stat(absDir); os.IsNotExist(err) {
		w.logger.Debug("Directory does not exist yet", zap.String("dir", absDir))
		return
	}
	if err := w.watcher.Add(absDir); err != nil {
		w.logger.Error("Failed to add directory to watcher", zap.String("dir", dir), zap.Error(err))
		return
	}
	w.logger.Debug("Added directory to watch list", zap.String("dir", dir))
}

func (w *WatchDog) watch() {
	defer w.watcher.Close()
	defer close(w.notifyChan)
	for {
		select {
		case <-w.watchCtx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("fsnotify error", zap.Error(err))
		}
	}
}

func (w *WatchDog) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != fsnotify.Create {
		return
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		w.AddDir(event.Name)
		return
	}
	if w.filter == nil || w.filter(event.Name) {
		select {
		case w.notifyChan <- event.Name:
		case <-w.watchCtx.Done():
		}
	}
}
