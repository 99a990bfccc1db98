package page

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
)

// Signal is a page-level occurrence that triggers a fresh detection pass.
type Signal string

const (
	SignalMutation   Signal = "mutation"   // DOM subtree changed
	SignalNavigation Signal = "navigation" // history navigation without reload
	SignalPageShow   Signal = "pageshow"   // back/forward cache restore
	SignalVisibility Signal = "visibility" // tab visibility regained
)

// SnapshotWatcher turns filesystem changes to a page snapshot file into
// mutation signals, standing in for the DOM mutation observer when the
// engine runs against an on-disk snapshot.
type SnapshotWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	signals chan Signal
	stop    chan struct{}
	done    chan struct{}
	logger  *logging.ChanneledLogger
}

// NewSnapshotWatcher watches the directory containing the snapshot file;
// editors replace files on save, so watching the file alone misses renames.
func NewSnapshotWatcher(path string, logger *logging.ChanneledLogger) (*SnapshotWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	sw := &SnapshotWatcher{
		watcher: watcher,
		path:    filepath.Clean(path),
		signals: make(chan Signal, 8),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	sw.logger = logger
	go sw.run()
	return sw, nil
}

// Signals delivers one SignalMutation per relevant filesystem event.
// Debouncing is the consumer's job, same as for real mutation bursts.
func (sw *SnapshotWatcher) Signals() <-chan Signal {
	return sw.signals
}

func (sw *SnapshotWatcher) run() {
	defer close(sw.done)
	for {
		select {
		case <-sw.stop:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != sw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case sw.signals <- SignalMutation:
			default:
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			if sw.logger != nil {
				sw.logger.Inject().Warn("Snapshot watcher error", "error", err.Error())
			}
		}
	}
}

// Close stops the watcher and its goroutine.
func (sw *SnapshotWatcher) Close() error {
	close(sw.stop)
	err := sw.watcher.Close()
	<-sw.done
	return err
}
