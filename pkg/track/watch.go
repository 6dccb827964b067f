package track

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/utils/cache"
)

// Watcher reloads a track whenever its definition file changes. The stale
// entry of the track cache is dropped before reloading through it.
type Watcher struct {
	path    string
	tracks  cache.Cache[string, Track]
	watcher *fsnotify.Watcher
	l       *log.Logger
}

// NewWatcher starts watching the file at path. Changes are reported once
// Run is called. The directory is watched so that editors replacing the
// file are noticed as well.
func NewWatcher(path string, tracks cache.Cache[string, Track]) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:    abs,
		tracks:  tracks,
		watcher: fw,
		l:       log.Default().Named("track.watch"),
	}, nil
}

// Path is the absolute path of the watched file, the key of the track in
// the cache.
func (w *Watcher) Path() string {
	return w.path
}

// Run calls fn with the reloaded track (or the load error) after each
// change until ctx is done.
func (w *Watcher) Run(ctx context.Context, fn func(*Track, error)) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			w.l.Debug("context done, stopping track watch")
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			w.l.Debug("change detected",
				log.String("file", event.Name), log.String("op", event.Op.String()))
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.l.Info("track file changed, reloading", log.String("file", w.path))
				w.tracks.Invalidate(ctx, w.path)
				fn(w.tracks.Get(ctx, w.path))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.l.Error("watcher error", log.ErrorField(err))
		}
	}
}

// Close stops watching without Run.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
