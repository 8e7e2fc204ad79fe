package ingest

import "github.com/snarg/transcript-segmenter/internal/api"

// Live exposes the event bus and watcher to the API layer.
type Live struct {
	*EventBus
	Watcher *FileWatcher
}

// WatcherStatus returns nil when no watcher is running.
func (l *Live) WatcherStatus() *api.WatcherStatusData {
	if l.Watcher == nil {
		return nil
	}
	return l.Watcher.Status()
}
