package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/transcript-segmenter/internal/api"
	"github.com/snarg/transcript-segmenter/internal/metrics"
	"github.com/snarg/transcript-segmenter/internal/storage"
	"github.com/snarg/transcript-segmenter/internal/transcript"
)

const (
	transcriptExt  = ".txt"
	segmentsSuffix = ".segments.txt"
	debounceDelay  = 500 * time.Millisecond
)

// FileWatcher monitors a directory tree for new transcript files and queues
// them for segmentation. Results land in the pool's output store.
type FileWatcher struct {
	pool     *WorkerPool
	store    storage.Store // used to skip already-segmented files during backfill
	watchDir string
	backfill bool
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
	status         atomic.Value // string: "starting", "backfilling", "watching", "stopped"
}

// NewFileWatcher creates a watcher over watchDir. When backfill is true,
// existing transcripts without a stored output are queued on Start.
func NewFileWatcher(pool *WorkerPool, store storage.Store, watchDir string, backfill bool, log zerolog.Logger) *FileWatcher {
	fw := &FileWatcher{
		pool:           pool,
		store:          store,
		watchDir:       watchDir,
		backfill:       backfill,
		log:            log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
	}
	fw.status.Store("starting")
	return fw
}

// Start adds every directory under the watch root to fsnotify and begins
// watching for new files. Backfill, if enabled, runs in the background.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(fw.watchDir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	fw.watcher = w
	fw.ctx, fw.cancel = context.WithCancel(ctx)

	dirCount := 0
	err = filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fw.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil // continue walking
		}
		if d.IsDir() {
			if addErr := w.Add(path); addErr != nil {
				fw.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		w.Close()
		return err
	}

	fw.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", fw.watchDir).
		Msg("file watcher initialized")

	go fw.watchLoop()

	if fw.backfill {
		go fw.runBackfill()
	} else {
		fw.status.Store("watching")
	}
	return nil
}

// Stop closes the fsnotify watcher and cancels pending debounced work.
func (fw *FileWatcher) Stop() {
	fw.status.Store("stopped")
	if fw.cancel != nil {
		fw.cancel()
	}
	if fw.watcher != nil {
		fw.watcher.Close()
	}

	fw.debounceMu.Lock()
	for path, t := range fw.debounceTimers {
		t.Stop()
		delete(fw.debounceTimers, path)
	}
	fw.debounceMu.Unlock()

	fw.log.Info().
		Int64("files_processed", fw.filesProcessed.Load()).
		Int64("files_skipped", fw.filesSkipped.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (fw *FileWatcher) Status() *api.WatcherStatusData {
	s, _ := fw.status.Load().(string)
	return &api.WatcherStatusData{
		Status:         s,
		WatchDir:       fw.watchDir,
		FilesProcessed: fw.filesProcessed.Load(),
		FilesSkipped:   fw.filesSkipped.Load(),
	}
}

func (fw *FileWatcher) watchLoop() {
	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New directory: watch it too.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := fw.watcher.Add(event.Name); err != nil {
					fw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					fw.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !isTranscriptFile(event.Name) {
				continue
			}
			fw.scheduleProcess(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces file processing so a file is read only after
// writes to it have settled.
func (fw *FileWatcher) scheduleProcess(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.debounceTimers[path]; ok {
		t.Reset(debounceDelay)
		return
	}

	fw.debounceTimers[path] = time.AfterFunc(debounceDelay, func() {
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()

		fw.processFile(fw.ctx, path)
	})
}

// processFile parses a transcript file and queues it. Files too short to
// segment are counted as skipped.
func (fw *FileWatcher) processFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to stat transcript")
		return
	}
	t, err := transcript.ParseFile(path)
	if err != nil {
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to read transcript")
		metrics.WatcherFilesTotal.WithLabelValues("error").Inc()
		return
	}
	if len(t.Tokens) <= 1 {
		fw.filesSkipped.Add(1)
		metrics.WatcherFilesTotal.WithLabelValues("skipped").Inc()
		fw.log.Debug().Str("path", path).Int("sentences", len(t.Sentences)).Msg("transcript too short, skipping")
		return
	}

	_, err = fw.pool.SubmitWait(ctx, api.JobRequest{
		Source:     "watch",
		Name:       filepath.Base(path),
		Transcript: t,
		ReceivedAt: info.ModTime(),
	})
	if err != nil {
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to queue transcript")
		metrics.WatcherFilesTotal.WithLabelValues("error").Inc()
		return
	}

	fw.filesProcessed.Add(1)
	metrics.WatcherFilesTotal.WithLabelValues("queued").Inc()
}

// runBackfill queues existing transcripts whose output is not yet in the
// store, oldest first.
func (fw *FileWatcher) runBackfill() {
	fw.status.Store("backfilling")
	start := time.Now()

	type fileEntry struct {
		path    string
		modTime time.Time
	}
	var files []fileEntry

	_ = filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isTranscriptFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if fw.store != nil {
			key := storage.OutputKey(outputName(filepath.Base(path), uuid.Nil), info.ModTime())
			if fw.store.Exists(fw.ctx, key) {
				return nil
			}
		}
		files = append(files, fileEntry{path: path, modTime: info.ModTime()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	fw.log.Info().Int("files", len(files)).Msg("backfill starting")

	for _, f := range files {
		if fw.ctx.Err() != nil {
			fw.log.Info().Msg("backfill interrupted by shutdown")
			return
		}
		fw.processFile(fw.ctx, f.path)
	}

	fw.status.Store("watching")
	fw.log.Info().
		Int("files", len(files)).
		Dur("elapsed", time.Since(start)).
		Msg("backfill complete")
}

// isTranscriptFile reports whether path names a transcript input rather
// than a segmented output.
func isTranscriptFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, transcriptExt) && !strings.HasSuffix(name, segmentsSuffix)
}
