package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Name patterns that never enter tracking: editor temp/backup files, lock
// files, hidden files, logs. Filtering happens before any state is created so
// editor save storms can't reach the upload queue.
var tempNamePatterns = []string{".tmp", ".temp", ".swp", ".lock", ".part", "~", ".bak", ".backup", "#", ".ds_store"}

var skipDirNames = map[string]bool{
	"__pycache__":  true,
	".git":         true,
	".svn":         true,
	"node_modules": true,
}

// pendingFile tracks one changing path until it goes quiet.
type pendingFile struct {
	lastSize  int64
	lastEvent time.Time
}

// Watcher turns raw fsnotify events into upload tasks once a file has stopped
// growing for the configured quiet interval. The pending map is touched only
// by the Run goroutine; timers and events funnel into its select loop. The
// uploaded/inFlight maps are shared with pool workers and guarded by
// trackLock.
type Watcher struct {
	root    string
	config  AppConfig
	pool    *UploadPool
	results *Aggregator
	exclude *regexp.Regexp

	fw      *fsnotify.Watcher
	pending map[string]*pendingFile

	trackLock sync.Mutex
	// uploaded holds, per path, the fingerprint of the last content that
	// reached the server (uploaded, or confirmed already present). Written
	// only from recordOutcome so a failed upload never suppresses a retry.
	uploaded map[string]string
	// inFlight holds the fingerprint of each submitted task until its
	// terminal result comes back.
	inFlight map[string]string
}

func NewWatcher(root string, appConfig AppConfig, pool *UploadPool, results *Aggregator) (*Watcher, error) {
	rootInfo, statErr := os.Stat(root)
	if statErr != nil {
		return nil, &ScanError{Root: root, Err: statErr}
	}
	if !rootInfo.IsDir() {
		return nil, &ScanError{Root: root, Err: fmt.Errorf("not a directory")}
	}

	exclude, excludeErr := compileExcludes(appConfig.Exclude)
	if excludeErr != nil {
		return nil, excludeErr
	}

	fw, watcherErr := fsnotify.NewWatcher()
	if watcherErr != nil {
		return nil, watcherErr
	}

	w := &Watcher{
		root:     root,
		config:   appConfig,
		pool:     pool,
		results:  results,
		exclude:  exclude,
		fw:       fw,
		pending:  make(map[string]*pendingFile),
		uploaded: make(map[string]string),
		inFlight: make(map[string]string),
	}
	pool.OnResult = w.recordOutcome

	// fsnotify watches are not recursive; register every existing directory.
	walkErr := filepath.Walk(root, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			log.Warn(fmt.Sprintf("Unable to register watch on %s: %s", path, err))
			return nil
		}
		if !f.IsDir() {
			return nil
		}
		if skipDirNames[f.Name()] && path != root {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
	if walkErr != nil {
		fw.Close()
		return nil, &ScanError{Root: root, Err: walkErr}
	}

	log.Info(fmt.Sprintf("Watching %s (quiet interval: %s)", root, appConfig.QuietInterval()))
	return w, nil
}

func (w *Watcher) Close() error {
	return w.fw.Close()
}

// Run consumes events and drives the periodic stability sweep until ctx is
// cancelled. Paths still pending at shutdown are abandoned, not flushed.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.config.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(w.pending) > 0 {
				log.Warn(fmt.Sprintf("Shutting down with %d file(s) still settling; they will not be uploaded", len(w.pending)))
			}
			return nil
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, time.Now())
		case <-ticker.C:
			w.sweep(time.Now())
		case watchErr, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			log.Warn(fmt.Sprintf("Watcher error: %s", watchErr))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event, now time.Time) {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if _, tracked := w.pending[event.Name]; tracked {
			log.Debug(fmt.Sprintf("%s removed before settling, discarding", event.Name))
			delete(w.pending, event.Name)
		}
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, statErr := os.Stat(event.Name)
	if statErr != nil {
		// Raced with a delete; nothing to track.
		return
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !skipDirNames[info.Name()] {
			if addErr := w.fw.Add(event.Name); addErr != nil {
				log.Warn(fmt.Sprintf("Unable to watch new directory %s: %s", event.Name, addErr))
			}
		}
		return
	}
	if w.shouldSkip(event.Name) {
		log.Debug(fmt.Sprintf("%s matches a filter, ignoring", event.Name))
		return
	}

	entry, tracked := w.pending[event.Name]
	if !tracked {
		w.pending[event.Name] = &pendingFile{lastSize: info.Size(), lastEvent: now}
		log.Debug(fmt.Sprintf("Tracking %s", event.Name))
		return
	}
	entry.lastSize = info.Size()
	entry.lastEvent = now
}

// sweep promotes every tracked path that has been event-free for the quiet
// interval and whose size matches the last observation. A path is promoted at
// most once per stability window: promotion removes its entry.
func (w *Watcher) sweep(now time.Time) {
	for path, entry := range w.pending {
		if now.Sub(entry.lastEvent) < w.config.QuietInterval() {
			continue
		}
		info, statErr := os.Stat(path)
		if statErr != nil {
			log.Debug(fmt.Sprintf("%s disappeared before settling, discarding", path))
			delete(w.pending, path)
			continue
		}
		if info.Size() != entry.lastSize {
			entry.lastSize = info.Size()
			entry.lastEvent = now
			continue
		}

		delete(w.pending, path)
		w.enqueue(path)
	}
}

func (w *Watcher) enqueue(path string) {
	relPath, relErr := filepath.Rel(w.root, path)
	if relErr != nil {
		log.Warn(fmt.Sprintf("Unable to relativize %s: %s", path, relErr))
		return
	}
	relPath = filepath.ToSlash(relPath)

	w.results.Discovered(1)

	// Suppress re-uploads of content this process already sent: editors fire
	// events on touch without changing bytes. Only content with a successful
	// terminal result counts as sent.
	fingerprint, fpErr := fileFingerprint(path, w.config.ChunkSize)
	if fpErr == nil {
		w.trackLock.Lock()
		previous, seen := w.uploaded[path]
		if seen && previous == fingerprint {
			w.trackLock.Unlock()
			log.Info(fmt.Sprintf("%s settled with unchanged content, skipping", relPath))
			w.results.Add(UploadResult{RelPath: relPath, Outcome: SkippedDuplicate})
			return
		}
		w.inFlight[relPath] = fingerprint
		w.trackLock.Unlock()
	}

	log.Info(fmt.Sprintf("%s settled, queueing upload", relPath))
	w.pool.Submit(UploadTask{AbsPath: path, RelPath: relPath, ParentID: w.config.ParentID})
}

// recordOutcome runs on pool worker goroutines. It promotes the in-flight
// fingerprint to the uploaded map when the task ended with the content on the
// server; a failed task leaves no trace so the next settle resubmits it.
func (w *Watcher) recordOutcome(result UploadResult) {
	w.trackLock.Lock()
	defer w.trackLock.Unlock()

	fingerprint, tracked := w.inFlight[result.RelPath]
	if !tracked {
		return
	}
	delete(w.inFlight, result.RelPath)
	if result.Outcome == Failed {
		return
	}
	w.uploaded[filepath.Join(w.root, filepath.FromSlash(result.RelPath))] = fingerprint
}

func (w *Watcher) shouldSkip(path string) bool {
	name := filepath.Base(path)
	lower := strings.ToLower(name)

	for _, pattern := range tempNamePatterns {
		if strings.HasSuffix(lower, pattern) || strings.HasPrefix(lower, pattern) {
			return true
		}
	}
	if strings.HasPrefix(name, ".") && name != ".env" && name != ".gitignore" {
		return true
	}
	if strings.HasSuffix(lower, ".log") {
		return true
	}
	for _, component := range strings.Split(filepath.ToSlash(path), "/") {
		if skipDirNames[component] {
			return true
		}
	}
	if w.exclude != nil && w.exclude.MatchString(path) {
		return true
	}

	return false
}
