package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

func compileExcludes(patterns []string) (*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	// TODO: for now with a small number of exclusion matchers, this is OK, but we
	// should figure out a more efficient way to handle a larger pattern list
	exclude, compileErr := regexp.Compile(strings.Join(patterns, "|"))
	if compileErr != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %s", compileErr)
	}
	return exclude, nil
}

// runBatchUpload scans root, pushes every non-excluded file through the
// worker pool and returns the aggregated totals. The lock keeps a scheduled
// rescan from overlapping a run already in flight.
func runBatchUpload(root string, appConfig AppConfig, client ResourceClient, notifier Notifier, lock *sync.Mutex) (*RunSummary, error) {
	if !lock.TryLock() {
		log.Warn("Another sync run is already in progress. Skipping.")
		return nil, fmt.Errorf("unable to acquire run lock")
	}
	defer lock.Unlock()

	log.Info(fmt.Sprintf("Sync starting for %s.", root))
	syncStartTime := time.Now()

	exclude, excludeErr := compileExcludes(appConfig.Exclude)
	if excludeErr != nil {
		return nil, excludeErr
	}

	entries, scanErr := concreteScanFunc(root)
	if scanErr != nil {
		log.Warn(fmt.Sprintf("scan err: %s", scanErr))
		return nil, scanErr
	}

	kept := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		if exclude != nil && exclude.MatchString(entry.AbsPath) {
			log.Info(fmt.Sprintf("%s matches exclusion list. skipping...", entry.AbsPath))
			continue
		}
		kept = append(kept, entry)
	}

	results := NewAggregator()
	results.Discovered(len(kept))

	pool := NewUploadPool(client, appConfig, results)
	pool.Start()
	for _, entry := range kept {
		pool.Submit(UploadTask{AbsPath: entry.AbsPath, RelPath: entry.RelPath, ParentID: appConfig.ParentID})
	}
	pool.Drain()

	summary := results.Summary()
	duration := time.Since(syncStartTime)
	log.Info(fmt.Sprintf("Sync complete for %s. Took %s. Total: %d, uploaded: %d, skipped: %d, failed: %d",
		root, duration.String(), summary.TotalDiscovered, summary.UploadedCount, summary.SkippedCount, summary.FailedCount))
	for _, failure := range summary.Failures {
		log.Warn(fmt.Sprintf("  failed: %s => %s", failure.RelPath, failure.Reason))
	}

	if notifier != nil {
		if notifyErr := notifier.NotifyRunSummary(root, summary); notifyErr != nil {
			log.Warn(fmt.Sprintf("Error sending run notification: %s", notifyErr))
		}
	}

	return &summary, nil
}

// runWatch watches root and uploads files as they settle, until ctx is
// cancelled. Files still changing at shutdown are abandoned; a fsnotify event
// will pick them up again on the next start. When RescanCron is configured a
// scheduled full batch run reconciles anything whose events were missed.
func runWatch(ctx context.Context, root string, appConfig AppConfig, client ResourceClient, notifier Notifier) error {
	results := NewAggregator()
	pool := NewUploadPool(client, appConfig, results)

	// The watcher hooks into pool results, so it is wired up before any
	// worker starts.
	watcher, watchErr := NewWatcher(root, appConfig, pool, results)
	if watchErr != nil {
		return watchErr
	}
	defer watcher.Close()
	pool.Start()

	if appConfig.RescanCron != "" {
		rescanLock := &sync.Mutex{}
		scheduler := gocron.NewScheduler(time.UTC)
		_, jobErr := scheduler.Cron(appConfig.RescanCron).Do(func() {
			if _, rescanErr := runBatchUpload(root, appConfig, client, notifier, rescanLock); rescanErr != nil {
				log.Warn(fmt.Sprintf("Scheduled rescan failed: %s", rescanErr))
			}
		})
		if jobErr != nil {
			pool.Drain()
			return fmt.Errorf("invalid rescan schedule %q: %s", appConfig.RescanCron, jobErr)
		}
		scheduler.StartAsync()
		defer scheduler.Stop()
		log.Info(fmt.Sprintf("Scheduled full rescan registered: %s", appConfig.RescanCron))
	}

	runErr := watcher.Run(ctx)
	pool.Drain()

	summary := results.Summary()
	log.Info(fmt.Sprintf("Watch stopped for %s. Total: %d, uploaded: %d, skipped: %d, failed: %d",
		root, summary.TotalDiscovered, summary.UploadedCount, summary.SkippedCount, summary.FailedCount))
	if notifier != nil {
		if notifyErr := notifier.NotifyRunSummary(root, summary); notifyErr != nil {
			log.Warn(fmt.Sprintf("Error sending run notification: %s", notifyErr))
		}
	}

	return runErr
}
