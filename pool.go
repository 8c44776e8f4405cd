package main

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Number of consecutive auth rejections before the pool stops issuing remote
// calls for the rest of the run.
const authFailureThreshold = 3

// TODO: is there some better way to allow for stubbing time interactions for tests?
var sleepFunc = time.Sleep

// ExistenceIndex remembers which name/size/fingerprint combos were found (or
// just uploaded) during this run. Scoped to one run, never persisted; a stale
// miss only costs a redundant existence check, never a silent skip.
type ExistenceIndex struct {
	known map[string]bool
	lock  sync.Mutex
}

func NewExistenceIndex() *ExistenceIndex {
	return &ExistenceIndex{known: make(map[string]bool)}
}

func (i *ExistenceIndex) Known(key string) bool {
	i.lock.Lock()
	defer i.lock.Unlock()
	return i.known[key]
}

func (i *ExistenceIndex) Mark(key string) {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.known[key] = true
}

// UploadPool drains a shared task queue with a fixed number of workers. Each
// task ends in exactly one result handed to the aggregator: uploaded, skipped
// as a duplicate, or failed.
type UploadPool struct {
	client  ResourceClient
	config  AppConfig
	results *Aggregator
	index   *ExistenceIndex

	tasks chan UploadTask
	wg    sync.WaitGroup

	authFailures int32
	abortOnce    sync.Once
	aborted      int32

	// OnResult, when set before Start, observes every terminal result after
	// it reaches the aggregator. The watcher uses it to learn which uploads
	// actually landed.
	OnResult func(UploadResult)
}

func NewUploadPool(client ResourceClient, appConfig AppConfig, results *Aggregator) *UploadPool {
	return &UploadPool{
		client:  client,
		config:  appConfig,
		results: results,
		index:   NewExistenceIndex(),
		tasks:   make(chan UploadTask, 64),
	}
}

func (p *UploadPool) Start() {
	workers := p.config.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *UploadPool) Submit(task UploadTask) {
	p.tasks <- task
}

// Drain closes the queue and blocks until every submitted task has a
// terminal result.
func (p *UploadPool) Drain() {
	close(p.tasks)
	p.wg.Wait()
}

func (p *UploadPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		result := p.process(task)
		p.results.Add(result)
		p.logResult(result)
		if p.OnResult != nil {
			p.OnResult(result)
		}
	}
}

func (p *UploadPool) logResult(result UploadResult) {
	switch result.Outcome {
	case Uploaded:
		log.Info(fmt.Sprintf("Uploaded %s (attempts: %d)", result.RelPath, result.Attempts))
	case SkippedDuplicate:
		log.Info(fmt.Sprintf("%s already present remotely, skipping", result.RelPath))
	case Failed:
		log.Warn(fmt.Sprintf("Upload failed for %s: %s", result.RelPath, result.Err))
	}
}

func (p *UploadPool) process(task UploadTask) UploadResult {
	if atomic.LoadInt32(&p.aborted) == 1 {
		// Attempts stays 0 here: the client was never called for this task.
		return UploadResult{
			RelPath: task.RelPath,
			Outcome: Failed,
			Err:     fmt.Errorf("not attempted: run aborted after repeated authentication failures"),
		}
	}

	info, statErr := os.Stat(task.AbsPath)
	if statErr != nil {
		return UploadResult{RelPath: task.RelPath, Outcome: Failed, Attempts: 1, Err: &LocalReadError{Path: task.AbsPath, Err: statErr}}
	}

	fingerprint, fpErr := fileFingerprint(task.AbsPath, p.config.ChunkSize)
	if fpErr != nil {
		return UploadResult{RelPath: task.RelPath, Outcome: Failed, Attempts: 1, Err: fpErr}
	}

	name := path.Base(task.RelPath)
	cacheKey := fmt.Sprintf("%s_%d_%s", name, info.Size(), fingerprint)
	if p.index.Known(cacheKey) {
		return UploadResult{RelPath: task.RelPath, Outcome: SkippedDuplicate}
	}

	exists, existsErr := p.client.Exists(name, info.Size())
	if existsErr != nil {
		// An unanswerable existence check must never block the sync; assume
		// the file is missing remotely and let the upload settle it.
		log.Warn(fmt.Sprintf("Existence check failed for %s, assuming not present: %s", name, existsErr))
	}
	if exists {
		p.index.Mark(cacheKey)
		return UploadResult{RelPath: task.RelPath, Outcome: SkippedDuplicate}
	}

	return p.uploadWithRetry(task, cacheKey)
}

func (p *UploadPool) uploadWithRetry(task UploadTask, cacheKey string) UploadResult {
	suffix := suffixForFile(task.RelPath)
	maxAttempts := p.config.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := p.config.RetryDelay()

	var uploadErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		uploadErr = p.client.Upload(task, suffix)
		if uploadErr == nil {
			atomic.StoreInt32(&p.authFailures, 0)
			p.index.Mark(cacheKey)
			return UploadResult{RelPath: task.RelPath, Outcome: Uploaded, Attempts: attempt}
		}

		var authErr *AuthError
		if errors.As(uploadErr, &authErr) {
			p.recordAuthFailure()
			return UploadResult{RelPath: task.RelPath, Outcome: Failed, Attempts: attempt, Err: uploadErr}
		}
		if !retryable(uploadErr) {
			return UploadResult{RelPath: task.RelPath, Outcome: Failed, Attempts: attempt, Err: uploadErr}
		}
		if attempt < maxAttempts {
			log.Warn(fmt.Sprintf("Attempt %d/%d failed for %s, retrying in %s: %s", attempt, maxAttempts, task.RelPath, delay, uploadErr))
			sleepFunc(delay)
			delay *= 2
		}
	}

	return UploadResult{RelPath: task.RelPath, Outcome: Failed, Attempts: maxAttempts, Err: uploadErr}
}

func (p *UploadPool) recordAuthFailure() {
	failures := atomic.AddInt32(&p.authFailures, 1)
	if failures >= authFailureThreshold {
		p.abortOnce.Do(func() {
			atomic.StoreInt32(&p.aborted, 1)
			log.Error(fmt.Sprintf("%d consecutive authentication failures, aborting remaining uploads. Fix the configured token and rerun.", failures))
		})
	}
}
