package main

import "sync"

type Outcome int

const (
	Uploaded Outcome = iota
	SkippedDuplicate
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Uploaded:
		return "uploaded"
	case SkippedDuplicate:
		return "skipped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// UploadResult is the terminal record for one task. Every task submitted to
// the pool produces exactly one of these.
type UploadResult struct {
	RelPath  string
	Outcome  Outcome
	Attempts int
	Err      error
}

type Failure struct {
	RelPath string
	Reason  string
}

type RunSummary struct {
	TotalDiscovered int
	UploadedCount   int
	SkippedCount    int
	FailedCount     int
	Failures        []Failure
}

// Aggregator accumulates results from concurrent workers. Failures keep
// arrival order; no other ordering is significant.
type Aggregator struct {
	summary RunSummary
	lock    *sync.Mutex
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		summary: RunSummary{Failures: make([]Failure, 0)},
		lock:    new(sync.Mutex),
	}
}

func (a *Aggregator) Discovered(n int) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.summary.TotalDiscovered += n
}

func (a *Aggregator) Add(result UploadResult) {
	a.lock.Lock()
	defer a.lock.Unlock()
	switch result.Outcome {
	case Uploaded:
		a.summary.UploadedCount++
	case SkippedDuplicate:
		a.summary.SkippedCount++
	case Failed:
		a.summary.FailedCount++
		reason := "unknown error"
		if result.Err != nil {
			reason = result.Err.Error()
		}
		a.summary.Failures = append(a.summary.Failures, Failure{RelPath: result.RelPath, Reason: reason})
	}
}

// Summary returns a copy of the current totals.
func (a *Aggregator) Summary() RunSummary {
	a.lock.Lock()
	defer a.lock.Unlock()
	summary := a.summary
	summary.Failures = make([]Failure, len(a.summary.Failures))
	copy(summary.Failures, a.summary.Failures)
	return summary
}
