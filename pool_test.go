package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestPool(client ResourceClient, workers int) (*UploadPool, *Aggregator) {
	results := NewAggregator()
	return NewUploadPool(client, testConfig(workers), results), results
}

func TestSkipWhenRemoteCopyExists(t *testing.T) {
	mockDir := t.TempDir()
	absPath := writeTestFile(t, mockDir, "dup.txt", "12345")

	mockClient := NewMockResourceClient(map[string]int64{"dup.txt": 5})
	pool, _ := newTestPool(mockClient, 1)

	result := pool.process(UploadTask{AbsPath: absPath, RelPath: "dup.txt", ParentID: -1})

	assert.Equal(t, SkippedDuplicate, result.Outcome)
	assert.Len(t, mockClient.UploadRequests, 0)
}

func TestExistenceIndexShortCircuitsSecondCheck(t *testing.T) {
	mockDir := t.TempDir()
	absPath := writeTestFile(t, mockDir, "dup.txt", "12345")

	mockClient := NewMockResourceClient(map[string]int64{"dup.txt": 5})
	pool, _ := newTestPool(mockClient, 1)

	first := pool.process(UploadTask{AbsPath: absPath, RelPath: "dup.txt", ParentID: -1})
	second := pool.process(UploadTask{AbsPath: absPath, RelPath: "dup.txt", ParentID: -1})

	assert.Equal(t, SkippedDuplicate, first.Outcome)
	assert.Equal(t, SkippedDuplicate, second.Outcome)
	assert.Len(t, mockClient.ExistsRequests, 1)
}

func TestExistenceCheckFailureFallsThroughToUpload(t *testing.T) {
	mockDir := t.TempDir()
	absPath := writeTestFile(t, mockDir, "data.txt", "hello")

	mockClient := NewMockResourceClient(map[string]int64{"data.txt": 5})
	mockClient.FailExists(&NetworkError{Op: "existence check", Err: errors.New("connection refused")})
	pool, _ := newTestPool(mockClient, 1)

	result := pool.process(UploadTask{AbsPath: absPath, RelPath: "data.txt", ParentID: -1})

	assert.Equal(t, Uploaded, result.Outcome)
	assert.Len(t, mockClient.UploadRequests, 1)
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	mockDir := t.TempDir()
	absPath := writeTestFile(t, mockDir, "data.txt", "hello")

	mockClient := NewMockResourceClient(nil)
	mockClient.FailUploads("data.txt",
		&NetworkError{Op: "upload", Err: errors.New("connection reset")},
		&RemoteServerError{StatusCode: 502, Msg: "bad gateway"})
	pool, _ := newTestPool(mockClient, 1)

	result := pool.process(UploadTask{AbsPath: absPath, RelPath: "data.txt", ParentID: -1})

	assert.Equal(t, Uploaded, result.Outcome)
	assert.Equal(t, 3, result.Attempts)
	assert.Len(t, mockClient.UploadRequests, 3)
}

func TestRetryBudgetExhaustedIsFailed(t *testing.T) {
	mockDir := t.TempDir()
	absPath := writeTestFile(t, mockDir, "data.txt", "hello")

	mockClient := NewMockResourceClient(nil)
	mockClient.FailUploads("data.txt",
		&NetworkError{Op: "upload", Err: errors.New("timeout")},
		&NetworkError{Op: "upload", Err: errors.New("timeout")},
		&NetworkError{Op: "upload", Err: errors.New("timeout")})
	pool, _ := newTestPool(mockClient, 1)

	result := pool.process(UploadTask{AbsPath: absPath, RelPath: "data.txt", ParentID: -1})

	assert.Equal(t, Failed, result.Outcome)
	assert.Equal(t, 3, result.Attempts)
	assert.Len(t, mockClient.UploadRequests, 3)
}

func TestPayloadTooLargeIsNotRetried(t *testing.T) {
	mockDir := t.TempDir()
	absPath := writeTestFile(t, mockDir, "huge.zip", "pretend this is huge")

	mockClient := NewMockResourceClient(nil)
	mockClient.FailUploads("huge.zip", &PayloadTooLargeError{Name: "huge.zip"})
	pool, _ := newTestPool(mockClient, 1)

	result := pool.process(UploadTask{AbsPath: absPath, RelPath: "huge.zip", ParentID: -1})

	assert.Equal(t, Failed, result.Outcome)
	assert.Equal(t, 1, result.Attempts)
	assert.Len(t, mockClient.UploadRequests, 1)
}

func TestNonRetryableRemoteRejectionIsNotRetried(t *testing.T) {
	mockDir := t.TempDir()
	absPath := writeTestFile(t, mockDir, "data.txt", "hello")

	mockClient := NewMockResourceClient(nil)
	mockClient.FailUploads("data.txt", &RemoteServerError{StatusCode: 200, Msg: "resource name already in use"})
	pool, _ := newTestPool(mockClient, 1)

	result := pool.process(UploadTask{AbsPath: absPath, RelPath: "data.txt", ParentID: -1})

	assert.Equal(t, Failed, result.Outcome)
	assert.Equal(t, 1, result.Attempts)
	assert.Len(t, mockClient.UploadRequests, 1)
}

func TestMissingLocalFileIsFailed(t *testing.T) {
	mockClient := NewMockResourceClient(nil)
	pool, _ := newTestPool(mockClient, 1)

	result := pool.process(UploadTask{AbsPath: "/not/a/real/file", RelPath: "file", ParentID: -1})

	assert.Equal(t, Failed, result.Outcome)
	var readErr *LocalReadError
	assert.True(t, errors.As(result.Err, &readErr))
	assert.Len(t, mockClient.UploadRequests, 0)
}

func TestConsecutiveAuthFailuresAbortTheRun(t *testing.T) {
	mockDir := t.TempDir()
	mockClient := NewMockResourceClient(nil)
	pool, results := newTestPool(mockClient, 1)

	taskCount := 10
	tasks := make([]UploadTask, 0, taskCount)
	for i := 0; i < taskCount; i++ {
		relPath := fmt.Sprintf("file%02d.txt", i)
		absPath := writeTestFile(t, mockDir, relPath, fmt.Sprintf("content-%02d", i))
		mockClient.FailUploads(relPath, &AuthError{StatusCode: 401})
		tasks = append(tasks, UploadTask{AbsPath: absPath, RelPath: relPath, ParentID: -1})
	}

	results.Discovered(taskCount)
	pool.Start()
	for _, task := range tasks {
		pool.Submit(task)
	}
	pool.Drain()

	summary := results.Summary()
	assert.Equal(t, taskCount, summary.FailedCount)
	assert.Len(t, summary.Failures, taskCount)
	// first three attempts hit the API, the latch stops the rest
	assert.Equal(t, authFailureThreshold, mockClient.UploadCount())
}

func TestTaskAfterAbortRecordsZeroAttempts(t *testing.T) {
	mockDir := t.TempDir()
	absPath := writeTestFile(t, mockDir, "late.txt", "never sent")

	mockClient := NewMockResourceClient(nil)
	pool, _ := newTestPool(mockClient, 1)
	for i := 0; i < authFailureThreshold; i++ {
		pool.recordAuthFailure()
	}

	result := pool.process(UploadTask{AbsPath: absPath, RelPath: "late.txt", ParentID: -1})

	assert.Equal(t, Failed, result.Outcome)
	assert.Equal(t, 0, result.Attempts)
	assert.Contains(t, result.Err.Error(), "not attempted")
	assert.Len(t, mockClient.UploadRequests, 0)
}

func TestEveryTaskYieldsExactlyOneResult(t *testing.T) {
	mockDir := t.TempDir()
	mockClient := NewMockResourceClient(nil)
	mockClient.FailUploads("flaky.txt", &NetworkError{Op: "upload", Err: errors.New("reset")})
	pool, results := newTestPool(mockClient, 4)

	taskCount := 20
	results.Discovered(taskCount)
	pool.Start()
	for i := 0; i < taskCount; i++ {
		relPath := fmt.Sprintf("f%02d.txt", i)
		if i == 0 {
			relPath = "flaky.txt"
		}
		absPath := writeTestFile(t, mockDir, relPath, fmt.Sprintf("content-%02d", i))
		pool.Submit(UploadTask{AbsPath: absPath, RelPath: relPath, ParentID: -1})
	}
	pool.Drain()

	summary := results.Summary()
	assert.Equal(t, taskCount, summary.UploadedCount+summary.SkippedCount+summary.FailedCount)
	assert.Equal(t, 0, summary.FailedCount)
}
