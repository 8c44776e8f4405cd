package main

import "sync"

// MockResourceClient scripts remote behavior for tests. Upload errors are
// consumed per call, so a sequence like {network, network, nil} exercises the
// retry path. Safe for concurrent workers.
type MockResourceClient struct {
	UploadRequests []MockUploadRequest
	ExistsRequests []string

	existing   map[string]int64
	uploadErrs map[string][]error
	existsErr  error
	lock       sync.Mutex
}

type MockUploadRequest struct {
	Task   UploadTask
	Suffix string
}

func NewMockResourceClient(existing map[string]int64) *MockResourceClient {
	if existing == nil {
		existing = make(map[string]int64)
	}
	return &MockResourceClient{
		UploadRequests: make([]MockUploadRequest, 0),
		ExistsRequests: make([]string, 0),
		existing:       existing,
		uploadErrs:     make(map[string][]error),
	}
}

// FailUploads queues errs to be returned by successive Upload calls for
// relPath; once drained, uploads succeed.
func (c *MockResourceClient) FailUploads(relPath string, errs ...error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.uploadErrs[relPath] = append(c.uploadErrs[relPath], errs...)
}

func (c *MockResourceClient) FailExists(err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.existsErr = err
}

func (c *MockResourceClient) Exists(name string, size int64) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.ExistsRequests = append(c.ExistsRequests, name)
	if c.existsErr != nil {
		return false, c.existsErr
	}
	knownSize, ok := c.existing[name]
	return ok && knownSize == size, nil
}

func (c *MockResourceClient) Upload(task UploadTask, suffix string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.UploadRequests = append(c.UploadRequests, MockUploadRequest{Task: task, Suffix: suffix})
	queued := c.uploadErrs[task.RelPath]
	if len(queued) > 0 {
		c.uploadErrs[task.RelPath] = queued[1:]
		return queued[0]
	}
	return nil
}

func (c *MockResourceClient) TestConnection() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.existsErr
}

func (c *MockResourceClient) UploadCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.UploadRequests)
}
