package main

// UploadTask is one discovered file headed for the remote resource store.
// Constructed by the scanner or the watcher, consumed exactly once by a
// worker.
type UploadTask struct {
	AbsPath  string
	RelPath  string
	ParentID int
}

// ResourceClient is the remote side of the sync. Implemented against the
// DolphinScheduler resource API in dolphin.go and mocked for tests in
// mock_client.go.
type ResourceClient interface {
	// Exists reports whether a resource with this alias and size is already
	// present under the configured tenant. Transport failures surface as an
	// error alongside false; callers treat that as "not present".
	Exists(name string, size int64) (bool, error)
	Upload(task UploadTask, suffix string) error
	TestConnection() error
}
