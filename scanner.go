package main

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

type FileEntry struct {
	AbsPath string
	RelPath string
}

type scanFunc func(string) ([]FileEntry, error)

// TODO: is there some better way to allow for stubbing filesystem interactions for tests?
var concreteScanFunc = scanDirectory

// scanDirectory walks root and returns one entry per regular file, with the
// relative path slash-separated so it can be used directly as the remote
// logical name. Unreadable subdirectories are skipped with a warning; the
// files inside them are simply not discovered. Unreadable files still get an
// entry and fail later as a per-file result when a worker tries to read them.
func scanDirectory(root string) ([]FileEntry, error) {
	rootInfo, statErr := os.Stat(root)
	if statErr != nil {
		return nil, &ScanError{Root: root, Err: statErr}
	}
	if !rootInfo.IsDir() {
		return nil, &ScanError{Root: root, Err: fmt.Errorf("not a directory")}
	}

	entries := make([]FileEntry, 0)
	walkErr := filepath.Walk(root, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			log.Warn(fmt.Sprintf("Unable to read %s during scan: %s", path, err))
			if f != nil && f.IsDir() {
				return filepath.SkipDir
			}
			// Keep the entry: the worker's own read will fail and report it
			// as a per-file result instead of the file vanishing silently.
			relPath, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}
			entries = append(entries, FileEntry{AbsPath: path, RelPath: filepath.ToSlash(relPath)})
			return nil
		}
		if f.IsDir() || !f.Mode().IsRegular() {
			return nil
		}
		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		entries = append(entries, FileEntry{AbsPath: path, RelPath: filepath.ToSlash(relPath)})
		return nil
	})
	if walkErr != nil {
		return entries, &ScanError{Root: root, Err: walkErr}
	}

	return entries, nil
}
