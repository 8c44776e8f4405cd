package main

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// fileFingerprint computes the md5 of the file contents, reading in
// chunkSize blocks. The fingerprint keys the per-run existence cache and the
// watcher's already-uploaded record.
func fileFingerprint(path string, chunkSize int) (string, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return "", &LocalReadError{Path: path, Err: openErr}
	}
	defer file.Close()

	hasher := md5.New()
	buf := make([]byte, chunkSize)
	if _, copyErr := io.CopyBuffer(hasher, file, buf); copyErr != nil {
		return "", &LocalReadError{Path: path, Err: copyErr}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
