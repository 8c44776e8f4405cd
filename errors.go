package main

import (
	"errors"
	"fmt"
)

// Error types produced by the resource client and the scanner. Workers match
// them with errors.As to decide whether an attempt is worth retrying.

// NetworkError covers transport-level failures (connection refused, timeout,
// DNS). Always retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %s", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteServerError covers a response the server did return but that signals
// failure, either at the HTTP layer or in the API result body. Retryable only
// for 5xx statuses.
type RemoteServerError struct {
	StatusCode int
	Msg        string
}

func (e *RemoteServerError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("remote error (HTTP %d): %s", e.StatusCode, e.Msg)
	}
	return fmt.Sprintf("remote error (HTTP %d)", e.StatusCode)
}

// AuthError means the token was rejected. Every subsequent request will fail
// the same way, so the pool escalates after a few of these in a row.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (HTTP %d): check that the configured token is valid", e.StatusCode)
}

// PayloadTooLargeError is terminal for the file, retrying cannot help.
type PayloadTooLargeError struct {
	Name string
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload too large: %s", e.Name)
}

// LocalReadError means the local file could not be opened or read.
type LocalReadError struct {
	Path string
	Err  error
}

func (e *LocalReadError) Error() string {
	return fmt.Sprintf("unable to read %s: %s", e.Path, e.Err)
}

func (e *LocalReadError) Unwrap() error { return e.Err }

// ScanError is fatal for a batch run: the root itself is missing or unreadable.
type ScanError struct {
	Root string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("unable to scan %s: %s", e.Root, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// retryable reports whether another attempt at the same upload could succeed.
func retryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var remoteErr *RemoteServerError
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode >= 500
	}
	return false
}
