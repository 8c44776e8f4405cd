package main

import (
	"path/filepath"
	"strings"
)

// DolphinScheduler rejects uploads whose suffix parameter is not one of a
// fixed lowercase set. Anything else is stored as plain text.
var acceptedSuffixes = map[string]bool{
	"jar":        true,
	"zip":        true,
	"tar":        true,
	"gz":         true,
	"py":         true,
	"sql":        true,
	"json":       true,
	"xml":        true,
	"properties": true,
	"yml":        true,
	"yaml":       true,
	"sh":         true,
	"bat":        true,
	"md":         true,
	"txt":        true,
}

const defaultSuffix = "txt"

func suffixForFile(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if acceptedSuffixes[ext] {
		return ext
	}
	return defaultSuffix
}
