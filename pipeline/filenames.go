package pipeline

import (
	"path/filepath"
	"strings"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

var timestampReplacer = strings.NewReplacer(":", "-", ".", "-")

// GenerateFilename returns prefix.ext in stable mode, otherwise prefix_<timestamp>.ext
// with ':' and '.' in the UTC timestamp replaced by '-'.
func GenerateFilename(prefix, extension string, stable bool, now time.Time) string {
	if stable {
		return prefix + "." + extension
	}
	timestamp := timestampReplacer.Replace(now.UTC().Format(timestampLayout))
	return prefix + "_" + timestamp + "." + extension
}

// OutputPaths holds the files written by one run.
type OutputPaths struct {
	CSV   string
	JSON  string
	JSONL string
}

// NewOutputPaths builds every output path for a run from the same timestamp.
func NewOutputPaths(dir, prefix string, stable bool, now time.Time) OutputPaths {
	return OutputPaths{
		CSV:   filepath.Join(dir, GenerateFilename(prefix, "csv", stable, now)),
		JSON:  filepath.Join(dir, GenerateFilename(prefix, "json", stable, now)),
		JSONL: filepath.Join(dir, GenerateFilename(prefix, "jsonl", stable, now)),
	}
}
