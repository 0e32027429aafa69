package api

import (
	"context"
	"os"
	"sync"
	"time"

	"buurtstat/domain/report"
	apperrors "buurtstat/internal/errors"
)

// FileSource serves the precomputed results JSON written by the
// pipeline. The parsed summary is cached until the file changes on
// disk, so the dashboard can poll without re-reading every request.
type FileSource struct {
	path string

	mu      sync.Mutex
	cached  *report.Summary
	modTime time.Time
}

// NewFileSource creates a source reading from the given JSON path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// LatestSummary returns the summary from disk, re-parsing only when
// the file's modification time advances.
func (f *FileSource) LatestSummary(ctx context.Context) (*report.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		return nil, apperrors.NotFound("precomputed results file")
	}
	if f.cached != nil && info.ModTime().Equal(f.modTime) {
		return f.cached, nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, apperrors.ReportError("failed to read precomputed results", err)
	}
	sum, err := report.UnmarshalSummary(data)
	if err != nil {
		return nil, apperrors.ReportError("failed to parse precomputed results", err)
	}

	f.cached = sum
	f.modTime = info.ModTime()
	return sum, nil
}
