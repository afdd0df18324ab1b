// Package export writes stored jobs as JSON Lines, one job per line with every
// field present.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"azubi-engine/internal/domain"
	"azubi-engine/internal/store"
)

type JobLister interface {
	ListJobs(ctx context.Context, opts store.ListJobsOpts) ([]domain.Job, error)
}

// WriteJSONL encodes jobs to w and returns the number of lines written.
func WriteJSONL(w io.Writer, jobs []domain.Job) (int, error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i, j := range jobs {
		if j.Emails == nil {
			j.Emails = []string{}
		}
		if err := enc.Encode(j); err != nil {
			return i, fmt.Errorf("encode job %d: %w", j.ID, err)
		}
	}
	return len(jobs), bw.Flush()
}

// ToFile writes the selected jobs to path through a temp file so readers never
// see a partial export.
func ToFile(ctx context.Context, src JobLister, path string, opts store.ListJobsOpts) (int, error) {
	jobs, err := src.ListJobs(ctx, opts)
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	n, err := WriteJSONL(f, jobs)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return n, os.Rename(tmp, path)
}
