package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"azubi-engine/internal/domain"
	"azubi-engine/internal/scrape/fetch"
)

var ErrAlreadyRunning = errors.New("scrape: a run is already in progress")

// ConfigError aborts a run before any request is made.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "scrape: invalid run configuration: " + e.Reason }

type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusAborted   RunStatus = "aborted"
)

type Request struct {
	Sites       []string      `json:"sites"`
	SearchTerms []string      `json:"searchTerms"`
	MaxPages    int           `json:"maxPages,omitempty"`
	MaxRuntime  time.Duration `json:"-"`
}

type Summary struct {
	JobsFound         int  `json:"jobsFound"`
	DuplicatesSkipped int  `json:"duplicatesSkipped"`
	ExtractionErrors  int  `json:"extractionErrors"`
	SitesAbandoned    int  `json:"sitesAbandoned"`
	EmailsMerged      int  `json:"emailsMerged"`
	DetailErrors      int  `json:"detailErrors"`
	Filtered          int  `json:"filtered"`
	StoreErrors       int  `json:"storeErrors"`
	BudgetExhausted   bool `json:"budgetExhausted"`
}

type RunResult struct {
	Status     RunStatus    `json:"status"`
	Jobs       []domain.Job `json:"jobs"`
	Summary    Summary      `json:"summary"`
	Abandoned  []string     `json:"abandoned,omitempty"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
}

type ScrapeStatus struct {
	State       RunStatus `json:"state"`
	LastRunAt   string    `json:"last_run_at"`
	LastOkAt    string    `json:"last_ok_at"`
	LastError   string    `json:"last_error"`
	LastAdded   int       `json:"last_added"`
	LastSummary *Summary  `json:"last_summary,omitempty"`
	Running     bool      `json:"running"`
}

// JobStore persists jobs for the orchestrator. SaveJobs returns the jobs with
// their assigned IDs, in input order.
type JobStore interface {
	SaveJobs(ctx context.Context, jobs []domain.Job) ([]domain.Job, error)
	LoadExistingIndex(ctx context.Context) ([]domain.IndexEntry, error)
	UpdateJobEmails(ctx context.Context, id int64, emails []string) error
}

type PageFetcher interface {
	Fetch(ctx context.Context, url string, render bool) (*fetch.Page, error)
}

// ValidateRequest reports a request that cannot start as a *ConfigError.
func ValidateRequest(req Request) error {
	if len(req.Sites) == 0 {
		return &ConfigError{Reason: "no sites configured"}
	}
	if len(req.SearchTerms) == 0 {
		return &ConfigError{Reason: "no search terms configured"}
	}
	for _, s := range req.Sites {
		if _, err := domain.ParseSite(s); err != nil {
			return &ConfigError{Reason: err.Error()}
		}
	}
	if req.MaxPages <= 0 {
		return &ConfigError{Reason: fmt.Sprintf("max pages must be > 0, got %d", req.MaxPages)}
	}
	return nil
}
