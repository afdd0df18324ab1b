package domain

import (
	"fmt"
	"strings"
	"time"
)

type Site string

const (
	SiteAzubi      Site = "azubi"
	SiteAusbildung Site = "ausbildung"
)

func ParseSite(s string) (Site, error) {
	switch Site(strings.ToLower(strings.TrimSpace(s))) {
	case SiteAzubi:
		return SiteAzubi, nil
	case SiteAusbildung:
		return SiteAusbildung, nil
	}
	return "", fmt.Errorf("unknown site %q", s)
}

type JobStatus string

const (
	JobNew    JobStatus = "new"
	JobQueued JobStatus = "queued"
	JobSent   JobStatus = "sent"
	JobFailed JobStatus = "failed"
)

// Job is one apprenticeship posting. URL is the canonical identity.
type Job struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Institution string    `json:"institution"`
	Location    string    `json:"location"`
	StartDate   string    `json:"startDate"` // site format preserved
	Emails      []string  `json:"emails"`
	SourceSite  Site      `json:"sourceSite"`
	ScrapedAt   time.Time `json:"scrapedAt"`
	Status      JobStatus `json:"status"`
}

// HasContact reports whether the job can be targeted by a campaign.
func (j Job) HasContact() bool { return len(j.Emails) > 0 }

// MergeEmails returns the union of have and found, keeping have's order and
// appending new addresses in the order found. The second result is the number
// of addresses added.
func MergeEmails(have, found []string) ([]string, int) {
	seen := make(map[string]bool, len(have)+len(found))
	out := make([]string, 0, len(have)+len(found))
	for _, e := range have {
		e = NormalizeEmail(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	added := 0
	for _, e := range found {
		e = NormalizeEmail(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
		added++
	}
	return out, added
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IndexEntry is the slice of a stored job the deduplicator needs.
type IndexEntry struct {
	ID          int64
	URL         string
	Institution string
	Title       string
	Location    string
	Emails      []string
}

func (j Job) IndexEntry() IndexEntry {
	return IndexEntry{
		ID:          j.ID,
		URL:         j.URL,
		Institution: j.Institution,
		Title:       j.Title,
		Location:    j.Location,
		Emails:      j.Emails,
	}
}
