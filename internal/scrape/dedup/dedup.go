// Package dedup decides whether a freshly extracted job was seen before,
// either in an earlier run or earlier in the current one.
package dedup

import (
	"strings"

	"azubi-engine/internal/domain"
	"azubi-engine/internal/scrape/util"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Index is owned by a single scrape run and is not safe for concurrent use.
type Index struct {
	byURL   map[string]*domain.IndexEntry
	byKey   map[string]*domain.IndexEntry
	entries []*domain.IndexEntry
}

func New(existing []domain.IndexEntry) *Index {
	ix := &Index{
		byURL: make(map[string]*domain.IndexEntry, len(existing)),
		byKey: make(map[string]*domain.IndexEntry, len(existing)),
	}
	for i := range existing {
		e := existing[i]
		ix.add(&e)
	}
	return ix
}

// urlKey ignores the scheme: portals serve the same posting over http and https.
func urlKey(raw string) string {
	u := util.CanonicalURL(raw)
	if i := strings.Index(u, "://"); i >= 0 {
		return u[i+3:]
	}
	return u
}

// Key is the secondary identity of a posting. It is "" when institution or
// title is unknown, since those postings cannot be matched safely.
func Key(institution, title, location string) string {
	inst, t := fold(institution), fold(title)
	if inst == "" || t == "" {
		return ""
	}
	return inst + "\x1f" + t + "\x1f" + fold(util.NormalizeLocation(location))
}

func fold(s string) string {
	s = norm.NFC.String(util.CleanText(s))
	return cases.Fold().String(s)
}

// IsDuplicate reports whether j matches a known posting by canonical URL or by
// institution, title and location. The returned entry is the stored match.
func (ix *Index) IsDuplicate(j domain.Job) (*domain.IndexEntry, bool) {
	if e, ok := ix.byURL[urlKey(j.URL)]; ok {
		return e, true
	}
	if k := Key(j.Institution, j.Title, j.Location); k != "" {
		if e, ok := ix.byKey[k]; ok {
			return e, true
		}
	}
	return nil, false
}

// Add records j as seen and returns its entry.
func (ix *Index) Add(j domain.Job) *domain.IndexEntry {
	e := j.IndexEntry()
	e.URL = util.CanonicalURL(e.URL)
	ix.add(&e)
	return &e
}

func (ix *Index) add(e *domain.IndexEntry) {
	ix.entries = append(ix.entries, e)
	if k := urlKey(e.URL); k != "" {
		ix.byURL[k] = e
	}
	if k := Key(e.Institution, e.Title, e.Location); k != "" {
		if _, taken := ix.byKey[k]; !taken {
			ix.byKey[k] = e
		}
	}
}

// Merge unions emails into the stored entry and returns how many were new.
func (ix *Index) Merge(e *domain.IndexEntry, emails []string) int {
	merged, added := domain.MergeEmails(e.Emails, emails)
	e.Emails = merged
	return added
}

func (ix *Index) Len() int { return len(ix.entries) }
