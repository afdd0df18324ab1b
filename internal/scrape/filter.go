package scrape

import (
	"strings"

	"azubi-engine/internal/domain"
)

type Filters struct {
	LocationsAllow []string
	LocationsBlock []string
	RequireEmail   bool
}

// ShouldKeepJob decides whether a new job enters the result set. Duplicates
// are never filtered; their emails are merged regardless.
func ShouldKeepJob(f Filters, j domain.Job) (keep bool, reason string) {
	// 1) Location filter
	if !passesLocation(f, j) {
		return false, "location"
	}

	// 2) Campaign eligibility, when asked for
	if f.RequireEmail && !j.HasContact() {
		return false, "no_email"
	}

	return true, ""
}

func passesLocation(f Filters, j domain.Job) bool {
	loc := strings.ToLower(strings.TrimSpace(j.Location))

	// Blocklist wins
	for _, b := range f.LocationsBlock {
		b = strings.ToLower(strings.TrimSpace(b))
		if b != "" && strings.Contains(loc, b) {
			return false
		}
	}

	// Allowlist: if empty, allow everything (besides blocklist)
	if len(f.LocationsAllow) == 0 {
		return true
	}
	for _, a := range f.LocationsAllow {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" && strings.Contains(loc, a) {
			return true
		}
	}
	return false
}
