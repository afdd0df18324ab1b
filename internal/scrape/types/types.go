package types

import (
	"fmt"
	"sort"

	"azubi-engine/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

// FieldSelectors tell the extractor where a job's fields live, relative to a
// listing card or to a detail page. Empty selectors are skipped.
type FieldSelectors struct {
	Title       string
	Link        string // anchor carrying the job URL in href
	Institution string
	Location    string
	StartDate   string
	Contact     string // scope for e-mail scanning; "" scans the whole node
}

type ListingSelectors struct {
	Item      string // one node per listing card
	Fields    FieldSelectors
	NoResults string // present when the search matched nothing
}

// Adapter carries one site's markup knowledge. It never fetches.
type Adapter interface {
	Site() domain.Site
	BuildSearchURL(term string, page int) string
	ListingSelectors() ListingSelectors
	DetailSelectors() FieldSelectors
	// NextPageURL returns the absolute URL of the page after current, or ""
	// when doc is the last page.
	NextPageURL(doc *goquery.Document, current string) string
	NeedsRender() bool
}

type Registry map[domain.Site]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Site()] = a
	}
	return r
}

func (r Registry) Get(site domain.Site) (Adapter, error) {
	a, ok := r[site]
	if !ok {
		return nil, fmt.Errorf("no adapter for site %q", site)
	}
	return a, nil
}

func (r Registry) Sites() []domain.Site {
	out := make([]domain.Site, 0, len(r))
	for s := range r {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
