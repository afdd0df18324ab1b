package scrape

import (
	"context"
	"errors"

	"azubi-engine/internal/domain"
	"azubi-engine/internal/scrape/extract"
	"azubi-engine/internal/scrape/fetch"
	"azubi-engine/internal/scrape/types"
	"azubi-engine/internal/scrape/util"

	"go.uber.org/zap"
)

// siteRun carries what one site's goroutine needs for the duration of a run.
type siteRun struct {
	ad     types.Adapter
	x      *extract.Extractor
	render bool
	log    *zap.Logger
}

// runSite paginates every search term of one site. A search page that cannot
// be fetched abandons the site for the rest of the run.
func (o *Orchestrator) runSite(ctx context.Context, st *runState, ad types.Adapter) {
	sr := &siteRun{
		ad: ad,
		// addresses on the portal's own domain are never employer contacts
		x:      extract.New(extract.NewScanner(util.HostOf(ad.BuildSearchURL("", 1)))),
		render: o.opts.Render && ad.NeedsRender(),
		log:    o.log.With(zap.String("site", string(ad.Site()))),
	}

	for _, term := range st.req.SearchTerms {
		pageURL := ad.BuildSearchURL(term, 1)
		for page := 1; page <= st.req.MaxPages && pageURL != ""; page++ {
			if ctx.Err() != nil {
				return
			}

			p, err := o.fetcher.Fetch(ctx, pageURL, sr.render)
			if err != nil {
				var fe *fetch.FetchError
				if errors.As(err, &fe) {
					sr.log.Warn("site abandoned", zap.String("term", term), zap.Int("page", page), zap.Error(err))
					st.abandon(ad.Site())
				}
				return
			}

			doc, err := extract.Parse(p.Body)
			if err != nil {
				sr.log.Warn("search page unparsable", zap.String("url", pageURL), zap.Error(err))
				st.countExtractionErrors(1)
				break
			}

			listings, errs := sr.x.Listings(doc, pageURL, ad.ListingSelectors())
			for _, e := range errs {
				sr.log.Debug("listing skipped", zap.String("url", pageURL), zap.Error(e))
			}
			st.countExtractionErrors(len(errs))
			sr.log.Debug("search page",
				zap.String("term", term),
				zap.Int("page", page),
				zap.Int("listings", len(listings)),
				zap.Int("errors", len(errs)),
			)
			if len(listings) == 0 && len(errs) == 0 {
				break
			}

			var pending []pendingJob
			for _, j := range listings {
				j.SourceSite = ad.Site()
				if pj, ok := o.processListing(ctx, st, sr, j); ok {
					pending = append(pending, pj)
				}
			}
			o.persist(ctx, st, sr, pending)

			pageURL = ad.NextPageURL(doc, pageURL)
		}
	}
}

func (st *runState) abandon(site domain.Site) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.summary.SitesAbandoned++
	st.aband = append(st.aband, string(site))
}

func (st *runState) countExtractionErrors(n int) {
	if n == 0 {
		return
	}
	st.mu.Lock()
	st.summary.ExtractionErrors += n
	st.mu.Unlock()
}
