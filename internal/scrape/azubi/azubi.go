package azubi

import (
	"net/url"
	"strconv"
	"strings"

	"azubi-engine/internal/domain"
	"azubi-engine/internal/scrape/types"
	"azubi-engine/internal/scrape/util"

	"github.com/PuerkitoBio/goquery"
)

const DefaultBaseURL = "https://www.azubi.de"

type Adapter struct {
	base string
}

func New(baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{base: strings.TrimRight(baseURL, "/")}
}

func (a *Adapter) Site() domain.Site { return domain.SiteAzubi }

// BuildSearchURL pages are 1-based; page 1 carries no page parameter.
func (a *Adapter) BuildSearchURL(term string, page int) string {
	q := url.Values{}
	q.Set("text", strings.TrimSpace(term))
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	return a.base + "/suche?" + q.Encode()
}

func (a *Adapter) ListingSelectors() types.ListingSelectors {
	return types.ListingSelectors{
		Item: "article.job-result, div.search-result-item",
		Fields: types.FieldSelectors{
			Title:       "h2.job-result__title, .job-title",
			Link:        "a.job-result__link, h2 a, a[href*='/ausbildungsplatz/']",
			Institution: ".job-result__company, .company-name",
			Location:    ".job-result__location, .location",
			StartDate:   ".job-result__start, .start-date",
			Contact:     ".job-result__contact",
		},
		NoResults: ".search-no-results, .no-results",
	}
}

func (a *Adapter) DetailSelectors() types.FieldSelectors {
	return types.FieldSelectors{
		Title:       "h1",
		Institution: ".job-detail__company, [itemprop='hiringOrganization']",
		Location:    ".job-detail__location, [itemprop='jobLocation']",
		StartDate:   ".job-detail__start, [itemprop='validThrough']",
		Contact:     ".job-detail__contact, .contact-person, #kontakt",
	}
}

func (a *Adapter) NextPageURL(doc *goquery.Document, current string) string {
	base, _ := url.Parse(current)
	for _, sel := range []string{"a[rel='next']", ".pagination__next a", "a.pagination-next"} {
		if href, ok := doc.Find(sel).First().Attr("href"); ok {
			if abs := util.Resolve(base, href); abs != "" && abs != current {
				return abs
			}
		}
	}
	return ""
}

func (a *Adapter) NeedsRender() bool { return false }
