package ausbildung

import (
	"net/url"
	"strconv"
	"strings"

	"azubi-engine/internal/domain"
	"azubi-engine/internal/scrape/types"
	"azubi-engine/internal/scrape/util"

	"github.com/PuerkitoBio/goquery"
)

const DefaultBaseURL = "https://www.ausbildung.de"

type Adapter struct {
	base string
}

func New(baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{base: strings.TrimRight(baseURL, "/")}
}

func (a *Adapter) Site() domain.Site { return domain.SiteAusbildung }

func (a *Adapter) BuildSearchURL(term string, page int) string {
	q := url.Values{}
	q.Set("form_main_search[what]", strings.TrimSpace(term))
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	return a.base + "/suche/?" + q.Encode()
}

func (a *Adapter) ListingSelectors() types.ListingSelectors {
	return types.ListingSelectors{
		Item: "div.job-posting-cluster-cards__item, article.search-result",
		Fields: types.FieldSelectors{
			Title:       "h3, .job-posting-card__title",
			Link:        "a[href*='/stellen/']",
			Institution: ".job-posting-card__company, .company",
			Location:    ".job-posting-card__location, .location",
			StartDate:   ".job-posting-card__start, .start",
		},
		NoResults: ".search-results--empty",
	}
}

func (a *Adapter) DetailSelectors() types.FieldSelectors {
	return types.FieldSelectors{
		Title:       "h1",
		Institution: ".job-posting-header__company, .company-name",
		Location:    ".job-posting-header__location, .location",
		StartDate:   ".job-posting-facts__start, .start",
		Contact:     ".job-posting-contact, .contact",
	}
}

// NextPageURL follows the explicit "next" link; the site's "load more"
// button carries the next page in data-href when rendered server-side.
func (a *Adapter) NextPageURL(doc *goquery.Document, current string) string {
	base, _ := url.Parse(current)
	if href, ok := doc.Find("a[rel='next']").First().Attr("href"); ok {
		if abs := util.Resolve(base, href); abs != "" && abs != current {
			return abs
		}
	}
	if href, ok := doc.Find("[data-href].load-more, button.load-more[data-href]").First().Attr("data-href"); ok {
		if abs := util.Resolve(base, href); abs != "" && abs != current {
			return abs
		}
	}
	return ""
}

func (a *Adapter) NeedsRender() bool { return true }
