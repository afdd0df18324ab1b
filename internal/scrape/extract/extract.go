// Package extract turns fetched listing and detail pages into domain.Job
// records using the selectors a site adapter provides.
package extract

import (
	"bytes"
	"net/url"
	"strings"

	"azubi-engine/internal/domain"
	"azubi-engine/internal/scrape/types"
	"azubi-engine/internal/scrape/util"

	"github.com/PuerkitoBio/goquery"
)

// Extractor is stateless apart from its e-mail scanner and safe for
// concurrent use.
type Extractor struct {
	Emails *Scanner
}

func New(scanner *Scanner) *Extractor {
	if scanner == nil {
		scanner = NewScanner()
	}
	return &Extractor{Emails: scanner}
}

func Parse(rawHTML []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return nil, &ExtractError{Kind: KindParseFailure, Err: err}
	}
	return doc, nil
}

// Listings extracts one job per listing card on a search results page. Cards
// that fail extraction are returned as errors alongside the good ones.
func (x *Extractor) Listings(doc *goquery.Document, pageURL string, sel types.ListingSelectors) ([]domain.Job, []error) {
	if sel.NoResults != "" && doc.Find(sel.NoResults).Length() > 0 {
		return nil, nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, []error{&ExtractError{Kind: KindParseFailure, Err: err}}
	}

	var jobs []domain.Job
	var errs []error
	doc.Find(sel.Item).Each(func(_ int, card *goquery.Selection) {
		j, err := x.fromNode(card, base, "", sel.Fields)
		if err != nil {
			errs = append(errs, err)
			return
		}
		jobs = append(jobs, j)
	})
	return jobs, errs
}

// Detail extracts a job from its own detail page; the page URL is the job URL.
func (x *Extractor) Detail(doc *goquery.Document, pageURL string, sel types.FieldSelectors) (domain.Job, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return domain.Job{}, &ExtractError{Kind: KindParseFailure, Err: err}
	}
	return x.fromNode(doc.Selection, base, pageURL, sel)
}

// Extract parses rawHTML as a detail page.
func (x *Extractor) Extract(rawHTML []byte, pageURL string, sel types.FieldSelectors) (domain.Job, error) {
	doc, err := Parse(rawHTML)
	if err != nil {
		return domain.Job{}, err
	}
	return x.Detail(doc, pageURL, sel)
}

func (x *Extractor) fromNode(node *goquery.Selection, base *url.URL, selfURL string, sel types.FieldSelectors) (domain.Job, error) {
	var j domain.Job

	j.Title = text(node, sel.Title)
	if j.Title == "" {
		return j, missing("title")
	}

	link := selfURL
	if sel.Link != "" {
		if href, ok := node.Find(sel.Link).First().Attr("href"); ok {
			link = util.Resolve(base, href)
		} else if node.Is(sel.Link) {
			href, _ := node.Attr("href")
			link = util.Resolve(base, href)
		}
	}
	j.URL = util.CanonicalURL(link)
	if j.URL == "" {
		return j, missing("url")
	}

	x.fill(node, sel, &j)
	return j, nil
}

// DetailFields reads the optional fields and contact e-mails of a detail
// page. Unlike Extract it needs neither title nor link, since the job is
// already known from its listing card.
func (x *Extractor) DetailFields(rawHTML []byte, sel types.FieldSelectors) (domain.Job, error) {
	doc, err := Parse(rawHTML)
	if err != nil {
		return domain.Job{}, err
	}
	var j domain.Job
	x.fill(doc.Selection, sel, &j)
	return j, nil
}

func (x *Extractor) fill(node *goquery.Selection, sel types.FieldSelectors, j *domain.Job) {
	j.Institution = text(node, sel.Institution)
	j.Location = util.NormalizeLocation(text(node, sel.Location))
	j.StartDate = text(node, sel.StartDate)

	scope := node
	if sel.Contact != "" {
		if c := node.Find(sel.Contact); c.Length() > 0 {
			scope = c
		}
	}
	j.Emails = x.Emails.Scan(scope)
	if j.Emails == nil {
		j.Emails = []string{}
	}
}

func text(node *goquery.Selection, selector string) string {
	if strings.TrimSpace(selector) == "" {
		return ""
	}
	return util.CleanText(node.Find(selector).First().Text())
}
