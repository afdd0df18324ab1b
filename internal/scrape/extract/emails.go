package extract

import (
	"net/url"
	"regexp"
	"strings"

	"azubi-engine/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var reEmail = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?)*\.[a-z]{2,24}`)

// Strategy finds candidate addresses in a subtree. Candidates are normalized
// and filtered by the scanner afterwards.
type Strategy struct {
	Name string
	Find func(scope *goquery.Selection) []string
}

// Rule rejects a normalized candidate address.
type Rule struct {
	Name   string
	Reject func(addr string) bool
}

// DefaultStrategies run in order: mailto links first, then visible text.
var DefaultStrategies = []Strategy{
	{Name: "mailto", Find: mailtoAddresses},
	{Name: "visible_text", Find: visibleTextAddresses},
}

var assetExt = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

var placeholderLocal = []string{"vorname.nachname", "max.mustermann", "ihr.name", "beispiel", "example"}

var DefaultRules = []Rule{
	{Name: "asset_filename", Reject: func(a string) bool {
		for _, ext := range assetExt {
			if strings.HasSuffix(a, ext) {
				return true
			}
		}
		return false
	}},
	{Name: "placeholder", Reject: func(a string) bool {
		local, dom, _ := strings.Cut(a, "@")
		for _, p := range placeholderLocal {
			if local == p {
				return true
			}
		}
		return dom == "example.com" || dom == "example.de" || dom == "beispiel.de" || dom == "domain.de"
	}},
}

// Scanner applies the strategies, normalizes every candidate, drops anything
// a rule rejects and returns the remaining set in first-seen order.
type Scanner struct {
	Strategies    []Strategy
	Rules         []Rule
	IgnoreDomains []string // e.g. the portal's own domain
}

func NewScanner(ignoreDomains ...string) *Scanner {
	return &Scanner{Strategies: DefaultStrategies, Rules: DefaultRules, IgnoreDomains: ignoreDomains}
}

// FindEmails scans scope with the default policy.
func FindEmails(scope *goquery.Selection) []string {
	return NewScanner().Scan(scope)
}

func (s *Scanner) Scan(scope *goquery.Selection) []string {
	seen := map[string]bool{}
	var out []string
	for _, st := range s.Strategies {
		for _, raw := range st.Find(scope) {
			addr := domain.NormalizeEmail(raw)
			if addr == "" || seen[addr] || !reEmail.MatchString(addr) || s.rejected(addr) {
				continue
			}
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

func (s *Scanner) rejected(addr string) bool {
	_, dom, _ := strings.Cut(addr, "@")
	for _, d := range s.IgnoreDomains {
		d = strings.ToLower(strings.TrimPrefix(d, "www."))
		if d != "" && (dom == d || strings.HasSuffix(dom, "."+d)) {
			return true
		}
	}
	for _, r := range s.Rules {
		if r.Reject(addr) {
			return true
		}
	}
	return false
}

func mailtoAddresses(scope *goquery.Selection) []string {
	var out []string
	scope.Find("a[href]").AddSelection(scope.Filter("a[href]")).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if len(href) < 7 || !strings.EqualFold(href[:7], "mailto:") {
			return
		}
		rest := href[7:]
		if i := strings.IndexByte(rest, '?'); i >= 0 {
			rest = rest[:i]
		}
		if dec, err := url.PathUnescape(rest); err == nil {
			rest = dec
		}
		for _, part := range strings.Split(rest, ",") {
			if m := reEmail.FindString(part); m != "" {
				out = append(out, m)
			}
		}
	})
	return out
}

// visibleTextAddresses scans each visible text node on its own. Addresses
// are never stitched across element boundaries, and a match touching an
// adjacent <img> is treated as the fragment of an image-obfuscated address.
func visibleTextAddresses(scope *goquery.Selection) []string {
	var out []string
	for _, n := range scope.Nodes {
		walkVisible(n, func(t *html.Node) {
			text := t.Data
			for _, loc := range reEmail.FindAllStringIndex(text, -1) {
				if loc[0] == 0 && isImg(t.PrevSibling) {
					continue
				}
				if loc[1] == len(text) && isImg(t.NextSibling) {
					continue
				}
				if obfuscatedAround(text, loc[0], loc[1]) {
					continue
				}
				out = append(out, text[loc[0]:loc[1]])
			}
		})
	}
	return out
}

// obfuscatedAround rejects matches glued to "(at)"/"[at]" style markers, which
// show the author meant the text as a disguise rather than a literal address.
func obfuscatedAround(text string, start, end int) bool {
	before := strings.ToLower(text[max(0, start-4):start])
	after := strings.ToLower(text[end:min(len(text), end+4)])
	for _, m := range []string{"(at)", "[at]", "{at}", "(dot)", "[dot]"} {
		if strings.HasSuffix(before, m) || strings.HasPrefix(after, m) {
			return true
		}
	}
	return false
}

func isImg(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == "img"
}

var invisibleTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "head": true, "title": true,
}

func walkVisible(n *html.Node, fn func(*html.Node)) {
	switch n.Type {
	case html.TextNode:
		fn(n)
		return
	case html.ElementNode:
		if invisibleTags[n.Data] || hidden(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkVisible(c, fn)
	}
}

func hidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(strings.TrimSpace(a.Val), "true") {
				return true
			}
		case "style":
			st := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
			if strings.Contains(st, "display:none") || strings.Contains(st, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}
