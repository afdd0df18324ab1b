package util

import (
	"regexp"
	"strings"
)

var (
	invisible  = strings.NewReplacer("\u00a0", " ", "\u202f", " ", "\u200b", "", "\u00ad", "")
	postalCode = regexp.MustCompile(`^(?:D-)?\d{5}\s+`)
	locPrefix  = []string{"Standort:", "Ausbildungsort:", "Ort:", "Location:"}
)

// CleanText drops invisible characters and collapses whitespace.
func CleanText(s string) string {
	return strings.Join(strings.Fields(invisible.Replace(s)), " ")
}

// NormalizeLocation turns a scraped location into "City, Region" form: the
// label prefix and postal codes are dropped, repeated parts collapse
// ("Standort: 10115 Berlin, Berlin, Deutschland" -> "Berlin, Deutschland").
func NormalizeLocation(loc string) string {
	loc = CleanText(loc)
	for _, p := range locPrefix {
		if len(loc) >= len(p) && strings.EqualFold(loc[:len(p)], p) {
			loc = strings.TrimSpace(loc[len(p):])
			break
		}
	}

	seen := map[string]bool{}
	var out []string
	for _, p := range strings.Split(loc, ",") {
		p = postalCode.ReplaceAllString(strings.TrimSpace(p), "")
		k := strings.ToLower(p)
		if p == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}
