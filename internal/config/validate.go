package config

import (
	"fmt"
	"strings"

	"azubi-engine/internal/domain"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	return fmt.Errorf("config validation failed:\n- %s", strings.Join(v.Errors, "\n- "))
}

// NormalizeAndValidate returns a normalized copy plus the validation report.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Scrape.Sites = trimList(out.Scrape.Sites)
	out.Scrape.SearchTerms = trimList(out.Scrape.SearchTerms)
	out.Filters.LocationsAllow = trimList(out.Filters.LocationsAllow)
	out.Filters.LocationsBlock = trimList(out.Filters.LocationsBlock)
	out.Campaign.Recipients = strings.ToLower(strings.TrimSpace(out.Campaign.Recipients))
	out.SMTP.TLS = strings.ToLower(strings.TrimSpace(out.SMTP.TLS))

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	for _, s := range out.Scrape.Sites {
		if _, err := domain.ParseSite(s); err != nil {
			res.addErr("scrape.sites: %v", err)
		}
	}
	if len(out.Scrape.SearchTerms) == 0 {
		res.addWarn("scrape.search_terms is empty; scheduled scrapes will be skipped.")
	}
	if out.Scrape.MaxPages <= 0 {
		res.addErr("scrape.max_pages must be > 0")
	}
	if out.Scrape.MaxRuntimeSeconds <= 0 {
		res.addErr("scrape.max_runtime_seconds must be > 0")
	}

	if out.Fetch.MaxRetries < 0 {
		res.addErr("fetch.max_retries must be >= 0")
	}
	if out.Fetch.GlobalConcurrency <= 0 {
		res.addErr("fetch.global_concurrency must be > 0")
	}
	if out.Fetch.MinDelayMillis < 500 {
		res.addWarn("fetch.min_delay_ms is very low (%d) and may trigger anti-scraping blocks.", out.Fetch.MinDelayMillis)
	}
	if out.Fetch.BaseDelayMillis <= 0 || out.Fetch.MaxDelayMillis < out.Fetch.BaseDelayMillis {
		res.addErr("fetch.base_delay_ms must be > 0 and <= fetch.max_delay_ms")
	}
	if out.Fetch.RequestTimeoutSec <= 0 {
		res.addErr("fetch.request_timeout_seconds must be > 0")
	}

	if out.Campaign.BatchSize <= 0 {
		res.addErr("campaign.batch_size must be > 0")
	}
	if out.Campaign.MaxAttempts <= 0 {
		res.addErr("campaign.max_attempts must be > 0")
	}
	if out.Campaign.SendTimeoutSec <= 0 {
		res.addErr("campaign.send_timeout_seconds must be > 0")
	}
	switch domain.RecipientPolicy(out.Campaign.Recipients) {
	case domain.RecipientsFirst, domain.RecipientsAll:
	default:
		res.addErr("campaign.recipients must be first or all")
	}

	switch out.SMTP.TLS {
	case "implicit", "starttls", "none":
	default:
		res.addErr("smtp.tls must be implicit, starttls or none")
	}
	if strings.TrimSpace(out.SMTP.Host) == "" {
		res.addWarn("smtp.host is empty; campaigns cannot be started.")
	}

	if out.Bounce.Enabled {
		if strings.TrimSpace(out.Bounce.IMAPHost) == "" {
			res.addErr("bounce.imap_host is required when bounce.enabled=true")
		}
		if strings.TrimSpace(out.Bounce.Username) == "" {
			res.addErr("bounce.username is required when bounce.enabled=true")
		}
	}

	blockSet := map[string]bool{}
	for _, b := range out.Filters.LocationsBlock {
		blockSet[strings.ToLower(b)] = true
	}
	for _, a := range out.Filters.LocationsAllow {
		if blockSet[strings.ToLower(a)] {
			res.addWarn("location appears in both allow and block: %q", a)
		}
	}

	return out, res
}
