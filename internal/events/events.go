// Package events fans engine notifications out to SSE subscribers.
package events

import (
	"encoding/json"
	"time"

	"azubi-engine/internal/domain"
	"azubi-engine/internal/scrape"
)

const (
	TypePing             = "ping"
	TypeScrapeStarted    = "scrape_started"
	TypeJobCreated       = "job_created"
	TypeScrapeFinished   = "scrape_finished"
	TypeCampaignProgress = "campaign_progress"
	TypeBounceRecorded   = "bounce_recorded"
)

// Sources name the part of the engine that raised an event.
const (
	SourceAPI        = "api"
	SourceSchedule   = "schedule"
	SourceScraper    = "scraper"
	SourceDispatcher = "dispatcher"
	SourceBounces    = "bounces"
	SourceStream     = "stream"
)

// Version is bumped when a payload changes incompatibly.
const Version = 1

type Event struct {
	Seq       uint64          `json:"seq"` // assigned by the hub, 0 for direct writes
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	Source    string          `json:"source"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func MakeEvent(reqID, typ, source string, data any) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Event{
		Type:      typ,
		Version:   Version,
		Source:    source,
		At:        time.Now().UTC(),
		RequestID: reqID,
		Data:      raw,
	}
}

func (e Event) Encode() string {
	b, _ := json.Marshal(e)
	return string(b)
}

type ScrapeStarted struct {
	Sites      []string `json:"sites"`
	Terms      []string `json:"terms"`
	MaxPages   int      `json:"maxPages"`
	MaxRuntime string   `json:"maxRuntime,omitempty"`
}

func ScrapeStartedOf(req scrape.Request) ScrapeStarted {
	s := ScrapeStarted{Sites: req.Sites, Terms: req.SearchTerms, MaxPages: req.MaxPages}
	if req.MaxRuntime > 0 {
		s.MaxRuntime = req.MaxRuntime.String()
	}
	return s
}

type ScrapeFinished struct {
	Status    scrape.RunStatus `json:"status"`
	Summary   scrape.Summary   `json:"summary"`
	Abandoned []string         `json:"abandoned,omitempty"`
	Error     string           `json:"error,omitempty"`
	Took      string           `json:"took,omitempty"`
}

func ScrapeFinishedOf(res scrape.RunResult) ScrapeFinished {
	f := ScrapeFinished{Status: res.Status, Summary: res.Summary, Abandoned: res.Abandoned, Error: res.Error}
	if !res.StartedAt.IsZero() && res.FinishedAt.After(res.StartedAt) {
		f.Took = res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond).String()
	}
	return f
}

// JobCreated announces a new posting without its full contact list.
type JobCreated struct {
	ID          int64       `json:"id"`
	Site        domain.Site `json:"site"`
	Title       string      `json:"title"`
	Institution string      `json:"institution,omitempty"`
	Location    string      `json:"location,omitempty"`
	URL         string      `json:"url"`
	Emails      int         `json:"emails"`
}

func JobCreatedOf(j domain.Job) JobCreated {
	return JobCreated{
		ID:          j.ID,
		Site:        j.SourceSite,
		Title:       j.Title,
		Institution: j.Institution,
		Location:    j.Location,
		URL:         j.URL,
		Emails:      len(j.Emails),
	}
}

type CampaignProgress struct {
	domain.CampaignSummary
	Delivered int  `json:"delivered"` // sent, bounced or failed
	Done      bool `json:"done"`
}

func CampaignProgressOf(s domain.CampaignSummary) CampaignProgress {
	return CampaignProgress{
		CampaignSummary: s,
		Delivered:       s.Sent + s.Bounced + s.Error,
		Done:            s.Status.Terminal(),
	}
}
