package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"azubi-engine/internal/campaign"
	"azubi-engine/internal/domain"
	"azubi-engine/internal/httpapi"
	"azubi-engine/internal/scrape"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
)

var errSMTPNotConfigured = errors.New("smtp.host is not configured; campaigns cannot send")

// noTransport stands in for the mailer when SMTP is not set up.
type noTransport struct{}

func (noTransport) Send(context.Context, string, string, string) error { return errSMTPNotConfigured }

// sendGuard refuses to start or resume campaigns without a mail server, so no
// delivery record is burned on a missing configuration.
type sendGuard struct {
	*campaign.Dispatcher
	configured bool
}

func (g sendGuard) Start(ctx context.Context, id string) error {
	if !g.configured {
		return errSMTPNotConfigured
	}
	return g.Dispatcher.Start(ctx, id)
}

func (g sendGuard) Resume(ctx context.Context, id string) error {
	if !g.configured {
		return errSMTPNotConfigured
	}
	return g.Dispatcher.Resume(ctx, id)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func shutdownHandler(token string, srv *http.Server, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !httpapi.IsLoopback(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		got := r.Header.Get("X-Shutdown-Token")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("shutting down\n"))
		log.Info("shutdown requested")

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func printSummary(w io.Writer, res scrape.RunResult) {
	s := res.Summary
	t := newTable(w)
	t.AppendHeader(table.Row{"Status", "Found", "Duplicates", "Emails merged", "Filtered", "Extract errors", "Detail errors", "Abandoned"})
	t.AppendRow(table.Row{
		res.Status, s.JobsFound, s.DuplicatesSkipped, s.EmailsMerged, s.Filtered,
		s.ExtractionErrors, s.DetailErrors, strings.Join(res.Abandoned, ","),
	})
	t.Render()
}

func printJobs(w io.Writer, jobs []domain.Job) {
	if len(jobs) == 0 {
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Site", "Institution", "Title", "Location", "Emails"})
	for _, j := range jobs {
		t.AppendRow(table.Row{j.ID, j.SourceSite, truncate(j.Institution, 30), truncate(j.Title, 40), truncate(j.Location, 20), strings.Join(j.Emails, " ")})
	}
	t.Render()
}

func printCampaigns(w io.Writer, cs []domain.Campaign) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Created", "Status", "Subject", "Sent", "Failed", "Pending"})
	for _, c := range cs {
		t.AppendRow(table.Row{
			c.ID, c.CreatedAt.Local().Format("2006-01-02 15:04"), c.Status, truncate(c.Subject, 40),
			c.Progress.Sent, c.Progress.Failed, c.Progress.Pending,
		})
	}
	t.Render()
}

func printCampaignSummary(w io.Writer, s domain.CampaignSummary) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Status", "Sent", "Bounced", "Error", "Pending"})
	t.AppendRow(table.Row{s.ID, s.Status, s.Sent, s.Bounced, s.Error, s.Pending})
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
