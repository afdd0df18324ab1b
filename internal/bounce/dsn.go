// Package bounce reads delivery status notifications from an IMAP mailbox and
// marks the addresses they report as bounced.
package bounce

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"azubi-engine/internal/domain"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
)

// Report is one failed recipient taken from a bounce message.
type Report struct {
	Recipient  string
	Status     string // enhanced status code, e.g. 5.1.1
	Diagnostic string
}

// Permanent reports whether the failure is final. Delayed (4.x.x) reports are
// not bounces.
func (r Report) Permanent() bool { return strings.HasPrefix(r.Status, "5") }

// Reason is the text stored on the delivery record.
func (r Report) Reason() string {
	if r.Diagnostic == "" {
		return r.Status
	}
	return r.Status + " " + r.Diagnostic
}

const maxStatusPart = 1 << 20

// ParseDSN extracts failed recipients from a raw RFC 3464 report. Messages
// without a delivery-status part fall back to the X-Failed-Recipients header
// some MTAs send instead. A message that is not a bounce yields no reports.
func ParseDSN(raw []byte) ([]Report, error) {
	e, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	var out []Report
	found := false
	walkErr := e.Walk(func(_ []int, part *message.Entity, err error) error {
		if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
			return err
		}
		t, _, _ := part.Header.ContentType()
		if !strings.EqualFold(t, "message/delivery-status") {
			return nil
		}
		found = true
		body, err := io.ReadAll(io.LimitReader(part.Body, maxStatusPart))
		if err != nil {
			return err
		}
		reps, err := parseStatusFields(body)
		if err != nil {
			return err
		}
		out = append(out, reps...)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk message: %w", walkErr)
	}
	if found {
		return out, nil
	}
	return failedRecipientsHeader(e.Header), nil
}

// parseStatusFields reads the per-message block followed by one block per
// recipient and keeps the recipients whose action is failed.
func parseStatusFields(body []byte) ([]Report, error) {
	text := strings.ReplaceAll(string(body), "\r\n", "\n")

	var out []Report
	for i, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		h, err := textproto.ReadHeader(bufio.NewReader(strings.NewReader(block + "\n\n")))
		if err != nil {
			return nil, fmt.Errorf("status block %d: %w", i, err)
		}
		if !strings.EqualFold(strings.TrimSpace(h.Get("Action")), "failed") {
			continue
		}
		rcpt := typedValue(h.Get("Final-Recipient"))
		if rcpt == "" {
			rcpt = typedValue(h.Get("Original-Recipient"))
		}
		rcpt = domain.NormalizeEmail(strings.Trim(rcpt, "<>"))
		if rcpt == "" {
			continue
		}
		out = append(out, Report{
			Recipient:  rcpt,
			Status:     strings.TrimSpace(h.Get("Status")),
			Diagnostic: collapse(typedValue(h.Get("Diagnostic-Code"))),
		})
	}
	return out, nil
}

func failedRecipientsHeader(h message.Header) []Report {
	v := h.Get("X-Failed-Recipients")
	if v == "" {
		return nil
	}
	subject, _ := h.Text("Subject")
	var out []Report
	for _, a := range strings.Split(v, ",") {
		a = domain.NormalizeEmail(strings.Trim(strings.TrimSpace(a), "<>"))
		if a == "" {
			continue
		}
		out = append(out, Report{Recipient: a, Status: "5.0.0", Diagnostic: collapse(subject)})
	}
	return out
}

// typedValue strips the "rfc822;" or "smtp;" type prefix of a DSN field.
func typedValue(v string) string {
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[i+1:]
	}
	return strings.TrimSpace(v)
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }
