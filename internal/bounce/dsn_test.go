package bounce

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte { return []byte(strings.ReplaceAll(s, "\n", "\r\n")) }

const dsnReport = `From: Mail Delivery System <MAILER-DAEMON@mx.example.org>
To: bewerber@example.org
Subject: Undelivered Mail Returned to Sender
MIME-Version: 1.0
Content-Type: multipart/report; report-type=delivery-status; boundary="b1"

--b1
Content-Type: text/plain; charset=us-ascii

This is the mail system at host mx.example.org.

--b1
Content-Type: message/delivery-status

Reporting-MTA: dns; mx.example.org
Arrival-Date: Mon, 12 Oct 2026 10:00:00 +0200

Final-Recipient: rfc822; Weg@Firma.de
Original-Recipient: rfc822;weg@firma.de
Action: failed
Status: 5.1.1
Diagnostic-Code: smtp; 550 5.1.1 <weg@firma.de>:
    Recipient address rejected: User unknown

Final-Recipient: rfc822; spaeter@firma.de
Action: delayed
Status: 4.4.1
Diagnostic-Code: smtp; 451 try again

--b1
Content-Type: message/rfc822

From: bewerber@example.org
To: weg@firma.de
Subject: Bewerbung

hallo
--b1--
`

func TestParseDSN(t *testing.T) {
	reports, err := ParseDSN(crlf(dsnReport))
	require.NoError(t, err)
	require.Len(t, reports, 1)

	r := reports[0]
	assert.Equal(t, "weg@firma.de", r.Recipient)
	assert.Equal(t, "5.1.1", r.Status)
	assert.True(t, r.Permanent())
	assert.Equal(t, "550 5.1.1 <weg@firma.de>: Recipient address rejected: User unknown", r.Diagnostic)
	assert.Equal(t, "5.1.1 550 5.1.1 <weg@firma.de>: Recipient address rejected: User unknown", r.Reason())
}

func TestParseDSNFailedRecipientsHeader(t *testing.T) {
	raw := crlf(`From: MAILER-DAEMON@mx.example.org
To: bewerber@example.org
Subject: Mail delivery failed: returning message to sender
X-Failed-Recipients: alt@firma.de, <Noch@Firma.de>
Content-Type: text/plain

A message that you sent could not be delivered.
`)
	reports, err := ParseDSN(raw)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "alt@firma.de", reports[0].Recipient)
	assert.Equal(t, "noch@firma.de", reports[1].Recipient)
	assert.True(t, reports[1].Permanent())
	assert.Equal(t, "Mail delivery failed: returning message to sender", reports[0].Diagnostic)
}

func TestParseDSNOrdinaryMail(t *testing.T) {
	raw := crlf(`From: personal@firma.de
To: bewerber@example.org
Subject: Re: Bewerbung
Content-Type: text/plain

Vielen Dank, wir melden uns.
`)
	reports, err := ParseDSN(raw)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestReportPermanent(t *testing.T) {
	assert.False(t, Report{Status: "4.2.2"}.Permanent())
	assert.Equal(t, "5.0.0", Report{Status: "5.0.0"}.Reason())
}
