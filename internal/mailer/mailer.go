// Package mailer delivers campaign messages over SMTP.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"azubi-engine/internal/campaign"
	"azubi-engine/internal/config"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

type TLSMode string

const (
	TLSImplicit TLSMode = "implicit"
	TLSStartTLS TLSMode = "starttls"
	TLSNone     TLSMode = "none"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      TLSMode
	HeloName string
	// TLSConfig overrides the default client TLS settings.
	TLSConfig *tls.Config
}

func FromConfig(cfg config.Config) Config {
	return Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
		TLS:      TLSMode(cfg.SMTP.TLS),
	}
}

func (c Config) addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

func (c Config) tlsConfig() *tls.Config {
	if c.TLSConfig != nil {
		return c.TLSConfig
	}
	return &tls.Config{ServerName: c.Host, MinVersion: tls.VersionTLS12}
}

// Mailer opens one SMTP session per message. It satisfies campaign.Transport.
type Mailer struct {
	cfg  Config
	log  *zap.Logger
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
	now  func() time.Time
}

var _ campaign.Transport = (*Mailer)(nil)

func New(cfg Config, log *zap.Logger) (*Mailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("mailer: smtp host is not configured")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("mailer: invalid from address %q: %w", cfg.From, err)
	}
	switch cfg.TLS {
	case "":
		cfg.TLS = TLSStartTLS
	case TLSImplicit, TLSStartTLS, TLSNone:
	default:
		return nil, fmt.Errorf("mailer: unknown tls mode %q", cfg.TLS)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
		if cfg.TLS == TLSImplicit {
			cfg.Port = 465
		}
	}
	if cfg.HeloName == "" {
		cfg.HeloName = "localhost"
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &net.Dialer{}
	return &Mailer{cfg: cfg, log: log.Named("mailer"), dial: d.DialContext, now: time.Now}, nil
}

// Send delivers one plain-text message. SMTP 4xx replies and network failures
// come back as *campaign.TransientError; 5xx replies to the recipient or the
// message come back as *campaign.PermanentError.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	msg, err := Compose(m.sender(), to, subject, body, m.now())
	if err != nil {
		return &campaign.PermanentError{Err: err}
	}

	c, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(m.cfg.From, nil); err != nil {
		return classify("mail", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return classify("rcpt", err)
	}
	w, err := c.Data()
	if err != nil {
		return classify("data", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return classify("data", err)
	}
	if err := w.Close(); err != nil {
		return classify("data", err)
	}
	if err := c.Quit(); err != nil {
		m.log.Debug("quit failed", zap.Error(err))
	}
	m.log.Debug("sent", zap.String("to", to))
	return nil
}

// Verify logs in and quits without sending anything.
func (m *Mailer) Verify(ctx context.Context) error {
	c, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Quit()
}

func (m *Mailer) sender() mail.Address {
	return mail.Address{Name: m.cfg.FromName, Address: m.cfg.From}
}

// connect dials, greets, negotiates TLS and authenticates. The context
// deadline bounds the whole session.
func (m *Mailer) connect(ctx context.Context) (*smtp.Client, error) {
	conn, err := m.dial(ctx, "tcp", m.cfg.addr())
	if err != nil {
		return nil, classify("dial", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	var c *smtp.Client
	switch m.cfg.TLS {
	case TLSImplicit:
		c = smtp.NewClient(tls.Client(conn, m.cfg.tlsConfig()))
	default:
		c = smtp.NewClient(conn)
	}

	fail := func(stage string, err error) (*smtp.Client, error) {
		_ = c.Close()
		if ctx.Err() != nil {
			return nil, &campaign.TransientError{Err: ctx.Err()}
		}
		return nil, classify(stage, err)
	}

	if err := c.Hello(m.cfg.HeloName); err != nil {
		return fail("helo", err)
	}
	if m.cfg.TLS == TLSStartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			_ = c.Close()
			return nil, errors.New("mailer: server does not offer STARTTLS")
		}
		if err := c.StartTLS(m.cfg.tlsConfig()); err != nil {
			return fail("starttls", err)
		}
	}
	if m.cfg.Username != "" {
		auth := sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
		if err := c.Auth(auth); err != nil {
			return fail("auth", err)
		}
	}
	return c, nil
}

// classify maps a session error onto the campaign error kinds. Only the
// recipient and message stages can reject an address for good; a 5xx
// elsewhere is a setup problem and stays untyped.
func classify(stage string, err error) error {
	var se *smtp.SMTPError
	if errors.As(err, &se) {
		switch {
		case se.Code >= 400 && se.Code < 500:
			return &campaign.TransientError{Code: se.Code, Err: err}
		case se.Code >= 500 && (stage == "rcpt" || stage == "data"):
			return &campaign.PermanentError{Code: se.Code, Err: err}
		}
		return fmt.Errorf("smtp %s: %w", stage, err)
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, io.EOF) || errors.Is(err, context.DeadlineExceeded) {
		return &campaign.TransientError{Err: fmt.Errorf("smtp %s: %w", stage, err)}
	}
	return fmt.Errorf("smtp %s: %w", stage, err)
}

// Compose renders a single-part text/plain UTF-8 message.
func Compose(from mail.Address, to, subject, body string, now time.Time) ([]byte, error) {
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{&from})
	h.SetAddressList("To", []*mail.Address{rcpt})
	h.SetSubject(subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, normalizeNewlines(body)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
