package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/CMCFame/ACEBotV2/internal/summary"
)

// Mailer delivers a completed summary by email. Implementations must be safe
// for concurrent use.
type Mailer interface {
	SendSummary(to []string, s summary.Summary, markdown string) error
}

// SMTPOpts holds SMTP delivery configuration.
type SMTPOpts struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPOption configures the SMTP mailer.
type SMTPOption func(*SMTPOpts)

// WithSMTPServer sets the SMTP host and port.
func WithSMTPServer(host string, port int) SMTPOption {
	return func(o *SMTPOpts) { o.Host, o.Port = host, port }
}

// WithSMTPAuth sets the SMTP credentials.
func WithSMTPAuth(username, password string) SMTPOption {
	return func(o *SMTPOpts) { o.Username, o.Password = username, password }
}

// WithSMTPFrom sets the sender address.
func WithSMTPFrom(from string) SMTPOption {
	return func(o *SMTPOpts) { o.From = from }
}

// SMTPMailer sends summaries over SMTP with the CSV export attached.
type SMTPMailer struct {
	opts SMTPOpts
	// send is swapped in tests to capture the outgoing message.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates an SMTP mailer.
func NewSMTPMailer(opts ...SMTPOption) (*SMTPMailer, error) {
	cfg := SMTPOpts{Port: 587}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host not set")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP sender not set")
	}
	return &SMTPMailer{opts: cfg, send: smtp.SendMail}, nil
}

// SendSummary emails the summary as a plain-text body plus a CSV attachment.
func (m *SMTPMailer) SendSummary(to []string, s summary.Summary, markdown string) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}
	csvData, err := CSV(s)
	if err != nil {
		return fmt.Errorf("failed to render CSV attachment: %w", err)
	}
	subject := "Callout questionnaire summary"
	if s.Company != "" {
		subject += " - " + s.Company
	}
	msg, err := buildMessage(m.opts.From, to, subject, markdown, csvData, attachmentName(s))
	if err != nil {
		return err
	}
	var auth smtp.Auth
	if m.opts.Username != "" {
		auth = smtp.PlainAuth("", m.opts.Username, m.opts.Password, m.opts.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.opts.Host, m.opts.Port)
	if err := m.send(addr, auth, m.opts.From, to, msg); err != nil {
		return fmt.Errorf("failed to send summary email: %w", err)
	}
	return nil
}

func attachmentName(s summary.Summary) string {
	company := strings.ReplaceAll(strings.ToLower(s.Company), " ", "_")
	if company == "" {
		company = "callout"
	}
	return fmt.Sprintf("%s_questionnaire_%s.csv", company, s.GeneratedAt.Format("2006-01-02"))
}

// buildMessage assembles a multipart/mixed MIME message with a text body and
// one CSV attachment.
func buildMessage(from string, to []string, subject, body string, attachment []byte, filename string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	part, err := mw.CreatePart(textHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create text part: %w", err)
	}
	if _, err := part.Write([]byte(body)); err != nil {
		return nil, fmt.Errorf("failed to write text part: %w", err)
	}

	attachHeader := textproto.MIMEHeader{}
	attachHeader.Set("Content-Type", "text/csv")
	attachHeader.Set("Content-Transfer-Encoding", "base64")
	attachHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	part, err = mw.CreatePart(attachHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment part: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(attachment)
	if _, err := part.Write([]byte(encoded)); err != nil {
		return nil, fmt.Errorf("failed to write attachment: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize message: %w", err)
	}
	return buf.Bytes(), nil
}
