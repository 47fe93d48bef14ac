package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/olimci/snapraid-runner/pkg/config"
	"github.com/wneessen/go-mail"
)

// Mail sends the report as a plain-text, quoted-printable email.
type Mail struct {
	email config.Email
	smtp  config.SMTP
}

func NewMail(email config.Email, smtp config.SMTP) *Mail {
	return &Mail{email: email, smtp: smtp}
}

func (m *Mail) Name() string { return "email" }

func (m *Mail) SendOn() config.Triggers { return m.email.SendOn }

func (m *Mail) Send(ctx context.Context, r Report) error {
	msg, err := m.Message(r)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.smtp.Host, m.ClientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail via %s: %w", m.smtp.Host, err)
	}
	return nil
}

// Message builds the email for r.
func (m *Mail) Message(r Report) (*mail.Msg, error) {
	msg := mail.NewMsg(mail.WithCharset(mail.CharsetUTF8), mail.WithEncoding(mail.EncodingQP))
	if err := msg.From(m.email.From); err != nil {
		return nil, fmt.Errorf("email.from: %w", err)
	}
	if err := msg.To(Recipients(m.email.To)...); err != nil {
		return nil, fmt.Errorf("email.to: %w", err)
	}
	msg.Subject(Subject(m.email.Subject, r.Success))
	msg.SetBodyString(mail.TypeTextPlain, r.Body(Truncate(r.Log, m.email.MaxSize*1024)))
	if r.RunID != "" {
		msg.SetGenHeader(mail.Header("X-Snapraid-Runner-Run"), r.RunID)
	}
	return msg, nil
}

// Default SMTP ports per transport.
const (
	portSMTP       = 25
	portSubmission = 587 // STARTTLS
	portSMTPS      = 465 // implicit TLS
)

// ClientOptions maps the smtp section onto go-mail client options.
func (m *Mail) ClientOptions() []mail.Option {
	opts := []mail.Option{mail.WithPort(m.Port())}

	if m.smtp.SSL {
		opts = append(opts, mail.WithSSL())
	}
	if m.smtp.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if m.smtp.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(m.AuthType()),
			mail.WithUsername(m.smtp.User),
			mail.WithPassword(m.smtp.Password),
		)
	}
	return opts
}

// Port is smtp.port, or the standard port for the configured transport.
func (m *Mail) Port() int {
	switch {
	case m.smtp.Port > 0:
		return m.smtp.Port
	case m.smtp.SSL:
		return portSMTPS
	case m.smtp.TLS:
		return portSubmission
	default:
		return portSMTP
	}
}

// AuthType is PLAIN auth. Without SSL or STARTTLS the credentials go over a
// plaintext connection, which go-mail only allows with the NoEnc variant.
func (m *Mail) AuthType() mail.SMTPAuthType {
	if m.smtp.SSL || m.smtp.TLS {
		return mail.SMTPAuthPlain
	}
	return mail.SMTPAuthPlainNoEnc
}

// Subject appends the run status to the configured prefix.
func Subject(prefix string, success bool) string {
	if success {
		return prefix + " SUCCESS"
	}
	return prefix + " ERROR"
}

// Recipients splits a comma separated address list.
func Recipients(to string) []string {
	var out []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
