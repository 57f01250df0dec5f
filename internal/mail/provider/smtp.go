package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"recruitment_backend/internal/mail/domain"

	gomail "github.com/wneessen/go-mail"
	"github.com/wneessen/go-mail/smtp"
)

// SMTPSettings are the decrypted connection parameters of an smtp
// configuration.
type SMTPSettings struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Secure     bool
	RequireTLS bool
}

// SMTP delivers over a direct SMTP connection via go-mail.
type SMTP struct {
	settings SMTPSettings
	from     From
}

// NewSMTP creates an SMTP adapter.
func NewSMTP(settings SMTPSettings, from From) *SMTP {
	return &SMTP{settings: settings, from: from}
}

func (s *SMTP) Provider() domain.ProviderType { return domain.ProviderSMTP }

// Send implements Sender.
func (s *SMTP) Send(ctx context.Context, msg domain.Message) (domain.Result, error) {
	m, err := s.buildMessage(msg)
	if err != nil {
		return domain.Result{}, domain.Permanent(domain.ProviderSMTP, err)
	}

	client, err := gomail.NewClient(s.settings.Host, s.clientOptions()...)
	if err != nil {
		return domain.Result{}, domain.Permanent(domain.ProviderSMTP, fmt.Errorf("smtp client: %w", err))
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return domain.Result{}, classifySMTP(err)
	}

	id := ""
	if ids := m.GetGenHeader(gomail.HeaderMessageID); len(ids) > 0 {
		id = ids[0]
	}
	return domain.Result{Provider: domain.ProviderSMTP, MessageID: id}, nil
}

func (s *SMTP) buildMessage(msg domain.Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if s.from.Name != "" {
		if err := m.FromFormat(s.from.Name, s.from.Email); err != nil {
			return nil, fmt.Errorf("smtp from: %w", err)
		}
	} else if err := m.From(s.from.Email); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	m.Subject(msg.Subject)

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	}

	if msg.DedupeKey != "" {
		m.SetMessageIDWithValue(messageIDValue(msg.DedupeKey, s.from.Email))
	} else {
		m.SetMessageID()
	}
	return m, nil
}

func (s *SMTP) clientOptions() []gomail.Option {
	policy := gomail.TLSOpportunistic
	if s.settings.RequireTLS {
		policy = gomail.TLSMandatory
	}
	opts := []gomail.Option{
		gomail.WithTLSPortPolicy(policy),
		gomail.WithPort(s.settings.Port),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, network, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, network, addr)
		}),
	}
	if s.settings.Secure {
		opts = append(opts, gomail.WithSSL())
	}
	if s.settings.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.settings.Username),
			gomail.WithPassword(s.settings.Password),
		)
	}
	return opts
}

// authRejections are go-mail's refusals to authenticate with the configured
// mechanism. Retrying cannot change the outcome.
var authRejections = []error{
	gomail.ErrPlainAuthNotSupported,
	gomail.ErrLoginAuthNotSupported,
	gomail.ErrCramMD5AuthNotSupported,
	gomail.ErrXOauth2AuthNotSupported,
	gomail.ErrSCRAMSHA1AuthNotSupported,
	gomail.ErrSCRAMSHA256AuthNotSupported,
	gomail.ErrSCRAMSHA1PLUSAuthNotSupported,
	gomail.ErrSCRAMSHA256PLUSAuthNotSupported,
	gomail.ErrNoSupportedAuthDiscovered,
	smtp.ErrUnencrypted,
	smtp.ErrWrongHostname,
}

// classifySMTP trusts the server's reply class when one was received (4xx
// temporary, 5xx permanent). Auth and TLS policy refusals are permanent.
// Failures before any reply, such as dial errors, are transient.
func classifySMTP(err error) error {
	var sendErr *gomail.SendError
	if errors.As(err, &sendErr) {
		if sendErr.IsTemp() {
			return domain.Transient(domain.ProviderSMTP, err)
		}
		return domain.Permanent(domain.ProviderSMTP, err)
	}

	var reply *textproto.Error
	if errors.As(err, &reply) {
		if reply.Code >= 400 && reply.Code < 500 {
			return domain.Transient(domain.ProviderSMTP, err)
		}
		return domain.Permanent(domain.ProviderSMTP, err)
	}

	for _, target := range authRejections {
		if errors.Is(err, target) {
			return domain.Permanent(domain.ProviderSMTP, err)
		}
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return domain.Permanent(domain.ProviderSMTP, err)
	}

	// go-mail reports these policy failures as plain strings.
	msg := err.Error()
	if strings.Contains(msg, "does not support SMTP AUTH") || strings.Contains(msg, "does not support STARTTLS") {
		return domain.Permanent(domain.ProviderSMTP, err)
	}

	if errors.Is(err, context.Canceled) {
		return domain.Permanent(domain.ProviderSMTP, err)
	}
	return domain.Transient(domain.ProviderSMTP, err)
}
