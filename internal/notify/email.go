package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"TenderWatch/internal/config"
	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

const defaultSMTPTimeout = 30 * time.Second

// EmailChannel delivers notifications through an SMTP relay. Buttons have no
// email equivalent and are ignored.
type EmailChannel struct {
	cfg     config.EmailConfig
	limiter *rate.Limiter
	// send is swappable for tests; defaults to sendMail.
	send func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ ports.Channel = (*EmailChannel)(nil)

// NewEmailChannel wires the SMTP relay settings.
func NewEmailChannel(cfg config.EmailConfig) *EmailChannel {
	ch := &EmailChannel{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
	ch.send = ch.sendMail
	return ch
}

// Kind implements ports.Channel.
func (e *EmailChannel) Kind() domain.ChannelKind { return domain.ChannelEmail }

// Send delivers the notification body as a plain-text mail.
func (e *EmailChannel) Send(ctx context.Context, msg domain.Message) domain.SendOutcome {
	if e.cfg.Host == "" || e.cfg.From == "" {
		return domain.SendOutcome{Message: "email channel misconfigured"}
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return domain.SendOutcome{Message: err.Error()}
	}

	subject := "Nuevo proceso de contratación"
	if first, _, ok := strings.Cut(msg.Text, "\n"); ok && first != "" {
		subject = first
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Text)

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	if err := e.send(ctx, addr, auth, e.cfg.From, []string{msg.Recipient}, []byte(b.String())); err != nil {
		return domain.SendOutcome{Message: fmt.Sprintf("smtp send: %v", err)}
	}
	return domain.SendOutcome{Success: true, Message: "delivered"}
}

// sendMail runs the SMTP exchange under a connection deadline so a wedged
// relay cannot stall the sequential fan-out loop.
func (e *EmailChannel) sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	timeout := e.cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}

	host, _, _ := net.SplitHostPort(addr)
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if err := client.Auth(a); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// SendDocument is not supported over email; attachments stay downloadable
// through the portal link carried in the message body.
func (e *EmailChannel) SendDocument(ctx context.Context, recipient, path, caption string) domain.SendOutcome {
	return domain.SendOutcome{Message: "document delivery is not supported for email"}
}
