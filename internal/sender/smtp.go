package sender

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

type SMTPConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	From        string        `mapstructure:"from"`
	FromName    string        `mapstructure:"from-name"`
	ReplyTo     string        `mapstructure:"reply-to"`
	ImplicitTLS bool          `mapstructure:"implicit-tls"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SMTP sends through an authenticated submission server. STARTTLS is used
// whenever the server offers it.
type SMTP struct {
	cfg    SMTPConfig
	now    func() time.Time
	logger *zap.Logger
}

func NewSMTP(cfg SMTPConfig, logger *zap.Logger) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("smtp from address %q: %w", cfg.From, err)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
		if cfg.ImplicitTLS {
			cfg.Port = 465
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTP{cfg: cfg, now: time.Now, logger: logger}, nil
}

func (s *SMTP) Send(ctx context.Context, to, subject, body string) (string, error) {
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return "", fmt.Errorf("%w: invalid address %q", ErrBounced, to)
	}

	messageID := s.messageID()
	msg, err := s.compose(rcpt.Address, subject, body, messageID)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	c, err := s.dial(ctx)
	if err != nil {
		return "", fmt.Errorf("connect %s: %v: %w", s.cfg.Host, err, lead.ErrTransientExternal)
	}
	defer c.Close()

	if err := s.deliver(c, rcpt.Address, msg); err != nil {
		return "", classify(err)
	}

	s.logger.Info("email sent", zap.String("to", rcpt.Address), zap.String("message_id", messageID))
	return messageID, nil
}

func (s *SMTP) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.ImplicitTLS {
		d := &tls.Dialer{Config: &tls.Config{ServerName: s.cfg.Host}}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (s *SMTP) deliver(c *smtp.Client, to string, msg []byte) error {
	if err := c.Hello(helloName(s.cfg.From)); err != nil {
		return err
	}
	if !s.cfg.ImplicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return err
			}
		}
	}
	if s.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return fmt.Errorf("%w: server does not offer AUTH", ErrAuthFailed)
		}
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
	}

	from, _ := mail.ParseAddress(s.cfg.From)
	if err := c.Mail(from.Address); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// classify maps SMTP replies onto the send error taxonomy.
func classify(err error) error {
	if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrBounced) {
		return err
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code == 530 || tpErr.Code == 534 || tpErr.Code == 535:
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		case tpErr.Code == 421 || tpErr.Code == 450 || tpErr.Code == 451 || tpErr.Code == 452:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case tpErr.Code >= 550 && tpErr.Code <= 554:
			return fmt.Errorf("%w: %v", ErrBounced, err)
		}
	}
	return fmt.Errorf("smtp: %v: %w", err, lead.ErrTransientExternal)
}

func (s *SMTP) messageID() string {
	domain := "localhost"
	if addr, err := mail.ParseAddress(s.cfg.From); err == nil {
		if _, d, ok := strings.Cut(addr.Address, "@"); ok {
			domain = d
		}
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

func helloName(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		if _, d, ok := strings.Cut(addr.Address, "@"); ok {
			return d
		}
	}
	return "localhost"
}

// compose builds a multipart/alternative message with plain text and a
// minimal HTML rendering of the same body.
func (s *SMTP) compose(to, subject, body, messageID string) ([]byte, error) {
	from, _ := mail.ParseAddress(s.cfg.From)
	if s.cfg.FromName != "" {
		from.Name = s.cfg.FromName
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	header("From", from.String())
	header("To", to)
	if s.cfg.ReplyTo != "" {
		header("Reply-To", s.cfg.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", s.now().Format(time.RFC1123Z))
	header("Message-ID", messageID)
	header("MIME-Version", "1.0")
	header("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	htmlBody := "<html><body><p>" + strings.ReplaceAll(html.EscapeString(body), "\n", "<br>") + "</p></body></html>"
	for _, part := range []struct {
		contentType string
		content     string
	}{
		{contentType: "text/plain; charset=utf-8", content: body},
		{contentType: "text/html; charset=utf-8", content: htmlBody},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(part.content)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
