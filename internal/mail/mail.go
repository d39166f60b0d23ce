// Package mail sends plain-text notifications to the site administrators.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/EmpoweredVote/geocode/internal/logger"
)

var ErrNoRecipients = errors.New("mail: no admin recipients configured")

// Notifier delivers a message to the administrators.
type Notifier interface {
	SendToAdmin(ctx context.Context, subject, body string) error
}

// Config holds SMTP settings.
type Config struct {
	SMTPHost string
	From     string
	FromName string
	Admins   []string
	Headers  map[string]string
}

// Sender is a Notifier backed by an SMTP relay.
type Sender struct {
	cfg  Config
	send func(m *gomail.Message) error
	now  func() time.Time
}

// NewSender returns an SMTP notifier. The host may omit the port.
func NewSender(cfg Config) *Sender {
	host, port := splitHostPort(cfg.SMTPHost)
	d := gomail.NewDialer(host, port, "", "")
	return &Sender{
		cfg:  cfg,
		send: func(m *gomail.Message) error { return d.DialAndSend(m) },
		now:  time.Now,
	}
}

func splitHostPort(addr string) (string, int) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 25
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return host, 25
	}
	return host, port
}

// SendToAdmin builds and sends the message.
func (s *Sender) SendToAdmin(ctx context.Context, subject, body string) error {
	if len(s.cfg.Admins) == 0 {
		return ErrNoRecipients
	}
	if err := s.send(s.Build(subject, body)); err != nil {
		return fmt.Errorf("send admin mail: %w", err)
	}
	logger.L().Info("admin mail sent", zap.String("subject", subject))
	return nil
}

// Build assembles the message addressed to every admin.
func (s *Sender) Build(subject, body string) *gomail.Message {
	m := gomail.NewMessage(gomail.SetCharset("UTF-8"), gomail.SetEncoding(gomail.Unencoded))

	domain := "localhost"
	if at := strings.LastIndex(s.cfg.From, "@"); at >= 0 {
		domain = s.cfg.From[at+1:]
	}

	m.SetHeader("Subject", subject)
	m.SetHeader("To", s.cfg.Admins...)
	if s.cfg.FromName != "" {
		m.SetAddressHeader("From", s.cfg.From, s.cfg.FromName)
	} else {
		m.SetHeader("From", s.cfg.From)
	}
	m.SetDateHeader("Date", s.now())
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domain))

	keys := make([]string, 0, len(s.cfg.Headers))
	for k := range s.cfg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.SetHeader(k, s.cfg.Headers[k])
	}

	m.SetBody("text/plain", body)
	return m
}

// Discard is used when no SMTP host is configured; it only logs.
type Discard struct{}

func (Discard) SendToAdmin(_ context.Context, subject, body string) error {
	logger.L().Warn("admin mail not configured, dropping message",
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}
