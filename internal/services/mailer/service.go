// -----------------------------------------------------------------------
// Mailer Service - SMTP email sending using user credentials
// Credentials are stored in KeyValue storage with smtp_ prefix
// -----------------------------------------------------------------------

package mailer

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
)

// Config holds SMTP configuration, static fields sourced from
// common.MailConfig and credentials from KeyValue storage (credentials
// don't belong in a checked-in TOML file).
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	ReplyTo  string
	AdminBCC string
	UseTLS   bool
}

// Service implements interfaces.Mailer over SMTP, retrying transient
// delivery failures with backoff.
type Service struct {
	cfg       common.MailConfig
	kvStorage interfaces.KeyValueStorage
	logger    arbor.ILogger
}

var _ interfaces.Mailer = (*Service)(nil)

// NewService creates a new mailer service. Host/port/from/reply-to/
// admin-bcc come from configuration; username/password are resolved
// from KV storage since they survive reset_on_startup independently of
// the TOML file.
func NewService(cfg common.MailConfig, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		cfg:       cfg,
		kvStorage: kvStorage,
		logger:    logger,
	}
}

// GetConfig retrieves SMTP configuration, layering KV-stored
// credentials over the static config.
func (s *Service) GetConfig(ctx context.Context) (*Config, error) {
	config := &Config{
		Host:     s.cfg.SMTPHost,
		Port:     s.cfg.SMTPPort,
		From:     s.cfg.From,
		FromName: "Vetting Core",
		ReplyTo:  s.cfg.ReplyTo,
		AdminBCC: s.cfg.AdminBCC,
		UseTLS:   true,
	}
	if config.Port == 0 {
		config.Port = 587
	}

	if host, err := s.kvStorage.Get(ctx, "smtp_host"); err == nil && host != "" {
		config.Host = host
	}
	if portStr, err := s.kvStorage.Get(ctx, "smtp_port"); err == nil && portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			config.Port = port
		}
	}
	if username, err := s.kvStorage.Get(ctx, "smtp_username"); err == nil {
		config.Username = username
	}
	if password, err := s.kvStorage.Get(ctx, "smtp_password"); err == nil {
		config.Password = password
	}
	if from, err := s.kvStorage.Get(ctx, "smtp_from"); err == nil && from != "" {
		config.From = from
	}
	if fromName, err := s.kvStorage.Get(ctx, "smtp_from_name"); err == nil && fromName != "" {
		config.FromName = fromName
	}
	if tlsStr, err := s.kvStorage.Get(ctx, "smtp_use_tls"); err == nil && tlsStr != "" {
		config.UseTLS = strings.ToLower(tlsStr) == "true" || tlsStr == "1"
	}

	return config, nil
}

// SetConfig saves SMTP credentials to KeyValue storage.
func (s *Service) SetConfig(ctx context.Context, config *Config) error {
	if err := s.kvStorage.Set(ctx, "smtp_host", config.Host, "SMTP server hostname"); err != nil {
		return fmt.Errorf("failed to set smtp_host: %w", err)
	}
	if err := s.kvStorage.Set(ctx, "smtp_port", strconv.Itoa(config.Port), "SMTP server port"); err != nil {
		return fmt.Errorf("failed to set smtp_port: %w", err)
	}
	if err := s.kvStorage.Set(ctx, "smtp_username", config.Username, "SMTP username (email address)"); err != nil {
		return fmt.Errorf("failed to set smtp_username: %w", err)
	}
	if err := s.kvStorage.Set(ctx, "smtp_password", config.Password, "SMTP password or app password"); err != nil {
		return fmt.Errorf("failed to set smtp_password: %w", err)
	}
	if err := s.kvStorage.Set(ctx, "smtp_from", config.From, "From email address"); err != nil {
		return fmt.Errorf("failed to set smtp_from: %w", err)
	}
	if err := s.kvStorage.Set(ctx, "smtp_from_name", config.FromName, "From display name"); err != nil {
		return fmt.Errorf("failed to set smtp_from_name: %w", err)
	}
	tlsStr := "false"
	if config.UseTLS {
		tlsStr = "true"
	}
	if err := s.kvStorage.Set(ctx, "smtp_use_tls", tlsStr, "Use TLS encryption"); err != nil {
		return fmt.Errorf("failed to set smtp_use_tls: %w", err)
	}

	s.logger.Info().Str("host", config.Host).Int("port", config.Port).Str("from", config.From).Msg("Mail configuration saved")
	return nil
}

// IsConfigured checks if SMTP is configured with minimum required settings
func (s *Service) IsConfigured(ctx context.Context) bool {
	config, err := s.GetConfig(ctx)
	if err != nil {
		return false
	}
	return config.Host != "" && config.Username != "" && config.Password != "" && config.From != ""
}

// Send implements interfaces.Mailer: up to three attempts with
// exponential backoff on transient SMTP errors (4xx replies), a single
// attempt for permanent rejections (5xx replies). The admin BCC address
// from configuration, if set, is appended to every send so operators
// get visibility into outbound qualified-candidate and alert mail
// without every caller having to know about it.
func (s *Service) Send(ctx context.Context, to, cc, bcc []string, subject, htmlBody, textFallback string) (string, error) {
	config, err := s.GetConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get mail config: %w", err)
	}
	if config.Host == "" {
		return "", fmt.Errorf("SMTP host not configured")
	}
	if config.Username == "" || config.Password == "" {
		return "", fmt.Errorf("SMTP credentials not configured")
	}
	if config.From == "" {
		return "", fmt.Errorf("from email not configured")
	}
	if len(to) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}

	allBCC := bcc
	if config.AdminBCC != "" {
		allBCC = append(append([]string{}, bcc...), config.AdminBCC)
	}

	deliveryID := uuid.NewString()
	msg := buildMessage(config, to, cc, subject, htmlBody, textFallback)
	envelope := append(append(append([]string{}, to...), cc...), allBCC...)

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	attempt := 0
	operation := func() error {
		attempt++
		var sendErr error
		if config.UseTLS {
			sendErr = s.sendWithTLS(addr, auth, config.From, envelope, msg)
		} else {
			sendErr = smtp.SendMail(addr, auth, config.From, envelope, []byte(msg))
		}
		if sendErr == nil {
			return nil
		}
		if isPermanentSMTPError(sendErr) {
			return backoff.Permanent(sendErr)
		}
		return sendErr
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	sendErr := backoff.Retry(operation, bo)

	// recipient_count, not the addresses themselves: no sensitive identifiers in logs.
	logEvent := s.logger.Info()
	if sendErr != nil {
		logEvent = s.logger.Error().Err(sendErr)
	}
	logEvent.Str("delivery_id", deliveryID).Int("recipient_count", len(envelope)).Int("attempts", attempt).Msg("mail delivery attempt")

	if sendErr != nil {
		return deliveryID, fmt.Errorf("mail delivery failed after %d attempt(s): %w", attempt, sendErr)
	}
	return deliveryID, nil
}

// isPermanentSMTPError reports whether err carries an SMTP reply code
// in the 5xx range. SMTP's 4xx/5xx split is the reverse of HTTP's: 4xx
// is a temporary condition worth retrying (mailbox busy, greylisting),
// 5xx is a permanent rejection (bad address, policy reject) that a
// retry cannot fix.
func isPermanentSMTPError(err error) bool {
	var protoErr *textproto.Error
	if te, ok := err.(*textproto.Error); ok {
		protoErr = te
	}
	if protoErr == nil {
		return false
	}
	return protoErr.Code >= 500
}

func buildMessage(config *Config, to, cc []string, subject, htmlBody, textBody string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", config.FromName, config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	if len(cc) > 0 {
		msg.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(cc, ", ")))
	}
	if config.ReplyTo != "" {
		msg.WriteString(fmt.Sprintf("Reply-To: %s\r\n", config.ReplyTo))
	}
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))

	if htmlBody != "" {
		boundary := generateBoundary()
		msg.WriteString("MIME-Version: 1.0\r\n")
		msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
		msg.WriteString("\r\n")

		if textBody != "" {
			msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
			msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
			msg.WriteString("Content-Transfer-Encoding: base64\r\n")
			msg.WriteString("\r\n")
			msg.WriteString(encodeBase64WithLineBreaks(textBody))
			msg.WriteString("\r\n")
		}

		// RFC 5322 limits line length to 998 chars; base64 keeps us compliant
		// regardless of body content.
		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
		msg.WriteString("Content-Transfer-Encoding: base64\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(encodeBase64WithLineBreaks(htmlBody))
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	} else {
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(textBody)
	}

	return msg.String()
}

// sendWithTLS sends email using a direct TLS connection (required for Gmail
// and most modern providers), falling back to STARTTLS on dial failure.
func (s *Service) sendWithTLS(addr string, auth smtp.Auth, from string, to []string, msg string) error {
	host := strings.Split(addr, ":")[0]

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return s.sendWithSTARTTLS(addr, auth, from, to, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return deliverViaClient(client, auth, from, to, msg)
}

// sendWithSTARTTLS sends email using STARTTLS upgrade over a plain connection.
func (s *Service) sendWithSTARTTLS(addr string, auth smtp.Auth, from string, to []string, msg string) error {
	host := strings.Split(addr, ":")[0]

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	return deliverViaClient(client, auth, from, to, msg)
}

func deliverViaClient(client *smtp.Client, auth smtp.Auth, from string, to []string, msg string) error {
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set mail recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// generateBoundary creates a unique MIME boundary string using
// crypto/rand to avoid collisions with message content.
func generateBoundary() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "vetting_boundary_fallback"
	}
	return fmt.Sprintf("vetting_%x", b)
}

// encodeBase64WithLineBreaks encodes content as base64 with 76-char line
// breaks per RFC 2045.
func encodeBase64WithLineBreaks(content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))

	var result strings.Builder
	const lineLen = 76
	for i := 0; i < len(encoded); i += lineLen {
		end := i + lineLen
		if end > len(encoded) {
			end = len(encoded)
		}
		result.WriteString(encoded[i:end])
		if end < len(encoded) {
			result.WriteString("\r\n")
		}
	}
	return result.String()
}
