package filter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

// PostfixFilter implements a Postfix content filter that triages every
// message passing through it. Triage results are stamped onto the message
// as headers before it is handed back to Postfix; suppressed duplicates can
// optionally be dropped instead of forwarded.
type PostfixFilter struct {
	service          *core.TriageService
	logger           *zap.Logger
	listenAddr       string
	server           *smtp.Server
	dropSuppressed   bool
	actionHeader     string
	stateHeader      string
	tierHeader       string
	duplicateHeader  string
	confidenceHeader string
	postfixAddr      string
	postfixPort      int
	postfixEnabled   bool
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(
	service *core.TriageService,
	logger *zap.Logger,
	listenAddr string,
	dropSuppressed bool,
	actionHeader string,
	stateHeader string,
	tierHeader string,
	duplicateHeader string,
	confidenceHeader string,
	postfixAddr string,
	postfixPort int,
	postfixEnabled bool,
) *PostfixFilter {
	return &PostfixFilter{
		service:          service,
		logger:           logger,
		listenAddr:       listenAddr,
		dropSuppressed:   dropSuppressed,
		actionHeader:     actionHeader,
		stateHeader:      stateHeader,
		tierHeader:       tierHeader,
		duplicateHeader:  duplicateHeader,
		confidenceHeader: confidenceHeader,
		postfixAddr:      postfixAddr,
		postfixPort:      postfixPort,
		postfixEnabled:   postfixEnabled,
	}
}

// Start starts the Postfix filter service
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.listenAddr
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024 // 30MB
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("Postfix filter starting", zap.String("address", f.listenAddr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				f.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail triages an email directly, bypassing the SMTP transport.
// This is mainly used for testing or direct API calls.
func (f *PostfixFilter) ProcessEmail(ctx context.Context, email *core.Email) (*core.TriageResult, error) {
	return f.service.Triage(ctx, email)
}

// sendToPostfix sends the processed email back to Postfix on the configured
// port using go-smtp
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, emailData []byte) error {
	postfixAddr := fmt.Sprintf("%s:%d", f.postfixAddr, f.postfixPort)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", postfixAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			// Continue with other recipients even if one fails
		} else {
			recipientOK = true
		}
	}

	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}

	_, err = wc.Write(emailData)
	if err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}

	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
		// Not returning an error here as the email has already been sent
	}

	return nil
}

// triageHeaders renders the triage outcome as message headers
func (f *PostfixFilter) triageHeaders(result *core.TriageResult, triageErr error) []byte {
	var buf bytes.Buffer

	if triageErr != nil {
		fmt.Fprintf(&buf, "X-Triage-Error: %s\r\n", triageErr.Error())
	}
	if result == nil {
		return buf.Bytes()
	}

	if result.Verdict != nil && result.Verdict.Kind != core.KindNone {
		fmt.Fprintf(&buf, "%s: %s\r\n", f.duplicateHeader, result.Verdict.Kind)
	}
	if result.Suppressed {
		fmt.Fprintf(&buf, "%s: suppress\r\n", f.actionHeader)
		return buf.Bytes()
	}
	if result.Decision != nil {
		fmt.Fprintf(&buf, "%s: %s\r\n", f.actionHeader, result.Decision.Action)
		fmt.Fprintf(&buf, "%s: %s\r\n", f.stateHeader, result.Decision.State)
		fmt.Fprintf(&buf, "%s: %.4f\r\n", f.confidenceHeader, result.Decision.Confidence)
	}
	if result.Score != nil {
		fmt.Fprintf(&buf, "%s: %s (%d)\r\n", f.tierHeader, result.Tier.Name, result.Score.Score)
	}

	return buf.Bytes()
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{
		filter:     b.filter,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// AuthPlain handles PLAIN authentication (not needed for our filter)
func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data handles the email data
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	// Keep a copy of the raw data for later reconstruction
	rawDataCopy := make([]byte, len(rawData))
	copy(rawDataCopy, rawData)

	msg, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		s.filter.logger.Error("Failed to parse email message", zap.Error(err))
		return err
	}

	email, err := parseMessage(msg, s.sender, s.recipients)
	if err != nil {
		s.filter.logger.Error("Failed to extract message content", zap.Error(err))
		return err
	}

	senderDomain := "unknown"
	if parts := strings.Split(email.From, "@"); len(parts) == 2 {
		senderDomain = parts[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, triageErr := s.filter.service.Triage(ctx, email)
	if triageErr != nil {
		s.filter.logger.Error("Failed to triage email",
			zap.Error(triageErr),
			zap.String("sender", email.From),
			zap.String("sender_domain", senderDomain))
	}

	if result != nil && result.Suppressed && s.filter.dropSuppressed {
		kind := core.KindNone
		if result.Verdict != nil {
			kind = result.Verdict.Kind
		}
		s.filter.logger.Info("Dropping suppressed duplicate",
			zap.String("from", email.From),
			zap.String("sender_domain", senderDomain),
			zap.String("duplicate_kind", string(kind)))
		// Accept the message so the upstream queue releases it, but do not
		// forward it anywhere
		return nil
	}

	// Prepend the triage headers, then replay the original headers and body
	var modifiedEmail bytes.Buffer
	modifiedEmail.Write(s.filter.triageHeaders(result, triageErr))

	for key, values := range msg.Header {
		for _, value := range values {
			fmt.Fprintf(&modifiedEmail, "%s: %s\r\n", key, value)
		}
	}
	fmt.Fprintf(&modifiedEmail, "\r\n")

	// Find where the original body starts in the raw data so MIME parts and
	// attachments survive untouched
	bodyStartIndex := bytes.Index(rawDataCopy, []byte("\r\n\r\n"))
	if bodyStartIndex == -1 {
		bodyStartIndex = bytes.Index(rawDataCopy, []byte("\n\n"))
		if bodyStartIndex == -1 {
			modifiedEmail.WriteString(email.Body)
		} else {
			modifiedEmail.Write(rawDataCopy[bodyStartIndex+2:])
		}
	} else {
		modifiedEmail.Write(rawDataCopy[bodyStartIndex+4:])
	}

	if s.filter.postfixEnabled {
		if err := s.filter.sendToPostfix(s.sender, s.recipients, modifiedEmail.Bytes()); err != nil {
			s.filter.logger.Error("Failed to send email back to Postfix",
				zap.Error(err),
				zap.String("sender", email.From))
			return err
		}
	} else {
		s.filter.logger.Warn("Postfix forwarding disabled, this is likely a misconfiguration")
	}

	fields := []zap.Field{
		zap.String("from", email.From),
		zap.String("sender_domain", senderDomain),
	}
	if result != nil {
		fields = append(fields, zap.Bool("suppressed", result.Suppressed))
		if result.Decision != nil {
			fields = append(fields,
				zap.String("action", string(result.Decision.Action)),
				zap.String("state", string(result.Decision.State)),
				zap.String("tier", result.Tier.Name))
		}
	}
	s.filter.logger.Info("Processed email", fields...)

	return nil
}

// Logout handles SMTP logout (not needed for our filter)
func (s *smtpSession) Logout() error {
	return nil
}
