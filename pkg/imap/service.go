package imap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomail "github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"triage-backend/internal/sendguard"
)

// Service is a read-only IMAP fetch adapter. The mailbox is always selected
// read-only; every operation passes its action descriptor through the send
// guard first.
type Service struct {
	server   string
	username string
	password string
	guard    *sendguard.Guard
	logger   *zap.Logger
}

func NewService(server, username, password string, guard *sendguard.Guard, logger *zap.Logger) *Service {
	return &Service{
		server:   server,
		username: username,
		password: password,
		guard:    guard,
		logger:   logger,
	}
}

// Fetch retrieves the newest limit messages from INBOX as raw payloads.
func (s *Service) Fetch(ctx context.Context, accountID string, limit int) ([]map[string]interface{}, error) {
	if err := s.guard.Check("IMAP_FETCH_MESSAGES"); err != nil {
		return nil, err
	}

	c, err := client.DialTLS(s.server, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", s.server, err)
	}
	defer c.Logout()

	if err := c.Login(s.username, s.password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}

	// Read-only select: fetching must never mark anything seen.
	mbox, err := c.Select("INBOX", true)
	if err != nil {
		return nil, fmt.Errorf("imap select INBOX: %w", err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	if limit <= 0 {
		limit = 50
	}
	from := uint32(1)
	if mbox.Messages > uint32(limit) {
		from = mbox.Messages - uint32(limit) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, section.FetchItem()}

	messages := make(chan *imap.Message, limit)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var payloads []map[string]interface{}
	for msg := range messages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		raw := s.messageToMap(msg, section)
		if raw != nil {
			payloads = append(payloads, raw)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	s.logger.Info("fetched imap messages",
		zap.String("account_id", accountID),
		zap.Int("count", len(payloads)))
	return payloads, nil
}

func (s *Service) messageToMap(msg *imap.Message, section *imap.BodySectionName) map[string]interface{} {
	raw := map[string]interface{}{
		"uid": fmt.Sprintf("%d", msg.Uid),
	}

	if env := msg.Envelope; env != nil {
		raw["message_id"] = strings.Trim(env.MessageId, "<>")
		raw["in_reply_to"] = env.InReplyTo
		raw["subject"] = env.Subject
		if !env.Date.IsZero() {
			raw["date"] = env.Date.UTC().Format(time.RFC3339)
		}
		if len(env.From) > 0 {
			raw["from"] = env.From[0].Address()
			raw["from_name"] = env.From[0].PersonalName
		}
		raw["to"] = joinAddresses(env.To)
		raw["cc"] = joinAddresses(env.Cc)
	}

	var flags []string
	for _, f := range msg.Flags {
		flags = append(flags, f)
	}
	raw["flags"] = flags

	if body := msg.GetBody(section); body != nil {
		text, references, hasAttachments := s.parseBody(body)
		raw["body"] = text
		raw["has_attachments"] = hasAttachments
		if references != "" {
			raw["references"] = references
		}
	}
	return raw
}

// parseBody walks the MIME structure for the first text part, the
// References header, and any attachment.
func (s *Service) parseBody(body io.Reader) (text, references string, hasAttachments bool) {
	mr, err := gomail.CreateReader(body)
	if err != nil {
		s.logger.Debug("unparseable imap message body", zap.Error(err))
		return "", "", false
	}
	references = mr.Header.Get("References")

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		switch header := part.Header.(type) {
		case *gomail.InlineHeader:
			contentType, _, _ := header.ContentType()
			if text == "" || contentType == "text/plain" {
				if data, err := io.ReadAll(part.Body); err == nil {
					text = string(data)
				}
			}
		case *gomail.AttachmentHeader:
			hasAttachments = true
		}
	}
	return text, references, hasAttachments
}

func joinAddresses(addresses []*imap.Address) string {
	var parts []string
	for _, a := range addresses {
		parts = append(parts, a.Address())
	}
	return strings.Join(parts, ", ")
}
