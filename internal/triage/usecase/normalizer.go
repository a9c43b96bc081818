package usecase

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	triagedomain "triage-backend/internal/triage/domain"
	"triage-backend/pkg/textutil"
)

const snippetLength = 500

// Normalizer converts provider-shaped raw payloads into domain Messages.
// Missing fields never fail normalization; only an unknown provider does.
type Normalizer struct {
	logger *zap.Logger
}

func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize maps one raw payload to a Message for the given provider.
func (n *Normalizer) Normalize(raw map[string]interface{}, provider triagedomain.Provider, accountID string) (*triagedomain.Message, error) {
	var msg *triagedomain.Message
	switch provider {
	case triagedomain.ProviderGmail:
		msg = n.normalizeGmail(raw)
	case triagedomain.ProviderOutlook:
		msg = n.normalizeOutlook(raw)
	case triagedomain.ProviderIMAP:
		msg = n.normalizeIMAP(raw)
	case triagedomain.ProviderIMessage:
		msg = n.normalizeIMessage(raw)
	default:
		return nil, &triagedomain.UnsupportedProviderError{Provider: string(provider)}
	}

	msg.Provider = provider
	msg.AccountID = accountID
	msg.ID = triagedomain.CompositeID(provider, accountID, msg.MessageID)
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	msg.ReceivedAt = msg.ReceivedAt.UTC()
	if msg.Snippet == "" {
		msg.Snippet = textutil.Snippet(msg.BodyText, snippetLength)
	} else {
		msg.Snippet = textutil.Snippet(msg.Snippet, snippetLength)
	}
	msg.PriorityScore = 50
	msg.PriorityCategory = triagedomain.PriorityNormal
	msg.Category = triagedomain.CategoryOther
	msg.DedupFingerprint = Fingerprint(msg)
	return msg, nil
}

// NormalizeAndDedup normalizes a batch and drops in-batch duplicates by
// fingerprint. Per-payload failures are collected; they never abort the batch.
func (n *Normalizer) NormalizeAndDedup(raws []map[string]interface{}, provider triagedomain.Provider, accountID string) ([]triagedomain.Message, int, []error) {
	seen := make(map[string]bool)
	var messages []triagedomain.Message
	var errs []error
	duplicates := 0

	for i, raw := range raws {
		msg, err := n.Normalize(raw, provider, accountID)
		if err != nil {
			errs = append(errs, fmt.Errorf("payload %d: %w", i, err))
			continue
		}
		if seen[msg.DedupFingerprint] {
			duplicates++
			continue
		}
		seen[msg.DedupFingerprint] = true
		messages = append(messages, *msg)
	}
	return messages, duplicates, errs
}

// Fingerprint hashes the stable content identity of a message: subject,
// sender, and the receive time truncated to the minute. Subjectless chat
// messages hash the snippet in place of the subject. Envelope-only
// differences (labels, read state, native ids) do not change it.
func Fingerprint(msg *triagedomain.Message) string {
	subject := strings.ToLower(strings.TrimSpace(msg.Subject))
	if subject == "" {
		subject = strings.ToLower(strings.TrimSpace(msg.Snippet))
	}
	from := strings.ToLower(strings.TrimSpace(msg.FromAddress))
	minute := msg.ReceivedAt.UTC().Truncate(time.Minute).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(subject + "|" + from + "|" + minute))
	return hex.EncodeToString(sum[:])
}

func (n *Normalizer) normalizeGmail(raw map[string]interface{}) *triagedomain.Message {
	msg := &triagedomain.Message{
		MessageID:        getString(raw, "id"),
		ProviderThreadID: getString(raw, "threadId"),
		Snippet:          getString(raw, "snippet"),
	}

	payload, _ := raw["payload"].(map[string]interface{})
	headers := headerMap(payload)

	msg.Subject = headers["subject"]
	msg.InReplyTo = headers["in-reply-to"]
	msg.References = headers["references"]
	msg.FromAddress, msg.FromName = parseAddress(headers["from"])
	msg.ToAddresses = addressListJSON(headers["to"])
	msg.CcAddresses = addressListJSON(headers["cc"])
	msg.BccAddresses = addressListJSON(headers["bcc"])

	if ms := getString(raw, "internalDate"); ms != "" {
		if v, err := strconv.ParseInt(ms, 10, 64); err == nil {
			msg.ReceivedAt = time.UnixMilli(v).UTC()
		}
	}
	if msg.ReceivedAt.IsZero() && headers["date"] != "" {
		if t, err := mail.ParseDate(headers["date"]); err == nil {
			msg.ReceivedAt = t.UTC()
		}
	}

	labels := stringSlice(raw["labelIds"])
	msg.Labels = labelsJSON(labels)
	for _, label := range labels {
		switch label {
		case "UNREAD":
			msg.IsUnread = true
		case "IMPORTANT", "STARRED":
			msg.IsImportant = true
		}
	}

	msg.BodyText, msg.HasAttachments = walkGmailPayload(payload)
	return msg
}

// walkGmailPayload extracts the plain-text body from a (possibly nested)
// multipart payload, preferring text/plain parts, and reports whether any
// part looks like an attachment.
func walkGmailPayload(payload map[string]interface{}) (string, bool) {
	if payload == nil {
		return "", false
	}

	hasAttachment := false
	var plain, html string

	var walk func(part map[string]interface{})
	walk = func(part map[string]interface{}) {
		if part == nil {
			return
		}
		if filename := getString(part, "filename"); filename != "" {
			hasAttachment = true
		}
		mimeType := getString(part, "mimeType")
		if body, ok := part["body"].(map[string]interface{}); ok {
			if data := getString(body, "data"); data != "" {
				decoded := decodeBase64URL(data)
				switch {
				case mimeType == "text/plain" && plain == "":
					plain = decoded
				case mimeType == "text/html" && html == "":
					html = decoded
				}
			}
		}
		if parts, ok := part["parts"].([]interface{}); ok {
			for _, p := range parts {
				if m, ok := p.(map[string]interface{}); ok {
					walk(m)
				}
			}
		}
	}
	walk(payload)

	if plain != "" {
		return strings.TrimSpace(plain), hasAttachment
	}
	if html != "" {
		return textutil.StripHTML(html), hasAttachment
	}
	return "", hasAttachment
}

// decodeBase64URL decodes URL-safe base64, tolerating missing padding and
// returning what it can on malformed input.
func decodeBase64URL(data string) string {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}

func (n *Normalizer) normalizeOutlook(raw map[string]interface{}) *triagedomain.Message {
	msg := &triagedomain.Message{
		MessageID:        getString(raw, "id"),
		ProviderThreadID: getString(raw, "conversationId"),
		Subject:          getString(raw, "subject"),
		Snippet:          getString(raw, "bodyPreview"),
	}

	if from, ok := raw["from"].(map[string]interface{}); ok {
		if ea, ok := from["emailAddress"].(map[string]interface{}); ok {
			msg.FromAddress = strings.ToLower(getString(ea, "address"))
			msg.FromName = getString(ea, "name")
		}
	}
	msg.ToAddresses = recipientsJSON(raw["toRecipients"])
	msg.CcAddresses = recipientsJSON(raw["ccRecipients"])
	msg.BccAddresses = recipientsJSON(raw["bccRecipients"])

	if ts := getString(raw, "receivedDateTime"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			msg.ReceivedAt = t.UTC()
		}
	}

	if isRead, ok := raw["isRead"].(bool); ok {
		msg.IsUnread = !isRead
	}
	msg.IsImportant = strings.EqualFold(getString(raw, "importance"), "high")
	if has, ok := raw["hasAttachments"].(bool); ok {
		msg.HasAttachments = has
	}

	if body, ok := raw["body"].(map[string]interface{}); ok {
		content := getString(body, "content")
		if strings.EqualFold(getString(body, "contentType"), "html") {
			content = textutil.StripHTML(content)
		}
		msg.BodyText = content
	}

	if categories := stringSlice(raw["categories"]); len(categories) > 0 {
		msg.Labels = labelsJSON(categories)
	}
	return msg
}

func (n *Normalizer) normalizeIMAP(raw map[string]interface{}) *triagedomain.Message {
	msg := &triagedomain.Message{
		MessageID:  getString(raw, "message_id"),
		Subject:    getString(raw, "subject"),
		BodyText:   getString(raw, "body"),
		InReplyTo:  getString(raw, "in_reply_to"),
		References: getString(raw, "references"),
	}
	if msg.MessageID == "" {
		msg.MessageID = getString(raw, "uid")
	}

	msg.FromAddress, msg.FromName = parseAddress(getString(raw, "from"))
	if name := getString(raw, "from_name"); name != "" {
		msg.FromName = name
	}
	msg.ToAddresses = addressListJSON(getString(raw, "to"))
	msg.CcAddresses = addressListJSON(getString(raw, "cc"))

	if ts := getString(raw, "date"); ts != "" {
		if t, err := mail.ParseDate(ts); err == nil {
			msg.ReceivedAt = t.UTC()
		} else if t, err := time.Parse(time.RFC3339, ts); err == nil {
			msg.ReceivedAt = t.UTC()
		}
	} else if t, ok := raw["date"].(time.Time); ok {
		msg.ReceivedAt = t.UTC()
	}

	flags := stringSlice(raw["flags"])
	msg.IsUnread = true
	for _, flag := range flags {
		if flag == "\\Seen" {
			msg.IsUnread = false
		}
		if flag == "\\Flagged" {
			msg.IsImportant = true
		}
	}
	if has, ok := raw["has_attachments"].(bool); ok {
		msg.HasAttachments = has
	}
	return msg
}

// normalizeIMessage maps one exported chat message. Chat messages carry no
// subject; the chat identifier becomes the provider thread id and the sender
// handle (a phone number or an Apple ID address) stands in for the address.
func (n *Normalizer) normalizeIMessage(raw map[string]interface{}) *triagedomain.Message {
	msg := &triagedomain.Message{
		MessageID:        getString(raw, "guid"),
		ProviderThreadID: getString(raw, "chat"),
		BodyText:         getString(raw, "text"),
	}
	if msg.MessageID == "" {
		msg.MessageID = getString(raw, "id")
	}

	msg.FromAddress = strings.ToLower(strings.TrimSpace(getString(raw, "sender")))
	msg.FromName = getString(raw, "sender_name")

	if ts := getString(raw, "timestamp"); ts != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", ts); err == nil {
			msg.ReceivedAt = t.UTC()
		} else if t, err := time.Parse(time.RFC3339, ts); err == nil {
			msg.ReceivedAt = t.UTC()
		}
	}

	msg.IsUnread = true
	if read, ok := raw["is_read"].(bool); ok {
		msg.IsUnread = !read
	}
	if service := getString(raw, "service"); service != "" {
		msg.Labels = labelsJSON([]string{service})
	}
	return msg
}

func headerMap(payload map[string]interface{}) map[string]string {
	out := make(map[string]string)
	if payload == nil {
		return out
	}
	headers, ok := payload["headers"].([]interface{})
	if !ok {
		return out
	}
	for _, h := range headers {
		m, ok := h.(map[string]interface{})
		if !ok {
			continue
		}
		name := strings.ToLower(getString(m, "name"))
		if _, exists := out[name]; !exists {
			out[name] = getString(m, "value")
		}
	}
	return out
}

// parseAddress splits "Name <addr>" into its parts, lowercasing the address.
func parseAddress(value string) (address, name string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ""
	}
	if parsed, err := mail.ParseAddress(value); err == nil {
		return strings.ToLower(parsed.Address), parsed.Name
	}
	return strings.ToLower(strings.Trim(value, "<>")), ""
}

func addressListJSON(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	var addresses []string
	if parsed, err := mail.ParseAddressList(value); err == nil {
		for _, a := range parsed {
			addresses = append(addresses, strings.ToLower(a.Address))
		}
	} else {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				addresses = append(addresses, strings.ToLower(strings.Trim(part, "<>")))
			}
		}
	}
	return labelsJSON(addresses)
}

func recipientsJSON(value interface{}) string {
	entries, ok := value.([]interface{})
	if !ok {
		return ""
	}
	var addresses []string
	for _, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if ea, ok := m["emailAddress"].(map[string]interface{}); ok {
			if addr := getString(ea, "address"); addr != "" {
				addresses = append(addresses, strings.ToLower(addr))
			}
		}
	}
	return labelsJSON(addresses)
}

func labelsJSON(values []string) string {
	if len(values) == 0 {
		return ""
	}
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(data)
}

func getString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func stringSlice(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
