package sendguard

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SendBlockedError is returned whenever an action descriptor matches an
// outbound operation. Drafts are persisted for review; nothing leaves the
// system through this process.
type SendBlockedError struct {
	Action string
	Rule   string
}

func (e *SendBlockedError) Error() string {
	return fmt.Sprintf("send blocked: action %q matched rule %q; drafts must be sent manually after review", e.Action, e.Rule)
}

// blockedActions are exact outbound action names known from the providers.
var blockedActions = []string{
	"GMAIL_SEND_EMAIL",
	"GMAIL_REPLY_TO_EMAIL",
	"GMAIL_FORWARD_EMAIL",
	"GMAIL_SEND_DRAFT",
	"OUTLOOK_SEND_EMAIL",
	"OUTLOOK_REPLY_EMAIL",
	"IMAP_SEND",
	"SMTP_SEND",
}

// blockedFragments match any descriptor that could deliver mail. Matching is
// case-insensitive substring.
var blockedFragments = []string{
	"send",
	"reply",
	"forward",
	"post",
	"deliver",
	"dispatch",
	"transmit",
}

// blockedEndpointFragments match API paths that send.
var blockedEndpointFragments = []string{
	"/messages/send",
	"/drafts/send",
	"/sendmail",
	"/smtp",
}

// blockedScriptFragments match shell or code snippets that send.
var blockedScriptFragments = []string{
	"smtplib",
	"sendmail",
	"mail -s",
	"smtp.send",
}

// safeFragments are read-shaped action families.
var safeFragments = []string{
	"fetch",
	"list",
	"get",
	"search",
	"read",
}

// AuditEntry records one guard decision.
type AuditEntry struct {
	Action    string
	Allowed   bool
	Rule      string
	CheckedAt time.Time
}

// Guard gates every outbound-capable call the mail adapters make. Adapters
// must pass each action descriptor to Check before executing it; the pipeline
// refuses to start until Verify has passed. There is no override parameter.
type Guard struct {
	logger *zap.Logger

	mu      sync.Mutex
	allowed int
	blocked int
	audit   []AuditEntry
}

func NewGuard(logger *zap.Logger) *Guard {
	return &Guard{logger: logger}
}

// Check validates an action descriptor such as "GMAIL_FETCH_EMAILS".
// Descriptors matching the deny rules fail with *SendBlockedError; everything
// else passes.
func (g *Guard) Check(action string) error {
	upper := strings.ToUpper(action)
	for _, name := range blockedActions {
		if upper == name {
			g.record(action, false, name)
			return &SendBlockedError{Action: action, Rule: name}
		}
	}

	lower := strings.ToLower(action)
	for _, fragment := range blockedFragments {
		if strings.Contains(lower, fragment) {
			g.record(action, false, fragment)
			return &SendBlockedError{Action: action, Rule: fragment}
		}
	}

	g.record(action, true, "")
	return nil
}

// CheckEndpoint validates a raw API path before a request is made.
func (g *Guard) CheckEndpoint(endpoint string) error {
	lower := strings.ToLower(endpoint)
	for _, fragment := range blockedEndpointFragments {
		if strings.Contains(lower, fragment) {
			g.record(endpoint, false, fragment)
			return &SendBlockedError{Action: endpoint, Rule: fragment}
		}
	}
	g.record(endpoint, true, "")
	return nil
}

// CheckScript validates a script or command body before execution.
func (g *Guard) CheckScript(script string) error {
	lower := strings.ToLower(script)
	for _, fragment := range blockedScriptFragments {
		if strings.Contains(lower, fragment) {
			g.record("script", false, fragment)
			return &SendBlockedError{Action: "script", Rule: fragment}
		}
	}
	g.record("script", true, "")
	return nil
}

// IsSafeAction reports whether a descriptor is read-shaped and passes Check.
func (g *Guard) IsSafeAction(action string) bool {
	lower := strings.ToLower(action)
	for _, fragment := range blockedFragments {
		if strings.Contains(lower, fragment) {
			return false
		}
	}
	for _, fragment := range safeFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Verify exercises the guard with known outbound and read-only descriptors
// and fails if either answer is wrong. Called once before each pipeline run.
func (g *Guard) Verify() error {
	if err := g.Check("GMAIL_FETCH_EMAILS"); err != nil {
		return fmt.Errorf("guard rejected a read-only action: %w", err)
	}
	err := g.Check("GMAIL_SEND_EMAIL")
	if err == nil {
		return fmt.Errorf("guard allowed an outbound action")
	}
	if _, ok := err.(*SendBlockedError); !ok {
		return fmt.Errorf("guard returned wrong error type for outbound action: %w", err)
	}
	return nil
}

// Stats returns the allowed/blocked counters.
func (g *Guard) Stats() (allowed, blocked int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.allowed, g.blocked
}

// Audit returns a copy of the decision log.
func (g *Guard) Audit() []AuditEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]AuditEntry, len(g.audit))
	copy(out, g.audit)
	return out
}

func (g *Guard) record(action string, allowed bool, rule string) {
	g.mu.Lock()
	if allowed {
		g.allowed++
	} else {
		g.blocked++
	}
	g.audit = append(g.audit, AuditEntry{
		Action:    action,
		Allowed:   allowed,
		Rule:      rule,
		CheckedAt: time.Now().UTC(),
	})
	g.mu.Unlock()

	if !allowed && g.logger != nil {
		g.logger.Warn("guard blocked action",
			zap.String("action", action),
			zap.String("rule", rule))
	}
}
