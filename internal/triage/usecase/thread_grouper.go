package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	triagedomain "triage-backend/internal/triage/domain"
	"triage-backend/internal/triage/repository"
	"triage-backend/pkg/textutil"
)

// ThreadGrouper derives conversation ids and folds messages into threads.
type ThreadGrouper struct {
	threadRepo repository.ThreadRepository
	logger     *zap.Logger
}

func NewThreadGrouper(threadRepo repository.ThreadRepository, logger *zap.Logger) *ThreadGrouper {
	return &ThreadGrouper{threadRepo: threadRepo, logger: logger}
}

// DeriveThreadID picks the strongest available conversation signal:
// provider thread id, then In-Reply-To, then the first References entry,
// then a normalized-subject key, then the native message id. The derivation
// is deterministic for a given message.
func DeriveThreadID(msg *triagedomain.Message) string {
	if msg.ProviderThreadID != "" {
		return msg.ProviderThreadID
	}
	if ref := strings.Trim(strings.TrimSpace(msg.InReplyTo), "<>"); ref != "" {
		return ref
	}
	for _, ref := range strings.Fields(msg.References) {
		if ref = strings.Trim(ref, "<>"); ref != "" {
			return ref
		}
	}
	if subject := textutil.NormalizeSubject(msg.Subject); subject != "" {
		domain := textutil.ExtractDomain(msg.FromAddress)
		return fmt.Sprintf("subj:%s:%s", subject, domain)
	}
	return msg.MessageID
}

// Group derives the thread id for a message and persists the thread,
// participant, and message updates in one transaction.
func (g *ThreadGrouper) Group(msg *triagedomain.Message) (string, error) {
	threadID := DeriveThreadID(msg)
	participants := participantsFor(msg)
	if err := g.threadRepo.ApplyMessage(msg, threadID, participants); err != nil {
		return "", fmt.Errorf("apply message to thread %s: %w", threadID, err)
	}
	msg.ThreadID = threadID
	g.logger.Debug("message grouped",
		zap.String("message_id", msg.ID),
		zap.String("thread_id", threadID))
	return threadID, nil
}

// participantsFor lists the sender, recipients, and cc addresses of a
// message, deduplicated case-insensitively with the first role winning.
func participantsFor(msg *triagedomain.Message) []triagedomain.ThreadParticipant {
	seen := make(map[string]bool)
	var participants []triagedomain.ThreadParticipant

	add := func(address, name string, role triagedomain.ParticipantRole) {
		address = strings.ToLower(strings.TrimSpace(address))
		if address == "" || seen[address] {
			return
		}
		seen[address] = true
		participants = append(participants, triagedomain.ThreadParticipant{
			Address: address,
			Name:    name,
			Role:    role,
		})
	}

	add(msg.FromAddress, msg.FromName, triagedomain.RoleSender)
	for _, addr := range decodeAddressList(msg.ToAddresses) {
		add(addr, "", triagedomain.RoleRecipient)
	}
	for _, addr := range decodeAddressList(msg.CcAddresses) {
		add(addr, "", triagedomain.RoleCc)
	}
	return participants
}

func decodeAddressList(encoded string) []string {
	if encoded == "" {
		return nil
	}
	var addresses []string
	if err := json.Unmarshal([]byte(encoded), &addresses); err != nil {
		return nil
	}
	return addresses
}
