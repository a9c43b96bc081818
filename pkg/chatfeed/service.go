// Package chatfeed reads chat messages from a JSON export feed. The host's
// message store (Apple's chat.db) is only readable on the host itself, so an
// exporter on that machine writes the feed this adapter consumes.
package chatfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"triage-backend/internal/sendguard"
)

// Service is a read-only chat fetch adapter. Every fetch passes its action
// descriptor through the send guard first.
type Service struct {
	path   string
	guard  *sendguard.Guard
	logger *zap.Logger
}

func NewService(path string, guard *sendguard.Guard, logger *zap.Logger) *Service {
	return &Service{
		path:   path,
		guard:  guard,
		logger: logger,
	}
}

// Fetch reads the newest limit messages from the feed as raw payloads. The
// feed is a JSON array ordered oldest first, matching the exporter's output.
func (s *Service) Fetch(ctx context.Context, accountID string, limit int) ([]map[string]interface{}, error) {
	if err := s.guard.Check("CHAT_FETCH_MESSAGES"); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("chat feed read %s: %w", s.path, err)
	}

	var payloads []map[string]interface{}
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, fmt.Errorf("chat feed parse %s: %w", s.path, err)
	}

	if limit > 0 && len(payloads) > limit {
		payloads = payloads[len(payloads)-limit:]
	}

	s.logger.Info("fetched chat messages",
		zap.String("account_id", accountID),
		zap.Int("count", len(payloads)))
	return payloads, nil
}
