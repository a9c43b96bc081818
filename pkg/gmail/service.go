package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"triage-backend/internal/sendguard"
)

// TokenUpdateFunc is a callback invoked when the oauth token is refreshed,
// so a caller can persist the new token.
type TokenUpdateFunc func(*oauth2.Token) error

// Service is a read-only Gmail fetch adapter. Every operation passes its
// action descriptor through the send guard before touching the API; the
// adapter exposes nothing that could send.
type Service struct {
	clientID     string
	clientSecret string
	accessToken  string
	refreshToken string
	guard        *sendguard.Guard
	logger       *zap.Logger

	onTokenRefresh TokenUpdateFunc
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
	logger   *zap.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			s.logger.Warn("failed to persist refreshed token", zap.Error(err))
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret, accessToken, refreshToken string, guard *sendguard.Guard, logger *zap.Logger) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		guard:        guard,
		logger:       logger,
	}
}

// OnTokenRefresh registers a persistence callback for refreshed tokens.
func (s *Service) OnTokenRefresh(fn TokenUpdateFunc) {
	s.onTokenRefresh = fn
}

// getGmailService builds a Gmail client around the account's oauth token.
func (s *Service) getGmailService(ctx context.Context) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if s.refreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: s.onTokenRefresh,
		logger:   s.logger,
	}

	client := oauth2.NewClient(ctx, wrappedSource)
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}
	return srv, nil
}

// Fetch retrieves up to limit inbox messages as raw API-shaped payloads.
// Fetching is read-only and safe to repeat.
func (s *Service) Fetch(ctx context.Context, accountID string, limit int) ([]map[string]interface{}, error) {
	if err := s.guard.Check("GMAIL_FETCH_EMAILS"); err != nil {
		return nil, err
	}

	srv, err := s.getGmailService(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}

	listResp, err := srv.Users.Messages.List("me").
		Q("in:inbox").
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list messages: %v", err)
	}

	payloads := make([]map[string]interface{}, 0, len(listResp.Messages))
	for _, ref := range listResp.Messages {
		if err := s.guard.Check("GMAIL_GET_MESSAGE"); err != nil {
			return nil, err
		}
		msg, err := srv.Users.Messages.Get("me", ref.Id).
			Format("full").
			Context(ctx).
			Do()
		if err != nil {
			s.logger.Warn("failed to fetch message",
				zap.String("account_id", accountID),
				zap.String("message_id", ref.Id),
				zap.Error(err))
			continue
		}

		raw, err := messageToMap(msg)
		if err != nil {
			s.logger.Warn("failed to decode message",
				zap.String("message_id", ref.Id),
				zap.Error(err))
			continue
		}
		payloads = append(payloads, raw)
	}

	s.logger.Info("fetched gmail messages",
		zap.String("account_id", accountID),
		zap.Int("count", len(payloads)))
	return payloads, nil
}

// messageToMap round-trips the typed API message through JSON so the
// normalizer sees the exact wire shape.
func messageToMap(msg *gmail.Message) (map[string]interface{}, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
