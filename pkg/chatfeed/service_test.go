package chatfeed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"triage-backend/internal/sendguard"
)

func writeFeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFetchReadsFeed(t *testing.T) {
	path := writeFeed(t, `[
		{"guid": "g1", "text": "first", "sender": "+15550001111", "chat": "chat1"},
		{"guid": "g2", "text": "second", "sender": "+15550001111", "chat": "chat1"}
	]`)
	svc := NewService(path, sendguard.NewGuard(zap.NewNop()), zap.NewNop())

	payloads, err := svc.Fetch(context.Background(), "phone", 50)
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	assert.Equal(t, "g1", payloads[0]["guid"])
	assert.Equal(t, "second", payloads[1]["text"])
}

func TestFetchKeepsNewestWithinLimit(t *testing.T) {
	path := writeFeed(t, `[
		{"guid": "g1"}, {"guid": "g2"}, {"guid": "g3"}
	]`)
	svc := NewService(path, sendguard.NewGuard(zap.NewNop()), zap.NewNop())

	payloads, err := svc.Fetch(context.Background(), "phone", 2)
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	// the feed is oldest first, so the tail holds the newest entries
	assert.Equal(t, "g2", payloads[0]["guid"])
	assert.Equal(t, "g3", payloads[1]["guid"])
}

func TestFetchMissingFeedFails(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "absent.json"), sendguard.NewGuard(zap.NewNop()), zap.NewNop())

	_, err := svc.Fetch(context.Background(), "phone", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat feed read")
}

func TestFetchMalformedFeedFails(t *testing.T) {
	path := writeFeed(t, `{"not": "an array"}`)
	svc := NewService(path, sendguard.NewGuard(zap.NewNop()), zap.NewNop())

	_, err := svc.Fetch(context.Background(), "phone", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat feed parse")
}
