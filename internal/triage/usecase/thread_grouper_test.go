package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	triagedomain "triage-backend/internal/triage/domain"
)

type fakeThreadRepo struct {
	applied      []string
	participants [][]triagedomain.ThreadParticipant
	err          error
}

func (f *fakeThreadRepo) GetByID(threadID string) (*triagedomain.Thread, error) { return nil, nil }

func (f *fakeThreadRepo) ApplyMessage(message *triagedomain.Message, threadID string, participants []triagedomain.ThreadParticipant) error {
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, threadID)
	f.participants = append(f.participants, participants)
	return nil
}

func (f *fakeThreadRepo) ListParticipants(threadID string) ([]triagedomain.ThreadParticipant, error) {
	return nil, nil
}

func (f *fakeThreadRepo) ListRecent(limit int) ([]triagedomain.Thread, error) { return nil, nil }

func TestDeriveThreadID(t *testing.T) {
	tests := []struct {
		name string
		msg  triagedomain.Message
		want string
	}{
		{
			name: "provider thread id wins",
			msg: triagedomain.Message{
				ProviderThreadID: "gmail-thread-7",
				InReplyTo:        "<parent@example.com>",
				Subject:          "Re: budget",
			},
			want: "gmail-thread-7",
		},
		{
			name: "in-reply-to next, angle brackets stripped",
			msg: triagedomain.Message{
				InReplyTo:  "<parent@example.com>",
				References: "<root@example.com> <parent@example.com>",
			},
			want: "parent@example.com",
		},
		{
			name: "first references entry next",
			msg: triagedomain.Message{
				References: "<root@example.com> <parent@example.com>",
			},
			want: "root@example.com",
		},
		{
			name: "subject key as fallback",
			msg: triagedomain.Message{
				Subject:     "Re: Quarterly Budget",
				FromAddress: "cfo@company.com",
				MessageID:   "native-1",
			},
			want: "subj:quarterly budget:company.com",
		},
		{
			name: "native message id as last resort",
			msg: triagedomain.Message{
				Subject:   "Re:",
				MessageID: "native-1",
			},
			want: "native-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveThreadID(&tt.msg))
		})
	}
}

func TestDeriveThreadIDStableAcrossReplies(t *testing.T) {
	original := triagedomain.Message{
		Subject:     "Quarterly Budget",
		FromAddress: "cfo@company.com",
	}
	reply := triagedomain.Message{
		Subject:     "Re: Quarterly Budget",
		FromAddress: "analyst@company.com",
	}
	assert.Equal(t, DeriveThreadID(&original), DeriveThreadID(&reply))
}

func TestGroupStampsThreadID(t *testing.T) {
	repo := &fakeThreadRepo{}
	g := NewThreadGrouper(repo, zap.NewNop())

	msg := &triagedomain.Message{
		ID:               "gmail_work_1",
		ProviderThreadID: "t-9",
		FromAddress:      "alice@example.com",
		FromName:         "Alice",
		ToAddresses:      `["bob@example.com","Alice@example.com"]`,
		CcAddresses:      `["carol@example.com"]`,
	}

	threadID, err := g.Group(msg)
	require.NoError(t, err)
	assert.Equal(t, "t-9", threadID)
	assert.Equal(t, "t-9", msg.ThreadID)

	require.Len(t, repo.participants, 1)
	participants := repo.participants[0]
	// sender deduplicates against her own recipient entry
	require.Len(t, participants, 3)
	assert.Equal(t, triagedomain.RoleSender, participants[0].Role)
	assert.Equal(t, "alice@example.com", participants[0].Address)
	assert.Equal(t, triagedomain.RoleRecipient, participants[1].Role)
	assert.Equal(t, "bob@example.com", participants[1].Address)
	assert.Equal(t, triagedomain.RoleCc, participants[2].Role)
}
