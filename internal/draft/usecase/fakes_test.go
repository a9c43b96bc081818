package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	draftdomain "triage-backend/internal/draft/domain"
	"triage-backend/internal/draft/repository"
	triagedomain "triage-backend/internal/triage/domain"
)

type fakeMessageRepo struct {
	bySender map[string][]triagedomain.Message
}

func (f *fakeMessageRepo) Save(message *triagedomain.Message) error        { return nil }
func (f *fakeMessageRepo) GetByID(id string) (*triagedomain.Message, error) { return nil, nil }
func (f *fakeMessageRepo) FindByFingerprint(fingerprint string) (*triagedomain.Message, error) {
	return nil, nil
}

func (f *fakeMessageRepo) ListBySender(address string, limit int) ([]triagedomain.Message, error) {
	messages := f.bySender[strings.ToLower(address)]
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (f *fakeMessageRepo) ListCandidates(minPriority int) ([]triagedomain.Message, error) {
	return nil, nil
}
func (f *fakeMessageRepo) ListStaleUnread(before time.Time, minPriority int) ([]triagedomain.Message, error) {
	return nil, nil
}
func (f *fakeMessageRepo) SetThreadID(messageID, threadID string) error { return nil }
func (f *fakeMessageRepo) UpdateTriage(messageID string, score int, priority triagedomain.PriorityCategory, category triagedomain.Category) error {
	return nil
}
func (f *fakeMessageRepo) ListAll() ([]triagedomain.Message, error) { return nil, nil }

type fakeProfileRepo struct {
	profiles map[string]*triagedomain.SenderProfile
}

func (f *fakeProfileRepo) GetByAddress(address string) (*triagedomain.SenderProfile, error) {
	return f.profiles[strings.ToLower(address)], nil
}

func (f *fakeProfileRepo) ApplyMessage(address, displayName string, receivedAt time.Time, priorityScore int, relationship triagedomain.RelationshipType) error {
	return nil
}
func (f *fakeProfileRepo) Save(profile *triagedomain.SenderProfile) error { return nil }
func (f *fakeProfileRepo) DeleteAll() error                               { return nil }
func (f *fakeProfileRepo) ListAll() ([]triagedomain.SenderProfile, error) { return nil, nil }

type fakeCallLog struct {
	calls       []draftdomain.APICallLog
	generations []draftdomain.DraftGenerationLog
}

func (f *fakeCallLog) Record(log *draftdomain.APICallLog) error {
	f.calls = append(f.calls, *log)
	return nil
}

func (f *fakeCallLog) CountSuccessSince(since time.Time) (int64, error) {
	var count int64
	for _, call := range f.calls {
		if call.Success && call.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeCallLog) RecordGeneration(log *draftdomain.DraftGenerationLog) error {
	f.generations = append(f.generations, *log)
	return nil
}

func (f *fakeCallLog) LastGenerationFor(senderAddress string, since time.Time) (*draftdomain.DraftGenerationLog, error) {
	for i := len(f.generations) - 1; i >= 0; i-- {
		g := f.generations[i]
		if g.SenderAddress == strings.ToLower(senderAddress) && g.GeneratedAt.After(since) {
			return &g, nil
		}
	}
	return nil, nil
}

func (f *fakeCallLog) UsageSummary(since time.Time) ([]repository.UsageRow, error) {
	totals := make(map[string]*repository.UsageRow)
	var order []string
	for _, call := range f.calls {
		if !call.Success || !call.CreatedAt.After(since) {
			continue
		}
		row, ok := totals[call.Service]
		if !ok {
			row = &repository.UsageRow{Service: call.Service}
			totals[call.Service] = row
			order = append(order, call.Service)
		}
		row.Calls++
		row.TokensUsed += int64(call.TokensUsed)
		row.CostUSD += call.CostUSD
	}
	out := make([]repository.UsageRow, 0, len(order))
	for _, service := range order {
		out = append(out, *totals[service])
	}
	return out, nil
}

type fakeDraftRepo struct {
	created   []draftdomain.DraftRecord
	existing  map[string]bool
	createErr error
}

func (f *fakeDraftRepo) Create(draft *draftdomain.DraftRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	draft.Status = draftdomain.DraftStatusPending
	f.created = append(f.created, *draft)
	return nil
}

func (f *fakeDraftRepo) GetByID(id string) (*draftdomain.DraftRecord, error) { return nil, nil }
func (f *fakeDraftRepo) ListByStatus(status draftdomain.DraftStatus) ([]draftdomain.DraftRecord, error) {
	return nil, nil
}

func (f *fakeDraftRepo) ExistsForMessage(messageID string) (bool, error) {
	return f.existing[messageID], nil
}

func (f *fakeDraftRepo) Approve(id, approvedBy string) (*draftdomain.DraftRecord, error) {
	return nil, nil
}
func (f *fakeDraftRepo) Reject(id, rejectedBy, reason string) (*draftdomain.DraftRecord, error) {
	return nil, nil
}
func (f *fakeDraftRepo) Edit(id, editedText, editedBy string) (*draftdomain.DraftRecord, error) {
	return nil, nil
}
func (f *fakeDraftRepo) Rate(id string, score int, notes string) (*draftdomain.DraftRecord, error) {
	return nil, nil
}
func (f *fakeDraftRepo) MarkSent(id, sentVia string) (*draftdomain.DraftRecord, error) {
	return nil, nil
}
func (f *fakeDraftRepo) History(draftID string) ([]draftdomain.DraftHistoryEntry, error) {
	return nil, nil
}

type fakeModel struct {
	reply string
	err   error
	calls int
}

func (f *fakeModel) GenerateDraft(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.reply == "" {
		return "", errors.New("model returned empty draft")
	}
	return f.reply, nil
}

func (f *fakeModel) ModelName() string { return "fake:test" }
