package delivery

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	draftdomain "triage-backend/internal/draft/domain"
	draftrepo "triage-backend/internal/draft/repository"
	"triage-backend/internal/sendguard"
)

const testSecret = "test-secret"

type fakeDraftStore struct {
	drafts map[string]*draftdomain.DraftRecord
}

func newFakeDraftStore(drafts ...*draftdomain.DraftRecord) *fakeDraftStore {
	store := &fakeDraftStore{drafts: make(map[string]*draftdomain.DraftRecord)}
	for _, d := range drafts {
		store.drafts[d.ID] = d
	}
	return store
}

func (f *fakeDraftStore) Create(draft *draftdomain.DraftRecord) error {
	draft.Status = draftdomain.DraftStatusPending
	f.drafts[draft.ID] = draft
	return nil
}

func (f *fakeDraftStore) GetByID(id string) (*draftdomain.DraftRecord, error) {
	return f.drafts[id], nil
}

func (f *fakeDraftStore) ListByStatus(status draftdomain.DraftStatus) ([]draftdomain.DraftRecord, error) {
	var out []draftdomain.DraftRecord
	for _, d := range f.drafts {
		if d.Status == status {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDraftStore) ExistsForMessage(messageID string) (bool, error) { return false, nil }

func (f *fakeDraftStore) transition(id string, to draftdomain.DraftStatus) (*draftdomain.DraftRecord, error) {
	draft, ok := f.drafts[id]
	if !ok {
		return nil, fmt.Errorf("draft %s not found", id)
	}
	if !draftdomain.CanTransition(draft.Status, to) {
		return nil, &draftdomain.InvalidTransitionError{From: draft.Status, To: to}
	}
	draft.Status = to
	return draft, nil
}

func (f *fakeDraftStore) Approve(id, approvedBy string) (*draftdomain.DraftRecord, error) {
	draft, err := f.transition(id, draftdomain.DraftStatusApproved)
	if err != nil {
		return nil, err
	}
	draft.ApprovedBy = approvedBy
	return draft, nil
}

func (f *fakeDraftStore) Reject(id, rejectedBy, reason string) (*draftdomain.DraftRecord, error) {
	draft, err := f.transition(id, draftdomain.DraftStatusRejected)
	if err != nil {
		return nil, err
	}
	draft.RejectedBy = rejectedBy
	draft.RejectionReason = reason
	return draft, nil
}

func (f *fakeDraftStore) Edit(id, editedText, editedBy string) (*draftdomain.DraftRecord, error) {
	draft, ok := f.drafts[id]
	if !ok {
		return nil, fmt.Errorf("draft %s not found", id)
	}
	if draft.Status != draftdomain.DraftStatusPending && draft.Status != draftdomain.DraftStatusApproved {
		return nil, fmt.Errorf("draft %s can no longer be edited", id)
	}
	draft.EditedText = editedText
	return draft, nil
}

func (f *fakeDraftStore) Rate(id string, score int, notes string) (*draftdomain.DraftRecord, error) {
	if score < 1 || score > 5 {
		return nil, fmt.Errorf("feedback score must be between 1 and 5")
	}
	draft, ok := f.drafts[id]
	if !ok {
		return nil, fmt.Errorf("draft %s not found", id)
	}
	draft.FeedbackScore = score
	draft.FeedbackNotes = notes
	return draft, nil
}

func (f *fakeDraftStore) MarkSent(id, sentVia string) (*draftdomain.DraftRecord, error) {
	draft, err := f.transition(id, draftdomain.DraftStatusSent)
	if err != nil {
		return nil, err
	}
	draft.SentVia = sentVia
	return draft, nil
}

func (f *fakeDraftStore) History(draftID string) ([]draftdomain.DraftHistoryEntry, error) {
	return []draftdomain.DraftHistoryEntry{{DraftID: draftID, Action: "created"}}, nil
}

type fakeUsageLog struct{ rows []draftrepo.UsageRow }

func (f *fakeUsageLog) Record(log *draftdomain.APICallLog) error { return nil }

func (f *fakeUsageLog) CountSuccessSince(since time.Time) (int64, error) { return 0, nil }

func (f *fakeUsageLog) RecordGeneration(log *draftdomain.DraftGenerationLog) error { return nil }
func (f *fakeUsageLog) LastGenerationFor(senderAddress string, since time.Time) (*draftdomain.DraftGenerationLog, error) {
	return nil, nil
}
func (f *fakeUsageLog) UsageSummary(since time.Time) ([]draftrepo.UsageRow, error) {
	return f.rows, nil
}

func operatorToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestRouter(store *fakeDraftStore, callLog *fakeUsageLog) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewDraftHandler(store, callLog, nil, sendguard.NewGuard(zap.NewNop()))

	r := gin.New()
	protected := r.Group("/api/drafts")
	protected.Use(AuthMiddleware(testSecret))
	{
		protected.GET("", handler.ListDrafts)
		protected.GET("/:id", handler.GetDraftByID)
		protected.GET("/:id/history", handler.GetDraftHistory)
		protected.PUT("/:id", handler.EditDraft)
		protected.POST("/:id/approve", handler.ApproveDraft)
		protected.POST("/:id/reject", handler.RejectDraft)
		protected.POST("/:id/rate", handler.RateDraft)
		protected.POST("/:id/sent", handler.MarkDraftSent)
	}
	ops := r.Group("/api")
	ops.Use(AuthMiddleware(testSecret))
	{
		ops.GET("/usage", handler.GetUsage)
		ops.GET("/guard", handler.GetGuardStats)
	}
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newTestRouter(newFakeDraftStore(), &fakeUsageLog{})

	t.Run("missing header", func(t *testing.T) {
		w := doRequest(t, r, http.MethodGet, "/api/drafts", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/drafts", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"})
		signed, err := token.SignedString([]byte("other-secret"))
		require.NoError(t, err)
		w := doRequest(t, r, http.MethodGet, "/api/drafts", signed, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		w := doRequest(t, r, http.MethodGet, "/api/drafts", operatorToken(t, "alice"), "")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestListDraftsDefaultsToPending(t *testing.T) {
	store := newFakeDraftStore(
		&draftdomain.DraftRecord{ID: "d1", Status: draftdomain.DraftStatusPending},
		&draftdomain.DraftRecord{ID: "d2", Status: draftdomain.DraftStatusApproved},
	)
	r := newTestRouter(store, &fakeUsageLog{})

	w := doRequest(t, r, http.MethodGet, "/api/drafts", operatorToken(t, "alice"), "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Drafts []draftdomain.DraftRecord `json:"drafts"`
		Total  int                       `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, "d1", body.Drafts[0].ID)
}

func TestGetDraftByIDNotFound(t *testing.T) {
	r := newTestRouter(newFakeDraftStore(), &fakeUsageLog{})
	w := doRequest(t, r, http.MethodGet, "/api/drafts/missing", operatorToken(t, "alice"), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApproveDraft(t *testing.T) {
	store := newFakeDraftStore(&draftdomain.DraftRecord{ID: "d1", Status: draftdomain.DraftStatusPending})
	r := newTestRouter(store, &fakeUsageLog{})

	w := doRequest(t, r, http.MethodPost, "/api/drafts/d1/approve", operatorToken(t, "alice"), "")
	require.Equal(t, http.StatusOK, w.Code)

	var draft draftdomain.DraftRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &draft))
	assert.Equal(t, draftdomain.DraftStatusApproved, draft.Status)
	// operator identity comes from the token's sub claim
	assert.Equal(t, "alice", draft.ApprovedBy)
}

func TestApproveRejectedDraftConflicts(t *testing.T) {
	store := newFakeDraftStore(&draftdomain.DraftRecord{ID: "d1", Status: draftdomain.DraftStatusRejected})
	r := newTestRouter(store, &fakeUsageLog{})

	w := doRequest(t, r, http.MethodPost, "/api/drafts/d1/approve", operatorToken(t, "alice"), "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApproveMissingDraftNotFound(t *testing.T) {
	r := newTestRouter(newFakeDraftStore(), &fakeUsageLog{})
	w := doRequest(t, r, http.MethodPost, "/api/drafts/nope/approve", operatorToken(t, "alice"), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRejectDraftRecordsReason(t *testing.T) {
	store := newFakeDraftStore(&draftdomain.DraftRecord{ID: "d1", Status: draftdomain.DraftStatusPending})
	r := newTestRouter(store, &fakeUsageLog{})

	w := doRequest(t, r, http.MethodPost, "/api/drafts/d1/reject", operatorToken(t, "bob"), `{"reason":"too formal"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, draftdomain.DraftStatusRejected, store.drafts["d1"].Status)
	assert.Equal(t, "too formal", store.drafts["d1"].RejectionReason)
	assert.Equal(t, "bob", store.drafts["d1"].RejectedBy)
}

func TestEditDraftRequiresText(t *testing.T) {
	store := newFakeDraftStore(&draftdomain.DraftRecord{ID: "d1", Status: draftdomain.DraftStatusPending})
	r := newTestRouter(store, &fakeUsageLog{})

	w := doRequest(t, r, http.MethodPut, "/api/drafts/d1", operatorToken(t, "alice"), `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, http.MethodPut, "/api/drafts/d1", operatorToken(t, "alice"), `{"text":"revised reply"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "revised reply", store.drafts["d1"].EditedText)
}

func TestRateDraftValidatesScore(t *testing.T) {
	store := newFakeDraftStore(&draftdomain.DraftRecord{ID: "d1", Status: draftdomain.DraftStatusPending})
	r := newTestRouter(store, &fakeUsageLog{})

	w := doRequest(t, r, http.MethodPost, "/api/drafts/d1/rate", operatorToken(t, "alice"), `{"score":9}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, http.MethodPost, "/api/drafts/d1/rate", operatorToken(t, "alice"), `{"score":4,"notes":"solid"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, store.drafts["d1"].FeedbackScore)
}

func TestMarkSentOnlyFromApproved(t *testing.T) {
	store := newFakeDraftStore(
		&draftdomain.DraftRecord{ID: "d1", Status: draftdomain.DraftStatusApproved},
		&draftdomain.DraftRecord{ID: "d2", Status: draftdomain.DraftStatusPending},
	)
	r := newTestRouter(store, &fakeUsageLog{})
	token := operatorToken(t, "alice")

	w := doRequest(t, r, http.MethodPost, "/api/drafts/d1/sent", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, draftdomain.DraftStatusSent, store.drafts["d1"].Status)
	assert.Equal(t, "manual", store.drafts["d1"].SentVia)

	w = doRequest(t, r, http.MethodPost, "/api/drafts/d2/sent", token, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetUsage(t *testing.T) {
	callLog := &fakeUsageLog{rows: []draftrepo.UsageRow{{Service: "gemini", Calls: 3, TokensUsed: 450}}}
	r := newTestRouter(newFakeDraftStore(), callLog)
	token := operatorToken(t, "alice")

	w := doRequest(t, r, http.MethodGet, "/api/usage?hours=6", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"window_hours":6`)
	assert.Contains(t, w.Body.String(), `"gemini"`)

	w = doRequest(t, r, http.MethodGet, "/api/usage?hours=0", token, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetGuardStats(t *testing.T) {
	r := newTestRouter(newFakeDraftStore(), &fakeUsageLog{})
	w := doRequest(t, r, http.MethodGet, "/api/guard", operatorToken(t, "alice"), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed"`)
	assert.Contains(t, w.Body.String(), `"blocked"`)
}
