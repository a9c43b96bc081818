package delivery

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	draftdomain "triage-backend/internal/draft/domain"
	draftrepo "triage-backend/internal/draft/repository"
	"triage-backend/internal/sendguard"
	triageusecase "triage-backend/internal/triage/usecase"

	"github.com/gin-gonic/gin"
)

// DraftHandler serves the draft review API.
type DraftHandler struct {
	drafts   draftrepo.DraftRepository
	callLog  draftrepo.CallLogRepository
	pipeline *triageusecase.Pipeline
	guard    *sendguard.Guard
}

func NewDraftHandler(drafts draftrepo.DraftRepository, callLog draftrepo.CallLogRepository, pipeline *triageusecase.Pipeline, guard *sendguard.Guard) *DraftHandler {
	return &DraftHandler{
		drafts:   drafts,
		callLog:  callLog,
		pipeline: pipeline,
		guard:    guard,
	}
}

// ListDrafts returns drafts in the requested status, pending by default.
// GET /api/drafts?status=pending
func (h *DraftHandler) ListDrafts(c *gin.Context) {
	status := draftdomain.DraftStatus(c.DefaultQuery("status", string(draftdomain.DraftStatusPending)))

	drafts, err := h.drafts.ListByStatus(status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"drafts": drafts,
		"total":  len(drafts),
	})
}

// GetDraftByID returns a single draft.
// GET /api/drafts/:id
func (h *DraftHandler) GetDraftByID(c *gin.Context) {
	draft, err := h.drafts.GetByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if draft == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Draft not found"})
		return
	}

	c.JSON(http.StatusOK, draft)
}

// GetDraftHistory returns the audit trail for a draft.
// GET /api/drafts/:id/history
func (h *DraftHandler) GetDraftHistory(c *gin.Context) {
	entries, err := h.drafts.History(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// ApproveDraft moves a pending draft to approved.
// POST /api/drafts/:id/approve
func (h *DraftHandler) ApproveDraft(c *gin.Context) {
	draft, err := h.drafts.Approve(c.Param("id"), c.GetString("operator"))
	if err != nil {
		respondTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, draft)
}

// RejectDraftRequest carries the optional rejection reason.
type RejectDraftRequest struct {
	Reason string `json:"reason"`
}

// RejectDraft moves a pending draft to rejected.
// POST /api/drafts/:id/reject
func (h *DraftHandler) RejectDraft(c *gin.Context) {
	var req RejectDraftRequest
	_ = c.ShouldBindJSON(&req)

	draft, err := h.drafts.Reject(c.Param("id"), c.GetString("operator"), req.Reason)
	if err != nil {
		respondTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, draft)
}

// EditDraftRequest carries the operator's replacement text.
type EditDraftRequest struct {
	Text string `json:"text" binding:"required"`
}

// EditDraft stores operator-edited text alongside the generated text.
// PUT /api/drafts/:id
func (h *DraftHandler) EditDraft(c *gin.Context) {
	var req EditDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft, err := h.drafts.Edit(c.Param("id"), req.Text, c.GetString("operator"))
	if err != nil {
		respondTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, draft)
}

// RateDraftRequest carries operator feedback on draft quality.
type RateDraftRequest struct {
	Score int    `json:"score" binding:"required"`
	Notes string `json:"notes"`
}

// RateDraft records a 1-5 feedback score.
// POST /api/drafts/:id/rate
func (h *DraftHandler) RateDraft(c *gin.Context) {
	var req RateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft, err := h.drafts.Rate(c.Param("id"), req.Score, req.Notes)
	if err != nil {
		if strings.Contains(err.Error(), "between 1 and 5") {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respondTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, draft)
}

// MarkDraftSent records that the operator sent an approved draft outside
// the system. Nothing is transmitted here.
// POST /api/drafts/:id/sent
func (h *DraftHandler) MarkDraftSent(c *gin.Context) {
	draft, err := h.drafts.MarkSent(c.Param("id"), "manual")
	if err != nil {
		respondTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, draft)
}

// GetUsage returns per-service API usage over a trailing window.
// GET /api/usage?hours=24
func (h *DraftHandler) GetUsage(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive integer"})
		return
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	rows, err := h.callLog.UsageSummary(since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"window_hours": hours,
		"services":     rows,
	})
}

// TriggerRun starts one pipeline run and returns its report.
// POST /api/runs
func (h *DraftHandler) TriggerRun(c *gin.Context) {
	report, err := h.pipeline.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// RebuildProfiles replays stored messages into fresh sender profiles.
// POST /api/profiles/rebuild
func (h *DraftHandler) RebuildProfiles(c *gin.Context) {
	replayed, err := h.pipeline.RebuildSenderProfiles()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages_replayed": replayed})
}

// GetGuardStats exposes the send guard's counters and audit log.
// GET /api/guard
func (h *DraftHandler) GetGuardStats(c *gin.Context) {
	allowed, blocked := h.guard.Stats()
	c.JSON(http.StatusOK, gin.H{
		"allowed": allowed,
		"blocked": blocked,
		"audit":   h.guard.Audit(),
	})
}

func respondTransitionError(c *gin.Context, err error) {
	var invalid *draftdomain.InvalidTransitionError
	if errors.As(err, &invalid) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if strings.Contains(err.Error(), "not found") {
		c.JSON(http.StatusNotFound, gin.H{"error": "Draft not found"})
		return
	}
	if strings.Contains(err.Error(), "can no longer be") {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
