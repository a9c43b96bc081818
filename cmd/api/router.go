package api

import (
	"net/http"

	"triage-backend/internal/draft/delivery"
	"triage-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config, draftHandler *delivery.DraftHandler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Draft review routes (protected)
		drafts := api.Group("/drafts")
		drafts.Use(delivery.AuthMiddleware(cfg.JWTSecret))
		{
			drafts.GET("", draftHandler.ListDrafts)
			drafts.GET("/:id", draftHandler.GetDraftByID)
			drafts.GET("/:id/history", draftHandler.GetDraftHistory)
			drafts.PUT("/:id", draftHandler.EditDraft)
			drafts.POST("/:id/approve", draftHandler.ApproveDraft)
			drafts.POST("/:id/reject", draftHandler.RejectDraft)
			drafts.POST("/:id/rate", draftHandler.RateDraft)
			drafts.POST("/:id/sent", draftHandler.MarkDraftSent)
		}

		// Operational routes (protected)
		ops := api.Group("")
		ops.Use(delivery.AuthMiddleware(cfg.JWTSecret))
		{
			ops.GET("/usage", draftHandler.GetUsage)
			ops.GET("/guard", draftHandler.GetGuardStats)
			ops.POST("/runs", draftHandler.TriggerRun)
			ops.POST("/profiles/rebuild", draftHandler.RebuildProfiles)
		}
	}
}
