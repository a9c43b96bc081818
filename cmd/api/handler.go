package api

import (
	"triage-backend/internal/draft/delivery"
	"triage-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	config       *config.Config
	draftHandler *delivery.DraftHandler
}

func NewHandler(cfg *config.Config, draftHandler *delivery.DraftHandler) *Handler {
	return &Handler{
		config:       cfg,
		draftHandler: draftHandler,
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Setup routes
	SetupRoutes(r, h.config, h.draftHandler)

	return r.Run(addr)
}
