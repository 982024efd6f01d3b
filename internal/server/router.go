package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// New builds the HTTP engine with all routes attached.
func New(h *Handler) *gin.Engine {
	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery(), corsMiddleware())

	g.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "ledgerfund"})
	})

	v1 := g.Group("/api/v1")
	{
		proposals := v1.Group("/proposals")
		{
			proposals.GET("", h.GetProposals)
			proposals.GET("/loading", h.GetLoadingStates)
			proposals.POST("/refresh", h.RefreshProposals)
		}

		referrals := v1.Group("/referrals")
		{
			referrals.POST("", h.CreateReferral)
			referrals.GET("", h.GetReferrals)
			referrals.POST("/:id/nft-purchased", h.MarkNFTPurchased)
			referrals.POST("/:id/payment", h.MarkPaymentProcessed)
		}

		transfers := v1.Group("/transfers")
		{
			transfers.POST("", h.WatchTransfer)
			transfers.GET("/:id", h.GetTransfer)
		}
	}

	return g
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
