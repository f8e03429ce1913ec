package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/reliabill/reliabill/internal/api/v1"
	"github.com/reliabill/reliabill/internal/config"
	"github.com/reliabill/reliabill/internal/logger"
	"github.com/reliabill/reliabill/internal/rest/middleware"
)

// Handlers groups the HTTP handlers wired into the router.
type Handlers struct {
	Webhook *v1.WebhookHandler
	Dispute *v1.DisputeHandler
	Admin   *v1.AdminHandler
}

// NewRouter builds the gin engine with the standard middleware chain and all
// routes. The webhook endpoint is unauthenticated (the signature is the
// authentication); the admin surface requires the shared-secret bearer token.
func NewRouter(handlers Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	if cfg.Deployment.Mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.LoggingMiddleware(log),
		middleware.ErrorHandler(log),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/webhooks/stripe", handlers.Webhook.HandleProcessorWebhook)

	apiV1 := router.Group("/v1")

	disputes := apiV1.Group("/disputes")
	{
		disputes.POST("", handlers.Dispute.CreateDispute)
		disputes.GET("/:id", handlers.Dispute.GetDispute)
		disputes.POST("/:id/evidence", handlers.Dispute.SubmitEvidence)
	}

	admin := apiV1.Group("/admin", middleware.AdminAuthMiddleware(cfg.Admin.APISecret))
	{
		admin.POST("/retries/process", handlers.Admin.ProcessRetries)
		admin.POST("/dunning/process", handlers.Admin.ProcessDunning)
		admin.POST("/disputes/:id/advance", handlers.Dispute.AdvanceWorkflow)

		accounts := admin.Group("/accounts")
		{
			accounts.GET("/:id", handlers.Admin.GetAccount)
			accounts.POST("/:id/manual-payment", handlers.Admin.ManualPayment)
			accounts.POST("/:id/reactivate", handlers.Admin.Reactivate)
			accounts.POST("/:id/cancel", handlers.Admin.Cancel)
		}
	}

	return router
}
