package v1

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/logger"
	"github.com/reliabill/reliabill/internal/service"
	"github.com/reliabill/reliabill/internal/types"
)

type WebhookHandler struct {
	service service.WebhookService
	log     *logger.Logger
}

func NewWebhookHandler(service service.WebhookService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, log: log}
}

// HandleProcessorWebhook ingests one processor delivery. The raw body is
// needed for signature verification, so the payload is never bound to a
// struct here.
func (h *WebhookHandler) HandleProcessorWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Failed to read webhook payload").
			Mark(ierr.ErrValidation))
		return
	}

	signature := c.GetHeader(types.WebhookSignatureHeader)
	if signature == "" {
		c.Error(ierr.NewError("missing webhook signature").
			WithHint("Signature header is required").
			Mark(ierr.ErrInvalidSignature))
		return
	}

	resp, err := h.service.ProcessWebhook(c.Request.Context(), types.ProcessorTypeStripe, payload, signature)
	if err != nil {
		h.log.Errorw("webhook processing failed", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
