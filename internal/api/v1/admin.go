package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reliabill/reliabill/internal/api/dto"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/logger"
	"github.com/reliabill/reliabill/internal/service"
)

// AdminHandler exposes the operational surface behind the shared-secret
// bearer token: manual scheduler triggers and account lifecycle actions.
type AdminHandler struct {
	billing  service.BillingService
	failures service.PaymentFailureService
	dunning  service.DunningService
	log      *logger.Logger
}

func NewAdminHandler(
	billing service.BillingService,
	failures service.PaymentFailureService,
	dunning service.DunningService,
	log *logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		billing:  billing,
		failures: failures,
		dunning:  dunning,
		log:      log,
	}
}

// ProcessRetries runs the retry scheduler tick synchronously.
func (h *AdminHandler) ProcessRetries(c *gin.Context) {
	processed, err := h.failures.ProcessRetryAttempts(c.Request.Context())
	if err != nil {
		h.log.Errorw("manual retry processing failed", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.ProcessRunResponse{
		Processed:   processed,
		CompletedAt: time.Now().UTC(),
	})
}

// ProcessDunning runs the dunning step scan synchronously.
func (h *AdminHandler) ProcessDunning(c *gin.Context) {
	executed, err := h.dunning.ProcessDunningSteps(c.Request.Context())
	if err != nil {
		h.log.Errorw("manual dunning processing failed", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.ProcessRunResponse{
		Processed:   executed,
		CompletedAt: time.Now().UTC(),
	})
}

// GetAccount returns a billing account.
func (h *AdminHandler) GetAccount(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Billing account ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	account, err := h.billing.GetAccount(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.BillingAccountResponse{BillingAccount: account})
}

// ManualPayment resolves the account's open payment failure out of band.
func (h *AdminHandler) ManualPayment(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Billing account ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	failure, err := h.billing.ManualPayment(c.Request.Context(), id)
	if err != nil {
		h.log.Errorw("manual payment resolution failed", "billing_account_id", id, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.PaymentFailureResponse{PaymentFailure: failure})
}

// Reactivate moves a suspended account back to active.
func (h *AdminHandler) Reactivate(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Billing account ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	account, err := h.billing.Reactivate(c.Request.Context(), id)
	if err != nil {
		h.log.Errorw("account reactivation failed", "billing_account_id", id, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.BillingAccountResponse{BillingAccount: account})
}

// Cancel cancels the account and its processor-side subscription.
func (h *AdminHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Billing account ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	if err := h.billing.Cancel(c.Request.Context(), id, true); err != nil {
		h.log.Errorw("account cancellation failed", "billing_account_id", id, "error", err)
		c.Error(err)
		return
	}

	account, err := h.billing.GetAccount(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.BillingAccountResponse{BillingAccount: account})
}
