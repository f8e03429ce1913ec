package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reliabill/reliabill/internal/api/dto"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/logger"
	"github.com/reliabill/reliabill/internal/service"
)

type DisputeHandler struct {
	service service.DisputeService
	log     *logger.Logger
}

func NewDisputeHandler(service service.DisputeService, log *logger.Logger) *DisputeHandler {
	return &DisputeHandler{service: service, log: log}
}

// CreateDispute opens a dispute case against a transaction.
func (h *DisputeHandler) CreateDispute(c *gin.Context) {
	var req dto.CreateDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateDisputeCase(c.Request.Context(), &req)
	if err != nil {
		h.log.Errorw("failed to create dispute case", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetDispute returns a dispute case with its workflow.
func (h *DisputeHandler) GetDispute(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Dispute ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.GetDisputeCase(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SubmitEvidence appends an evidence record to a dispute case.
func (h *DisputeHandler) SubmitEvidence(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Dispute ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	var req dto.SubmitEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.SubmitEvidence(c.Request.Context(), id, &req)
	if err != nil {
		h.log.Errorw("failed to submit dispute evidence", "dispute_id", id, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// AdvanceWorkflow completes the current workflow step.
func (h *DisputeHandler) AdvanceWorkflow(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Dispute ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	workflow, err := h.service.AdvanceWorkflowStep(c.Request.Context(), id)
	if err != nil {
		h.log.Errorw("failed to advance dispute workflow", "dispute_id", id, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, workflow)
}
