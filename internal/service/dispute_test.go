package service

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/reliabill/reliabill/internal/api/dto"
	"github.com/reliabill/reliabill/internal/domain/dispute"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/testutil"
	"github.com/reliabill/reliabill/internal/types"
)

type DisputeServiceTestSuite struct {
	testutil.BaseServiceTestSuite
	service DisputeService
}

func TestDisputeService(t *testing.T) {
	suite.Run(t, new(DisputeServiceTestSuite))
}

func (s *DisputeServiceTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewDisputeService(newTestParams(&s.BaseServiceTestSuite))
}

func (s *DisputeServiceTestSuite) newCase(amount string, respondBy time.Time) *dto.DisputeCaseResponse {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_dispute_"+amount)
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusActive)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusCompleted, "pi_disp_"+amount)

	resp, err := s.service.CreateDisputeCase(ctx, &dto.CreateDisputeRequest{
		TransactionID: txn.ID,
		DisputeType:   types.DisputeTypeChargeback,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "usd",
		EvidenceRequired: []types.EvidenceType{
			types.EvidenceTypeReceipt,
			types.EvidenceTypeCustomerComms,
		},
		RespondByDate: respondBy,
	})
	s.Require().NoError(err)
	return resp
}

func (s *DisputeServiceTestSuite) TestCreateDisputeCase() {
	respondBy := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(time.Second)
	resp := s.newCase("1500", respondBy)

	s.True(strings.HasPrefix(resp.CaseNumber, "DSP-"))
	s.Equal(types.DisputePriorityHigh, resp.Priority)
	s.Equal(types.DisputeStatusEvidenceRequired, resp.DisputeStatus)
	s.Empty(resp.EvidenceSubmitted)

	// The standard workflow: collection a day early, review 12 hours early,
	// submission at the deadline.
	s.Require().NotNil(resp.Workflow)
	s.Require().Len(resp.Workflow.Steps, 3)
	s.Equal(types.WorkflowStepEvidenceCollection, resp.Workflow.CurrentStep)
	s.Equal(respondBy.Add(-24*time.Hour), resp.Workflow.Steps[0].DueDate)
	s.Equal(respondBy.Add(-12*time.Hour), resp.Workflow.Steps[1].DueDate)
	s.Equal(respondBy, resp.Workflow.Steps[2].DueDate)

	// The account owner is told a dispute exists.
	s.Equal([]string{"dispute_opened"}, s.GetNotifier().EmailTemplates())
}

func (s *DisputeServiceTestSuite) TestCreateDisputePriorityFromAmount() {
	respondBy := time.Now().UTC().Add(5 * 24 * time.Hour)
	s.Equal(types.DisputePriorityMedium, s.newCase("750", respondBy).Priority)
	s.Equal(types.DisputePriorityLow, s.newCase("100", respondBy).Priority)
}

func (s *DisputeServiceTestSuite) TestCreateDisputeUnknownTransaction() {
	_, err := s.service.CreateDisputeCase(s.GetContext(), &dto.CreateDisputeRequest{
		TransactionID: "txn_missing",
		DisputeType:   types.DisputeTypeChargeback,
		Amount:        decimal.NewFromInt(100),
		Currency:      "usd",
		RespondByDate: time.Now().UTC().Add(24 * time.Hour),
	})
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *DisputeServiceTestSuite) TestSubmitEvidenceDoesNotAdvanceWorkflow() {
	resp := s.newCase("600", time.Now().UTC().Add(6*24*time.Hour))
	ctx := s.GetContext()

	evidence, err := s.service.SubmitEvidence(ctx, resp.ID, &dto.SubmitEvidenceRequest{
		Type:        types.EvidenceTypeReceipt,
		Description: "Signed receipt",
		FileURL:     "https://files.example.com/receipt.pdf",
	})
	s.NoError(err)
	s.NotEmpty(evidence.ID)
	s.WithinDuration(time.Now().UTC(), evidence.SubmittedAt, time.Minute)

	fetched, err := s.service.GetDisputeCase(ctx, resp.ID)
	s.NoError(err)
	s.Len(fetched.EvidenceSubmitted, 1)

	// Evidence submission is bookkeeping only; the step stays where it was.
	s.Equal(types.WorkflowStepEvidenceCollection, fetched.Workflow.CurrentStep)
}

func (s *DisputeServiceTestSuite) TestSubmitEvidenceKeepsEveryRecord() {
	resp := s.newCase("450", time.Now().UTC().Add(5*24*time.Hour))
	ctx := s.GetContext()

	_, err := s.service.SubmitEvidence(ctx, resp.ID, &dto.SubmitEvidenceRequest{
		Type:        types.EvidenceTypeReceipt,
		Description: "Signed receipt",
	})
	s.NoError(err)
	_, err = s.service.SubmitEvidence(ctx, resp.ID, &dto.SubmitEvidenceRequest{
		Type:        types.EvidenceTypeCustomerComms,
		Description: "Support thread export",
	})
	s.NoError(err)

	fetched, err := s.service.GetDisputeCase(ctx, resp.ID)
	s.NoError(err)
	s.Len(fetched.EvidenceSubmitted, 2)
}

func (s *DisputeServiceTestSuite) TestStaleCaseWriteRejected() {
	resp := s.newCase("200", time.Now().UTC().Add(3*24*time.Hour))
	ctx := s.GetContext()
	repo := s.GetStores().DisputeRepo

	first, err := repo.GetCase(ctx, resp.ID)
	s.Require().NoError(err)
	stale, err := repo.GetCase(ctx, resp.ID)
	s.Require().NoError(err)

	first.EvidenceSubmitted = append(first.EvidenceSubmitted, dispute.DisputeEvidence{
		ID:          "ev_first",
		Type:        types.EvidenceTypeReceipt,
		SubmittedAt: time.Now().UTC(),
	})
	s.NoError(repo.UpdateCase(ctx, first))

	// The write carrying the outdated version loses instead of clobbering the
	// record the first write appended.
	stale.EvidenceSubmitted = append(stale.EvidenceSubmitted, dispute.DisputeEvidence{
		ID:          "ev_stale",
		Type:        types.EvidenceTypeCustomerComms,
		SubmittedAt: time.Now().UTC(),
	})
	err = repo.UpdateCase(ctx, stale)
	s.Error(err)
	s.True(ierr.IsConflict(err))

	fetched, err := repo.GetCase(ctx, resp.ID)
	s.NoError(err)
	s.Require().Len(fetched.EvidenceSubmitted, 1)
	s.Equal("ev_first", fetched.EvidenceSubmitted[0].ID)
}

func (s *DisputeServiceTestSuite) TestStaleWorkflowWriteRejected() {
	resp := s.newCase("250", time.Now().UTC().Add(3*24*time.Hour))
	ctx := s.GetContext()
	repo := s.GetStores().DisputeRepo

	current, err := repo.GetWorkflowByDisputeID(ctx, resp.ID)
	s.Require().NoError(err)
	stale, err := repo.GetWorkflowByDisputeID(ctx, resp.ID)
	s.Require().NoError(err)

	s.True(current.CompleteCurrentStep(time.Now()))
	s.NoError(repo.UpdateWorkflow(ctx, current))

	s.True(stale.CompleteCurrentStep(time.Now()))
	err = repo.UpdateWorkflow(ctx, stale)
	s.Error(err)
	s.True(ierr.IsConflict(err))
}

func (s *DisputeServiceTestSuite) TestAdvanceWorkflowInOrder() {
	resp := s.newCase("300", time.Now().UTC().Add(4*24*time.Hour))
	ctx := s.GetContext()

	w, err := s.service.AdvanceWorkflowStep(ctx, resp.ID)
	s.NoError(err)
	s.Equal(types.WorkflowStepEvidenceReview, w.CurrentStep)
	s.True(w.Steps[0].Completed)
	s.NotNil(w.Steps[0].CompletedAt)

	w, err = s.service.AdvanceWorkflowStep(ctx, resp.ID)
	s.NoError(err)
	s.Equal(types.WorkflowStepEvidenceSubmission, w.CurrentStep)

	w, err = s.service.AdvanceWorkflowStep(ctx, resp.ID)
	s.NoError(err)
	s.Equal(-1, w.FirstIncomplete())

	// Completing the last step moves the case to submitted.
	fetched, err := s.service.GetDisputeCase(ctx, resp.ID)
	s.NoError(err)
	s.Equal(types.DisputeStatusSubmitted, fetched.DisputeStatus)

	// A fourth advance has nothing left to complete.
	_, err = s.service.AdvanceWorkflowStep(ctx, resp.ID)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *DisputeServiceTestSuite) TestGetDisputeCaseNotFound() {
	_, err := s.service.GetDisputeCase(s.GetContext(), "disp_missing")
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}
