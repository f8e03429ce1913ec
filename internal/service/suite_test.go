package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reliabill/reliabill/internal/domain/billingaccount"
	"github.com/reliabill/reliabill/internal/domain/paymentfailure"
	"github.com/reliabill/reliabill/internal/domain/transaction"
	"github.com/reliabill/reliabill/internal/domain/user"
	"github.com/reliabill/reliabill/internal/testutil"
	"github.com/reliabill/reliabill/internal/types"
)

// newTestParams builds ServiceParams from a base suite's stores and mocks.
func newTestParams(base *testutil.BaseServiceTestSuite) ServiceParams {
	stores := base.GetStores()
	return ServiceParams{
		Logger: base.GetLogger(),
		Config: base.GetConfig(),

		BillingAccountRepo: stores.BillingAccountRepo,
		PaymentFailureRepo: stores.PaymentFailureRepo,
		TransactionRepo:    stores.TransactionRepo,
		DisputeRepo:        stores.DisputeRepo,
		WebhookEventRepo:   stores.WebhookEventRepo,
		UserRepo:           stores.UserRepo,

		Gateway:  base.GetGateway(),
		Notifier: base.GetNotifier(),
		Cache:    base.GetCache(),

		RetryPolicy: types.DefaultRetryPolicy(),
		Campaigns:   DefaultCampaigns(),
	}
}

// seedUser inserts a premium user with contact details.
func seedUser(ctx context.Context, stores testutil.Stores, id string) *user.User {
	u := &user.User{
		ID:            id,
		Email:         id + "@example.com",
		Phone:         "+15550001111",
		Name:          "Test User",
		PremiumActive: true,
		BaseModel:     types.NewBaseModel(time.Now()),
	}
	stores.UserRepo.Seed(ctx, u)
	return u
}

// seedAccount inserts a billing account owned by userID in the given status.
func seedAccount(ctx context.Context, stores testutil.Stores, userID string, status types.BillingAccountStatus) *billingaccount.BillingAccount {
	account := &billingaccount.BillingAccount{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILLING_ACCOUNT),
		UserID:          userID,
		CustomerID:      "cus_" + userID,
		PaymentMethodID: "pm_" + userID,
		SubscriptionID:  "sub_" + userID,
		PlanID:          "plan_premium",
		Amount:          decimal.RequireFromString("29.99"),
		Currency:        "usd",
		Status:          status,
		NextBillingDate: time.Now().UTC().Add(30 * 24 * time.Hour),
		BaseModel:       types.NewBaseModel(time.Now()),
	}
	if err := stores.BillingAccountRepo.Create(ctx, account); err != nil {
		panic(err)
	}
	return account
}

// seedTransaction inserts a transaction against the account.
func seedTransaction(ctx context.Context, stores testutil.Stores, account *billingaccount.BillingAccount, status types.TransactionStatus, processorPaymentID string) *transaction.Transaction {
	txn := &transaction.Transaction{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSACTION),
		UserID:             account.UserID,
		BillingAccountID:   account.ID,
		Amount:             account.Amount,
		Currency:           account.Currency,
		Status:             status,
		ProcessorPaymentID: processorPaymentID,
		BaseModel:          types.NewBaseModel(time.Now()),
	}
	if err := stores.TransactionRepo.Create(ctx, txn); err != nil {
		panic(err)
	}
	return txn
}

// seedFailure inserts an unresolved payment failure chain for the account,
// created at the given time with the given attempt bookkeeping.
func seedFailure(ctx context.Context, stores testutil.Stores, account *billingaccount.BillingAccount, transactionID string, createdAt time.Time, attempt int, nextRetryAt time.Time) *paymentfailure.PaymentFailure {
	policy := types.DefaultRetryPolicy()
	f := &paymentfailure.PaymentFailure{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_FAILURE),
		TransactionID:    transactionID,
		SubscriptionID:   account.SubscriptionID,
		BillingAccountID: account.ID,
		UserID:           account.UserID,
		Amount:           account.Amount,
		Currency:         account.Currency,
		Reason:           types.FailureReasonCardDeclined,
		AttemptNumber:    attempt,
		MaxAttempts:      policy.MaxAttempts,
		NextRetryAt:      nextRetryAt,
		GracePeriodEnds:  createdAt.Add(policy.GracePeriod),
		BaseModel:        types.NewBaseModel(createdAt),
	}
	if err := stores.PaymentFailureRepo.CreateUnlessUnresolved(ctx, f); err != nil {
		panic(err)
	}
	return f
}
