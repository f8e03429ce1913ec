package testutil

import (
	"context"

	"github.com/stretchr/testify/suite"

	"github.com/reliabill/reliabill/internal/cache"
	"github.com/reliabill/reliabill/internal/config"
	"github.com/reliabill/reliabill/internal/logger"
)

// Stores bundles the in-memory repositories for a test run.
type Stores struct {
	BillingAccountRepo *InMemoryBillingAccountStore
	PaymentFailureRepo *InMemoryPaymentFailureStore
	TransactionRepo    *InMemoryTransactionStore
	DisputeRepo        *InMemoryDisputeStore
	WebhookEventRepo   *InMemoryWebhookEventStore
	UserRepo           *InMemoryUserStore
}

// NewStores creates a fresh set of in-memory repositories.
func NewStores() Stores {
	return Stores{
		BillingAccountRepo: NewInMemoryBillingAccountStore(),
		PaymentFailureRepo: NewInMemoryPaymentFailureStore(),
		TransactionRepo:    NewInMemoryTransactionStore(),
		DisputeRepo:        NewInMemoryDisputeStore(),
		WebhookEventRepo:   NewInMemoryWebhookEventStore(),
		UserRepo:           NewInMemoryUserStore(),
	}
}

// BaseServiceTestSuite provides fresh stores, mocks and configuration for
// every test. Service suites embed it and build ServiceParams from the
// accessors.
type BaseServiceTestSuite struct {
	suite.Suite

	ctx      context.Context
	cfg      *config.Configuration
	log      *logger.Logger
	stores   Stores
	gateway  *MockGateway
	notifier *MockNotifier
	cache    cache.Cache
}

// SetupTest resets every dependency before each test.
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.cfg = config.GetDefaultConfig()
	s.cfg.Processor.WebhookSecret = TestWebhookSecret
	s.log = logger.GetLogger()
	s.stores = NewStores()
	s.gateway = NewMockGateway()
	s.notifier = NewMockNotifier()
	s.cache = cache.NewInMemoryCache()
}

func (s *BaseServiceTestSuite) TearDownTest() {}

func (s *BaseServiceTestSuite) GetContext() context.Context  { return s.ctx }
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration { return s.cfg }
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger    { return s.log }
func (s *BaseServiceTestSuite) GetStores() Stores            { return s.stores }
func (s *BaseServiceTestSuite) GetGateway() *MockGateway     { return s.gateway }
func (s *BaseServiceTestSuite) GetNotifier() *MockNotifier   { return s.notifier }
func (s *BaseServiceTestSuite) GetCache() cache.Cache        { return s.cache }
