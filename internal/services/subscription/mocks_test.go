package subscription

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/rivve/boarding-house/internal/config"
	"github.com/rivve/boarding-house/internal/gateway"
	"github.com/rivve/boarding-house/internal/lib/clock"
	"github.com/rivve/boarding-house/internal/models"
)

type MockRepository struct {
	mock.Mock
	// outranks порядок тарифов из последнего вызова ActivatePayment
	outranks models.Outranks
}

func (m *MockRepository) GetUserByUID(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockRepository) GetActivePayment(ctx context.Context, userUID string, now time.Time) (*models.Payment, error) {
	args := m.Called(ctx, userUID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockRepository) CreatePayment(ctx context.Context, p models.Payment) (int64, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) ListPaymentsByUser(ctx context.Context, userUID string) ([]*models.Payment, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Payment), args.Error(1)
}

func (m *MockRepository) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockRepository) GetPaymentByExternalSubscriptionID(ctx context.Context, extID string) (*models.Payment, error) {
	args := m.Called(ctx, extID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockRepository) ActivatePayment(ctx context.Context, transactionID, extSubID string, now time.Time,
	outranks models.Outranks) (*models.ActivationResult, error) {
	m.outranks = outranks
	args := m.Called(ctx, transactionID, extSubID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ActivationResult), args.Error(1)
}

func (m *MockRepository) MarkPaymentFailed(ctx context.Context, transactionID string, now time.Time) (*models.Payment, bool, error) {
	args := m.Called(ctx, transactionID, now)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Payment), args.Bool(1), args.Error(2)
}

func (m *MockRepository) CancelPayment(ctx context.Context, id int64, reason models.CancelReason, now time.Time) (*models.Payment, bool, error) {
	args := m.Called(ctx, id, reason, now)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Payment), args.Bool(1), args.Error(2)
}

func (m *MockRepository) RecomputePremium(ctx context.Context, userUID string, now time.Time) (bool, bool, error) {
	args := m.Called(ctx, userUID, now)
	return args.Bool(0), args.Bool(1), args.Error(2)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateSession(ctx context.Context, req gateway.SessionRequest) (*gateway.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Session), args.Error(1)
}

func (m *MockGateway) CancelSubscription(ctx context.Context, externalSubscriptionID string) error {
	args := m.Called(ctx, externalSubscriptionID)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const testSecret = "whsec_test"

func testPolicy() *Policy {
	return NewPolicy(config.Plans{
		Currency: "LKR",
		Tiers:    []string{"gold", "platinum"},
		Prices: map[string]map[string]int64{
			"gold":     {"monthly": 150000, "yearly": 1500000},
			"platinum": {"monthly": 250000, "yearly": 2500000},
		},
		Roles: map[string][]string{
			"student":  {"gold", "platinum"},
			"landlord": {"platinum"},
		},
	})
}

type fixture struct {
	repo     *MockRepository
	gateway  *MockGateway
	notifier *MockNotifier
	service  *Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:     new(MockRepository),
		gateway:  new(MockGateway),
		notifier: new(MockNotifier),
	}
	f.service = NewService(f.repo, f.gateway, f.notifier, testPolicy(), clock.Fixed(testNow), testSecret, newNoopLogger())
	return f
}

func verifiedStudent() *models.User {
	return &models.User{
		UUID:            "user-1",
		Email:           "amali@example.com",
		Username:        "amali",
		Role:            models.RoleStudent,
		IsEmailVerified: true,
	}
}

func activePayment(plan models.PlanType) *models.Payment {
	expiry := testNow.AddDate(0, 0, 10)
	return &models.Payment{
		ID:                     7,
		UserUID:                "user-1",
		PlanType:               plan,
		PlanDuration:           models.DurationMonthly,
		Amount:                 150000,
		Currency:               "LKR",
		Status:                 models.StatusSuccess,
		TransactionID:          "sess_old",
		ExternalSubscriptionID: "sub_old",
		SubscriptionExpiry:     &expiry,
	}
}
