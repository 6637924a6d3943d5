package subscription

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rivve/boarding-house/internal/gateway"
	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/models"
)

func completedPayload() []byte {
	return []byte(`{"id":"evt_1","type":"checkout.completed","data":{"session_id":"sess_1","subscription_id":"sub_1","amount":150000,"currency":"LKR"}}`)
}

func activated() *models.Payment {
	expiry := testNow.AddDate(0, 0, 30)
	return &models.Payment{
		ID:                 11,
		UserUID:            "user-1",
		PlanType:           models.PlanGold,
		PlanDuration:       models.DurationMonthly,
		Amount:             150000,
		Currency:           "LKR",
		Status:             models.StatusSuccess,
		TransactionID:      "sess_1",
		BoughtDate:         &testNow,
		SubscriptionExpiry: &expiry,
	}
}

func TestService_HandleWebhook_Signature(t *testing.T) {
	tests := []struct {
		name      string
		signature string
	}{
		{name: "missing signature", signature: ""},
		{name: "wrong secret", signature: gateway.Sign(completedPayload(), "other")},
		{name: "tampered body", signature: gateway.Sign([]byte(`{"id":"evt_2"}`), testSecret)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			_, err := f.service.HandleWebhook(context.Background(), completedPayload(), tt.signature)

			require.ErrorIs(t, err, apperr.ErrInvalidSignature)
			f.repo.AssertNotCalled(t, "ActivatePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
		})
	}
}

func TestService_HandleWebhook_UnknownAndMalformed(t *testing.T) {
	f := newFixture()

	unknown := []byte(`{"id":"evt_9","type":"invoice.created","data":{}}`)
	outcome, err := f.service.HandleWebhook(context.Background(), unknown, gateway.Sign(unknown, testSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	malformed := []byte(`{"type":"checkout.completed","data":{}}`)
	_, err = f.service.HandleWebhook(context.Background(), malformed, gateway.Sign(malformed, testSecret))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestService_CheckoutCompleted_Idempotent(t *testing.T) {
	f := newFixture()
	payload := completedPayload()
	sig := gateway.Sign(payload, testSecret)

	f.repo.On("ActivatePayment", mock.Anything, "sess_1", "sub_1", testNow).
		Return(&models.ActivationResult{Payment: activated(), Applied: true}, nil).Once()
	f.repo.On("ActivatePayment", mock.Anything, "sess_1", "sub_1", testNow).
		Return(&models.ActivationResult{Payment: activated(), Applied: false}, nil).Once()
	f.repo.On("GetUserByUID", mock.Anything, "user-1").Return(verifiedStudent(), nil).Once()
	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.Template == models.TemplateSubscriptionActivated && n.Data["Expiry"] == "2025-03-31"
	})).Return(nil).Once()

	outcome, err := f.service.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	outcome, err = f.service.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplayed, outcome)

	f.repo.AssertExpectations(t)
	f.notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestService_HandleEvent(t *testing.T) {
	tests := []struct {
		name        string
		event       gateway.Event
		setupMocks  func(f *fixture)
		wantOutcome Outcome
		wantErr     error
		wantNotify  bool
	}{
		{
			name:  "completed for unknown transaction",
			event: gateway.CheckoutCompleted{TransactionID: "missing"},
			setupMocks: func(f *fixture) {
				f.repo.On("ActivatePayment", mock.Anything, "missing", "", testNow).Return(nil, apperr.ErrPaymentNotFound).Once()
			},
			wantErr: apperr.ErrPaymentNotFound,
		},
		{
			name:  "notification failure still acknowledges",
			event: gateway.CheckoutCompleted{TransactionID: "sess_1"},
			setupMocks: func(f *fixture) {
				f.repo.On("ActivatePayment", mock.Anything, "sess_1", "", testNow).
					Return(&models.ActivationResult{Payment: activated(), Applied: true}, nil).Once()
				f.repo.On("GetUserByUID", mock.Anything, "user-1").Return(verifiedStudent(), nil).Once()
				f.notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
			},
			wantOutcome: OutcomeApplied,
			wantNotify:  true,
		},
		{
			name:  "payment failed",
			event: gateway.PaymentFailed{TransactionID: "sess_1", Reason: "card_declined"},
			setupMocks: func(f *fixture) {
				p := activated()
				p.Status = models.StatusFailed
				f.repo.On("MarkPaymentFailed", mock.Anything, "sess_1", testNow).Return(p, true, nil).Once()
				f.repo.On("GetUserByUID", mock.Anything, "user-1").Return(verifiedStudent(), nil).Once()
				f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
					return n.Template == models.TemplatePaymentFailed
				})).Return(nil).Once()
			},
			wantOutcome: OutcomeApplied,
			wantNotify:  true,
		},
		{
			name:  "completion after sweeper failed the payment",
			event: gateway.CheckoutCompleted{TransactionID: "sess_1"},
			setupMocks: func(f *fixture) {
				p := activated()
				p.Status = models.StatusFailed
				p.SubscriptionExpiry = nil
				f.repo.On("ActivatePayment", mock.Anything, "sess_1", "", testNow).
					Return(&models.ActivationResult{Payment: p}, nil).Once()
			},
			wantOutcome: OutcomeUnreconciled,
		},
		{
			name:  "payment failed replay",
			event: gateway.PaymentFailed{TransactionID: "sess_1"},
			setupMocks: func(f *fixture) {
				p := activated()
				p.Status = models.StatusFailed
				f.repo.On("MarkPaymentFailed", mock.Anything, "sess_1", testNow).Return(p, false, nil).Once()
			},
			wantOutcome: OutcomeReplayed,
		},
		{
			name:  "gateway cancellation revokes premium",
			event: gateway.SubscriptionCancelled{ExternalSubscriptionID: "sub_1"},
			setupMocks: func(f *fixture) {
				p := activated()
				f.repo.On("GetPaymentByExternalSubscriptionID", mock.Anything, "sub_1").Return(p, nil).Once()
				cancelled := *p
				cancelled.Status = models.StatusCancelled
				f.repo.On("CancelPayment", mock.Anything, int64(11), models.CancelByGateway, testNow).Return(&cancelled, true, nil).Once()
				f.repo.On("RecomputePremium", mock.Anything, "user-1", testNow).Return(false, true, nil).Once()
				f.repo.On("GetUserByUID", mock.Anything, "user-1").Return(verifiedStudent(), nil).Once()
				f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()
			},
			wantOutcome: OutcomeApplied,
			wantNotify:  true,
		},
		{
			name:  "gateway cancellation replay recomputes premium",
			event: gateway.SubscriptionCancelled{TransactionID: "sess_1"},
			setupMocks: func(f *fixture) {
				p := activated()
				p.Status = models.StatusCancelled
				p.CancelReason = models.CancelByGateway
				f.repo.On("GetPaymentByTransactionID", mock.Anything, "sess_1").Return(p, nil).Once()
				f.repo.On("RecomputePremium", mock.Anything, "user-1", testNow).Return(false, false, nil).Once()
			},
			wantOutcome: OutcomeReplayed,
		},
		{
			name:  "recompute failure is retried by gateway",
			event: gateway.SubscriptionCancelled{TransactionID: "sess_1"},
			setupMocks: func(f *fixture) {
				p := activated()
				f.repo.On("GetPaymentByTransactionID", mock.Anything, "sess_1").Return(p, nil).Once()
				f.repo.On("CancelPayment", mock.Anything, int64(11), models.CancelByGateway, testNow).Return(p, true, nil).Once()
				f.repo.On("RecomputePremium", mock.Anything, "user-1", testNow).Return(false, false, errors.New("db down")).Once()
			},
			wantErr: errors.New("db down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setupMocks(f)

			outcome, err := f.service.HandleEvent(context.Background(), tt.event)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr.Error())
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantOutcome, outcome)
			}
			if !tt.wantNotify {
				f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
			}
			f.repo.AssertExpectations(t)
			f.notifier.AssertExpectations(t)
		})
	}
}

func TestService_CheckoutCompleted_HigherPlanActive(t *testing.T) {
	f := newFixture()

	gold := activated()
	gold.Status = models.StatusFailed
	gold.CancelReason = models.CancelDowngradeBlocked
	gold.SubscriptionExpiry = nil
	platinum := activePayment(models.PlanPlatinum)

	f.repo.On("ActivatePayment", mock.Anything, "sess_1", "sub_1", testNow).
		Return(&models.ActivationResult{Payment: gold, BlockedBy: platinum}, nil).Once()

	outcome, err := f.service.HandleEvent(context.Background(),
		gateway.CheckoutCompleted{TransactionID: "sess_1", ExternalSubscriptionID: "sub_1"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)
	require.NotNil(t, f.repo.outranks)
	assert.True(t, f.repo.outranks(models.PlanPlatinum, models.PlanGold))
	assert.False(t, f.repo.outranks(models.PlanGold, models.PlanPlatinum))
	assert.False(t, f.repo.outranks(models.PlanGold, models.PlanGold))
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	f.repo.AssertExpectations(t)
}
