package subscription_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/subscriptionpro/subscription-pro/internal/cache"
	"github.com/subscriptionpro/subscription-pro/internal/models"
	"github.com/subscriptionpro/subscription-pro/internal/services/subscription"
	"github.com/subscriptionpro/subscription-pro/internal/storage/repository"
)

// Мок для SubscriptionRepository
type SubsRepoMock struct {
	mock.Mock
}

func (m *SubsRepoMock) GetCurrentSubscription(ctx context.Context, userUID string) (*models.UserSubscription, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserSubscription), args.Error(1)
}

func (m *SubsRepoMock) MarkExpired(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *SubsRepoMock) CancelActiveSubscription(ctx context.Context, userUID string) (*models.UserSubscription, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserSubscription), args.Error(1)
}

func (m *SubsRepoMock) ListUserSubscriptions(ctx context.Context, userUID string) ([]*models.UserSubscription, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UserSubscription), args.Error(1)
}

// Мок для PlanRepository
type PlanRepoMock struct {
	mock.Mock
}

func (m *PlanRepoMock) ListPlans(ctx context.Context, onlyActive bool) ([]*models.SubscriptionPlan, error) {
	args := m.Called(ctx, onlyActive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SubscriptionPlan), args.Error(1)
}

// Мок для Cache
type CacheMock struct {
	mock.Mock
}

func (m *CacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Set(key string, value any, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func newService(t *testing.T) (*subscription.SubscriptionService, *SubsRepoMock, *PlanRepoMock, *CacheMock) {
	t.Helper()
	subs := new(SubsRepoMock)
	plans := new(PlanRepoMock)
	c := new(CacheMock)
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	svc := subscription.NewSubscriptionService(subs, plans, c, slog.New(h))
	return svc, subs, plans, c
}

func TestSubscriptionService_GetMySubscription(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(subs *SubsRepoMock)
		wantStatus string
		wantErr    error
	}{
		{
			name: "active subscription within period",
			setupMocks: func(subs *SubsRepoMock) {
				subs.On("GetCurrentSubscription", mock.Anything, "uid-1").Return(&models.UserSubscription{
					ID:      1,
					UserUID: "uid-1",
					Status:  models.StatusActive,
					EndDate: time.Now().Add(24 * time.Hour),
				}, nil).Once()
			},
			wantStatus: models.StatusActive,
		},
		{
			name: "active subscription past end date is lazily expired",
			setupMocks: func(subs *SubsRepoMock) {
				subs.On("GetCurrentSubscription", mock.Anything, "uid-1").Return(&models.UserSubscription{
					ID:      2,
					UserUID: "uid-1",
					Status:  models.StatusActive,
					EndDate: time.Now().Add(-time.Hour),
				}, nil).Once()
				subs.On("MarkExpired", mock.Anything, int64(2)).Return(nil).Once()
			},
			wantStatus: models.StatusExpired,
		},
		{
			name: "mark expired failure still returns expired status",
			setupMocks: func(subs *SubsRepoMock) {
				subs.On("GetCurrentSubscription", mock.Anything, "uid-1").Return(&models.UserSubscription{
					ID:      3,
					UserUID: "uid-1",
					Status:  models.StatusActive,
					EndDate: time.Now().Add(-time.Hour),
				}, nil).Once()
				subs.On("MarkExpired", mock.Anything, int64(3)).Return(errors.New("db error")).Once()
			},
			wantStatus: models.StatusExpired,
		},
		{
			name: "cancelled subscription is returned as is",
			setupMocks: func(subs *SubsRepoMock) {
				subs.On("GetCurrentSubscription", mock.Anything, "uid-1").Return(&models.UserSubscription{
					ID:      4,
					UserUID: "uid-1",
					Status:  models.StatusCancelled,
					EndDate: time.Now().Add(-time.Hour),
				}, nil).Once()
			},
			wantStatus: models.StatusCancelled,
		},
		{
			name: "no subscription",
			setupMocks: func(subs *SubsRepoMock) {
				subs.On("GetCurrentSubscription", mock.Anything, "uid-1").
					Return(nil, repository.ErrSubNotFound).Once()
			},
			wantErr: subscription.ErrNoActiveSubscription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, subs, _, _ := newService(t)
			tt.setupMocks(subs)

			sub, err := svc.GetMySubscription(context.Background(), "uid-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantStatus, sub.Status)
			}

			subs.AssertExpectations(t)
		})
	}
}

func TestSubscriptionService_Cancel(t *testing.T) {
	svc, subs, _, _ := newService(t)
	cancelledAt := time.Now()
	subs.On("CancelActiveSubscription", mock.Anything, "uid-1").Return(&models.UserSubscription{
		ID:          1,
		UserUID:     "uid-1",
		Status:      models.StatusCancelled,
		CancelledAt: &cancelledAt,
		AutoRenew:   false,
	}, nil).Once()
	subs.On("CancelActiveSubscription", mock.Anything, "uid-1").
		Return(nil, repository.ErrSubNotFound).Once()

	sub, err := svc.Cancel(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, sub.Status)
	assert.False(t, sub.AutoRenew)
	assert.NotNil(t, sub.CancelledAt)

	// Повторная отмена той же подписки
	_, err = svc.Cancel(context.Background(), "uid-1")
	assert.ErrorIs(t, err, subscription.ErrNoActiveSubscription)

	subs.AssertExpectations(t)
}

func TestSubscriptionService_ListPlans(t *testing.T) {
	activePlans := []*models.SubscriptionPlan{
		{ID: 1, Name: "Basic", Price: 199, Duration: models.DurationMonth, IsActive: true},
		{ID: 2, Name: "Pro", Price: 499, Duration: models.DurationMonth, IsActive: true},
	}

	tests := []struct {
		name       string
		setupMocks func(plans *PlanRepoMock, c *CacheMock)
		wantLen    int
		wantErr    bool
	}{
		{
			name: "cache miss falls back to database and fills cache",
			setupMocks: func(plans *PlanRepoMock, c *CacheMock) {
				c.On("Get", cache.PlansKey, mock.Anything).Return(false, nil).Once()
				plans.On("ListPlans", mock.Anything, true).Return(activePlans, nil).Once()
				c.On("Set", cache.PlansKey, activePlans, 5*time.Minute).Return(nil).Once()
			},
			wantLen: 2,
		},
		{
			name: "cache error is transparent",
			setupMocks: func(plans *PlanRepoMock, c *CacheMock) {
				c.On("Get", cache.PlansKey, mock.Anything).
					Return(false, errors.New("redis down")).Once()
				plans.On("ListPlans", mock.Anything, true).Return(activePlans, nil).Once()
				c.On("Set", cache.PlansKey, activePlans, 5*time.Minute).
					Return(errors.New("redis down")).Once()
			},
			wantLen: 2,
		},
		{
			name: "cache hit skips the database",
			setupMocks: func(_ *PlanRepoMock, c *CacheMock) {
				c.On("Get", cache.PlansKey, mock.Anything).Return(true, nil).Once()
			},
			wantLen: 0,
		},
		{
			name: "database error",
			setupMocks: func(plans *PlanRepoMock, c *CacheMock) {
				c.On("Get", cache.PlansKey, mock.Anything).Return(false, nil).Once()
				plans.On("ListPlans", mock.Anything, true).Return(nil, errors.New("db error")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, plans, c := newService(t)
			tt.setupMocks(plans, c)

			got, err := svc.ListPlans(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Len(t, got, tt.wantLen)
			}

			plans.AssertExpectations(t)
			c.AssertExpectations(t)
		})
	}
}

func TestSubscriptionService_History(t *testing.T) {
	svc, subs, _, _ := newService(t)
	subs.On("ListUserSubscriptions", mock.Anything, "uid-1").Return([]*models.UserSubscription{
		{ID: 2, Status: models.StatusActive},
		{ID: 1, Status: models.StatusExpired},
	}, nil).Once()

	history, err := svc.History(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, int64(2), history[0].ID)

	subs.AssertExpectations(t)
}
