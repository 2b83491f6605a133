package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subscriptionpro/subscription-pro/internal/models"
)

func TestStorage_CreateUser(t *testing.T) {
	tests := []struct {
		name    string
		user    models.User
		wantErr error
		setup   func(t *testing.T, factory *TestDataFactory)
	}{
		{
			name: "successful create user",
			user: models.User{
				Name:         "Test User",
				Email:        "Test@Example.com",
				PasswordHash: "hashedpassword",
				Role:         models.RoleUser,
			},
			wantErr: nil,
			setup:   func(_ *testing.T, _ *TestDataFactory) {},
		},
		{
			name: "duplicate email gives ErrUserExists",
			user: models.User{
				Name:         "Another User",
				Email:        "test@example.com",
				PasswordHash: "hashedpassword2",
				Role:         models.RoleUser,
			},
			wantErr: ErrUserExists,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateUser(t, uuid.New().String(), "Test User", "test@example.com", "hashedpassword", "user")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			tt.setup(t, factory)

			gotUID, err := storage.CreateUser(context.Background(), tt.user)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, gotUID)

			verification := NewTestVerification(storage)
			verification.VerifyUserExists(t, gotUID)

			// Почта хранится в нижнем регистре
			got, err := storage.GetUserByEmail(context.Background(), "TEST@EXAMPLE.COM")
			require.NoError(t, err)
			assert.Equal(t, "test@example.com", got.Email)
		})
	}
}

func TestStorage_VerifyUserByToken(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr error
		setup   func(t *testing.T, storage *Storage) string
	}{
		{
			name:    "successful verify with valid code",
			code:    "123456",
			wantErr: nil,
			setup: func(t *testing.T, storage *Storage) string {
				factory := NewTestDataFactory(storage)
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "Test User", "test@example.com", "hash", "user")
				err := storage.SetVerificationToken(context.Background(), userUID, "123456", time.Now().Add(10*time.Minute))
				require.NoError(t, err)
				return userUID
			},
		},
		{
			name:    "expired code gives ErrTokenNotFound",
			code:    "123456",
			wantErr: ErrTokenNotFound,
			setup: func(t *testing.T, storage *Storage) string {
				factory := NewTestDataFactory(storage)
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "Test User", "test@example.com", "hash", "user")
				err := storage.SetVerificationToken(context.Background(), userUID, "123456", time.Now().Add(-time.Minute))
				require.NoError(t, err)
				return userUID
			},
		},
		{
			name:    "unknown code gives ErrTokenNotFound",
			code:    "999999",
			wantErr: ErrTokenNotFound,
			setup:   func(_ *testing.T, _ *Storage) string { return "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			userUID := tt.setup(t, storage)

			got, err := storage.VerifyUserByToken(context.Background(), tt.code)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, userUID, got.UID)
			assert.True(t, got.IsVerified)
			assert.Nil(t, got.VerificationToken)

			// Код одноразовый
			_, err = storage.VerifyUserByToken(context.Background(), tt.code)
			require.ErrorIs(t, err, ErrTokenNotFound)
		})
	}
}

func TestStorage_ResetPasswordByToken(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "Test User", "test@example.com", "oldhash", "user")

	ctx := context.Background()
	err := storage.SetResetPasswordToken(ctx, userUID, "tokenhash", time.Now().Add(30*time.Minute))
	require.NoError(t, err)

	err = storage.ResetPasswordByToken(ctx, "tokenhash", "newhash")
	require.NoError(t, err)

	got, err := storage.GetUserByUID(ctx, userUID)
	require.NoError(t, err)
	assert.Equal(t, "newhash", got.PasswordHash)
	assert.Nil(t, got.ResetPasswordToken)

	// Токен гасится после использования
	err = storage.ResetPasswordByToken(ctx, "tokenhash", "anotherhash")
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestStorage_ClearResetPasswordToken(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "Test User", "test@example.com", "hash", "user")

	ctx := context.Background()
	err := storage.SetResetPasswordToken(ctx, userUID, "tokenhash", time.Now().Add(30*time.Minute))
	require.NoError(t, err)

	// Откат после неудачной отправки письма
	err = storage.ClearResetPasswordToken(ctx, userUID)
	require.NoError(t, err)

	err = storage.ResetPasswordByToken(ctx, "tokenhash", "newhash")
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestStorage_RotateRefreshToken(t *testing.T) {
	tests := []struct {
		name     string
		oldToken string
		wantErr  error
		setup    func(t *testing.T, factory *TestDataFactory) string
	}{
		{
			name:     "successful rotation",
			oldToken: "oldtoken",
			wantErr:  nil,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "Test User", "test@example.com", "hash", "user")
				factory.CreateRefreshToken(t, "oldtoken", userUID, time.Now().Add(time.Hour))
				return userUID
			},
		},
		{
			name:     "expired token gives ErrTokenNotFound",
			oldToken: "expiredtoken",
			wantErr:  ErrTokenNotFound,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "Test User", "test@example.com", "hash", "user")
				factory.CreateRefreshToken(t, "expiredtoken", userUID, time.Now().Add(-time.Hour))
				return userUID
			},
		},
		{
			name:     "unknown token gives ErrTokenNotFound",
			oldToken: "unknown",
			wantErr:  ErrTokenNotFound,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "Test User", "test@example.com", "hash", "user")
				return userUID
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userUID := tt.setup(t, factory)

			newToken := models.RefreshToken{
				Token:       "newtoken",
				ExpiresAt:   time.Now().Add(time.Hour),
				CreatedByIP: "127.0.0.1",
			}
			gotUID, err := storage.RotateRefreshToken(context.Background(), tt.oldToken, newToken)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, userUID, gotUID)

			verification := NewTestVerification(storage)
			verification.VerifyTokenRevoked(t, tt.oldToken)

			got, err := storage.GetRefreshToken(context.Background(), tt.oldToken)
			require.NoError(t, err)
			require.NotNil(t, got.ReplacedByToken)
			assert.Equal(t, "newtoken", *got.ReplacedByToken)
		})
	}
}

func TestStorage_RotateRefreshToken_Concurrent(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "Test User", "test@example.com", "hash", "user")
	factory.CreateRefreshToken(t, "contested", userUID, time.Now().Add(time.Hour))

	// N конкурентных ротаций одного токена: ровно одна должна выиграть
	const workers = 10
	var wg sync.WaitGroup
	successes := make(chan string, workers)
	failures := make(chan error, workers)

	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			newToken := models.RefreshToken{
				Token:       fmt.Sprintf("replacement-%d", i),
				ExpiresAt:   time.Now().Add(time.Hour),
				CreatedByIP: "127.0.0.1",
			}
			uid, err := storage.RotateRefreshToken(context.Background(), "contested", newToken)
			if err != nil {
				failures <- err
				return
			}
			successes <- uid
		}(i)
	}
	wg.Wait()
	close(successes)
	close(failures)

	assert.Len(t, successes, 1)
	assert.Len(t, failures, workers-1)
	for err := range failures {
		assert.ErrorIs(t, err, ErrTokenNotFound)
	}
	for uid := range successes {
		assert.Equal(t, userUID, uid)
	}
}

func TestStorage_CreateSubscription_OneActivePerUser(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "Test User", "test@example.com", "hash", "user")
	planID := factory.CreatePlan(t, "Pro", 499.0, models.DurationMonth)

	start := time.Now()
	sub := models.UserSubscription{
		UserUID:   userUID,
		PlanID:    planID,
		Status:    models.StatusActive,
		StartDate: start,
		EndDate:   start.AddDate(0, 1, 0),
		AutoRenew: true,
	}

	// N конкурентных покупок: активной должна стать ровно одна
	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := storage.CreateSubscription(context.Background(), sub)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrActiveSubExists):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)

	verification := NewTestVerification(storage)
	verification.VerifyActiveSubscriptionCount(t, userUID, 1)
}

func TestStorage_CancelActiveSubscription(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "Test User", "test@example.com", "hash", "user")
	planID := factory.CreatePlan(t, "Pro", 499.0, models.DurationMonth)
	subID := factory.CreateSubscription(t, userUID, planID, models.StatusActive,
		time.Now(), time.Now().AddDate(0, 1, 0))

	ctx := context.Background()
	got, err := storage.CancelActiveSubscription(ctx, userUID)
	require.NoError(t, err)
	assert.Equal(t, subID, got.ID)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)
	assert.False(t, got.AutoRenew)

	// Повторная отмена не находит активной подписки
	_, err = storage.CancelActiveSubscription(ctx, userUID)
	require.ErrorIs(t, err, ErrSubNotFound)
}

func TestStorage_RenewSubscription(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "Test User", "test@example.com", "hash", "user")
	planID := factory.CreatePlan(t, "Pro", 499.0, models.DurationMonth)
	subID := factory.CreateSubscription(t, userUID, planID, models.StatusCancelled,
		time.Now().AddDate(0, -1, 0), time.Now())

	ctx := context.Background()
	start := time.Now()
	paymentDate := start
	renewed, err := storage.RenewSubscription(ctx, models.UserSubscription{
		ID:        subID,
		StartDate: start,
		EndDate:   start.AddDate(0, 1, 0),
		PaymentInfo: models.PaymentInfo{
			LastPaymentDate:   &paymentDate,
			LastPaymentAmount: 499.0,
			PaymentMethod:     "razorpay",
			TransactionID:     "pay_123",
			OrderID:           "order_123",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, renewed.Status)
	assert.Nil(t, renewed.CancelledAt)
	assert.True(t, renewed.AutoRenew)
	assert.Equal(t, "pay_123", renewed.PaymentInfo.TransactionID)

	// Второе продление той же записи не проходит
	_, err = storage.RenewSubscription(ctx, models.UserSubscription{
		ID:        subID,
		StartDate: start,
		EndDate:   start.AddDate(0, 1, 0),
	})
	require.ErrorIs(t, err, ErrSubNotFound)
}

func TestStorage_MarkExpired(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "Test User", "test@example.com", "hash", "user")
	planID := factory.CreatePlan(t, "Pro", 499.0, models.DurationMonth)
	subID := factory.CreateSubscription(t, userUID, planID, models.StatusActive,
		time.Now().AddDate(0, -2, 0), time.Now().AddDate(0, -1, 0))

	ctx := context.Background()
	require.NoError(t, storage.MarkExpired(ctx, subID))
	// Повторный перевод безвреден
	require.NoError(t, storage.MarkExpired(ctx, subID))

	verification := NewTestVerification(storage)
	verification.VerifySubscriptionStatus(t, subID, models.StatusExpired)
}

func TestStorage_DeletePlan(t *testing.T) {
	tests := []struct {
		name    string
		wantErr error
		setup   func(t *testing.T, factory *TestDataFactory) int64
	}{
		{
			name:    "successful delete unused plan",
			wantErr: nil,
			setup: func(t *testing.T, factory *TestDataFactory) int64 {
				return factory.CreatePlan(t, "Unused", 100.0, models.DurationMonth)
			},
		},
		{
			name:    "plan with active subscription gives ErrPlanInUse",
			wantErr: ErrPlanInUse,
			setup: func(t *testing.T, factory *TestDataFactory) int64 {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "Test User", "test@example.com", "hash", "user")
				planID := factory.CreatePlan(t, "Busy", 100.0, models.DurationMonth)
				factory.CreateSubscription(t, userUID, planID, models.StatusActive,
					time.Now(), time.Now().AddDate(0, 1, 0))
				return planID
			},
		},
		{
			name:    "plan with only cancelled subscription deletes",
			wantErr: nil,
			setup: func(t *testing.T, factory *TestDataFactory) int64 {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "Test User", "test2@example.com", "hash", "user")
				planID := factory.CreatePlan(t, "Retired", 100.0, models.DurationMonth)
				factory.CreateSubscription(t, userUID, planID, models.StatusCancelled,
					time.Now().AddDate(0, -1, 0), time.Now())
				return planID
			},
		},
		{
			name:    "non-existing plan gives ErrPlanNotFound",
			wantErr: ErrPlanNotFound,
			setup:   func(_ *testing.T, _ *TestDataFactory) int64 { return 9999 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			planID := tt.setup(t, factory)

			err := storage.DeletePlan(context.Background(), planID)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestStorage_MonthlyRevenue(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	monthlyPlan := factory.CreatePlan(t, "Monthly", 30.0, models.DurationMonth)
	yearlyPlan := factory.CreatePlan(t, "Yearly", 120.0, models.DurationYear)

	start := time.Now()
	end := start.AddDate(1, 0, 0)
	for i := range 3 {
		userUID := uuid.New().String()
		factory.CreateUser(t, userUID, "User", fmt.Sprintf("user%d@example.com", i), "hash", "user")
		factory.CreateSubscription(t, userUID, monthlyPlan, models.StatusActive, start, end)
	}
	yearlyUser := uuid.New().String()
	factory.CreateUser(t, yearlyUser, "User", "yearly@example.com", "hash", "user")
	factory.CreateSubscription(t, yearlyUser, yearlyPlan, models.StatusActive, start, end)

	// Отменённые подписки в выручку не входят
	cancelledUser := uuid.New().String()
	factory.CreateUser(t, cancelledUser, "User", "cancelled@example.com", "hash", "user")
	factory.CreateSubscription(t, cancelledUser, monthlyPlan, models.StatusCancelled, start, end)

	revenue, err := storage.MonthlyRevenue(context.Background())
	require.NoError(t, err)
	// 3 * 30 + 120 / 12 = 100
	assert.InDelta(t, 100.0, revenue, 0.001)
}

func TestStorage_UserGrowth(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, uuid.New().String(), "Today", "today@example.com", "hash", "user")

	growth, err := storage.UserGrowth(context.Background(), 7)
	require.NoError(t, err)
	// Все семь дней присутствуют, включая пустые
	require.Len(t, growth, 7)
	assert.Equal(t, 1, growth[6].Count)
	for _, dc := range growth[:6] {
		assert.Equal(t, 0, dc.Count)
	}
}

func TestStorage_SubscriptionBreakdown(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	planID := factory.CreatePlan(t, "Pro", 499.0, models.DurationMonth)

	start := time.Now()
	end := start.AddDate(0, 1, 0)
	statuses := []string{
		models.StatusActive, models.StatusActive,
		models.StatusCancelled,
		models.StatusExpired, models.StatusExpired, models.StatusExpired,
	}
	for i, status := range statuses {
		userUID := uuid.New().String()
		factory.CreateUser(t, userUID, "User", fmt.Sprintf("u%d@example.com", i), "hash", "user")
		factory.CreateSubscription(t, userUID, planID, status, start, end)
	}

	breakdown, err := storage.SubscriptionBreakdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, breakdown.Active)
	assert.Equal(t, 1, breakdown.Cancelled)
	assert.Equal(t, 3, breakdown.Expired)
}

func TestStorage_GetCurrentSubscription(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "Test User", "test@example.com", "hash", "user")
	planID := factory.CreatePlan(t, "Pro", 499.0, models.DurationMonth)

	ctx := context.Background()

	// Нет подписок
	_, err := storage.GetCurrentSubscription(ctx, userUID)
	require.ErrorIs(t, err, ErrSubNotFound)

	// Истёкшие записи не считаются текущими
	factory.CreateSubscription(t, userUID, planID, models.StatusExpired,
		time.Now().AddDate(0, -2, 0), time.Now().AddDate(0, -1, 0))
	_, err = storage.GetCurrentSubscription(ctx, userUID)
	require.ErrorIs(t, err, ErrSubNotFound)

	subID := factory.CreateSubscription(t, userUID, planID, models.StatusActive,
		time.Now(), time.Now().AddDate(0, 1, 0))

	got, err := storage.GetCurrentSubscription(ctx, userUID)
	require.NoError(t, err)
	assert.Equal(t, subID, got.ID)
	require.NotNil(t, got.Plan)
	assert.Equal(t, "Pro", got.Plan.Name)
}

func TestStorage_DeletePlan_KeepsCancelledHistory(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "Test User", "history@example.com", "hash", "user")
	planID := factory.CreatePlan(t, "Retired", 100.0, models.DurationMonth)
	subID := factory.CreateSubscription(t, userUID, planID, models.StatusCancelled,
		time.Now().AddDate(0, -1, 0), time.Now())

	ctx := context.Background()
	require.NoError(t, storage.DeletePlan(ctx, planID))

	// История не удаляется вместе с планом: строка остаётся, ссылка обнулена
	subs, err := storage.ListUserSubscriptions(ctx, userUID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, subID, subs[0].ID)
	assert.Zero(t, subs[0].PlanID)
	assert.Nil(t, subs[0].Plan)

	got, err := storage.GetCurrentSubscription(ctx, userUID)
	require.NoError(t, err)
	assert.Equal(t, subID, got.ID)
	assert.Nil(t, got.Plan)
}

func TestStorage_DeleteExpiredRefreshTokens(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "Test User", "gc@example.com", "hash", "user")

	factory.CreateRefreshToken(t, "expired", userUID, time.Now().Add(-time.Hour))
	factory.CreateRefreshToken(t, "revoked", userUID, time.Now().Add(time.Hour))
	factory.CreateRefreshToken(t, "live", userUID, time.Now().Add(time.Hour))

	ctx := context.Background()
	require.NoError(t, storage.RevokeRefreshToken(ctx, "revoked", "127.0.0.1"))

	deleted, err := storage.DeleteExpiredRefreshTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = storage.GetRefreshToken(ctx, "expired")
	require.ErrorIs(t, err, ErrTokenNotFound)

	// Отозванный, но не истёкший токен сохраняется для аудита повторного
	// использования по цепочке replaced_by_token
	revoked, err := storage.GetRefreshToken(ctx, "revoked")
	require.NoError(t, err)
	require.NotNil(t, revoked.RevokedAt)

	live, err := storage.GetRefreshToken(ctx, "live")
	require.NoError(t, err)
	assert.Nil(t, live.RevokedAt)
}
