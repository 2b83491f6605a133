package models

import (
	"math"
	"time"
)

// Статусы подписки пользователя.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
	StatusTrial     = "trial"
)

// PaymentInfo содержит сведения о последнем платеже по подписке.
type PaymentInfo struct {
	LastPaymentDate   *time.Time `json:"last_payment_date,omitempty"`
	LastPaymentAmount float64    `json:"last_payment_amount,omitempty"`
	PaymentMethod     string     `json:"payment_method,omitempty"`
	TransactionID     string     `json:"transaction_id,omitempty"`
	OrderID           string     `json:"order_id,omitempty"`
}

// UserSubscription представляет подписку пользователя на тарифный план.
// Инвариант: у пользователя не более одной записи со статусом active,
// обеспечивается частичным уникальным индексом в хранилище.
type UserSubscription struct {
	ID          int64             `json:"id"`
	UserUID     string            `json:"user_uid"`
	PlanID      int64             `json:"plan_id"` // 0, если план удалён
	Status      string            `json:"status"`
	StartDate   time.Time         `json:"start_date"`
	EndDate     time.Time         `json:"end_date"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	AutoRenew   bool              `json:"auto_renew"`
	PaymentInfo PaymentInfo       `json:"payment_info"`
	CreatedAt   time.Time         `json:"created_at"`
	Plan        *SubscriptionPlan `json:"plan,omitempty"`

	// Заполняются только в админских выборках.
	UserName  string `json:"user_name,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
}

// IsExpired сообщает, прошла ли дата окончания подписки.
// Статус при этом может всё ещё быть active: переход active→expired
// выполняется лениво при чтении.
func (s *UserSubscription) IsExpired() bool {
	return time.Now().After(s.EndDate)
}

// DaysRemaining возвращает число дней до окончания подписки, округлённое вверх.
func (s *UserSubscription) DaysRemaining() int {
	diff := time.Until(s.EndDate)
	return int(math.Ceil(diff.Hours() / 24))
}

// SubscriptionEnd вычисляет дату окончания подписки по календарной
// арифметике: плюс один месяц или один год от даты начала.
func SubscriptionEnd(start time.Time, duration string) time.Time {
	if duration == DurationYear {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
