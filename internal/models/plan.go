package models

import "time"

// Длительности тарифного плана.
const (
	DurationMonth = "month"
	DurationYear  = "year"
)

// SubscriptionPlan представляет тарифный план, доступный для покупки.
// План с активными подписками не удаляется, а деактивируется через IsActive.
type SubscriptionPlan struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"` // Уникальное имя плана
	Description string    `json:"description"`
	Price       float64   `json:"price"`    // Неотрицательная цена за период
	Duration    string    `json:"duration"` // month или year
	Features    []string  `json:"features"`
	IsActive    bool      `json:"is_active"`
	MaxUsers    *int      `json:"max_users,omitempty"` // nil — без ограничения
	TrialDays   int       `json:"trial_days"`
	CreatedAt   time.Time `json:"created_at"`
}
