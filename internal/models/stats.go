package models

import "time"

// DailyCount — количество событий за один календарный день.
type DailyCount struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// SubscriptionBreakdown — распределение подписок по статусам.
type SubscriptionBreakdown struct {
	Active    int `json:"active"`
	Cancelled int `json:"cancelled"`
	Expired   int `json:"expired"`
}

// ActivityItem — элемент ленты последних событий для админской панели.
type ActivityItem struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// DashboardStats — агрегированная статистика для админской панели.
// Значения считаются отдельными запросами без общей транзакции:
// панель информационная, снапшотная согласованность не требуется.
type DashboardStats struct {
	TotalUsers            int                   `json:"total_users"`
	ActiveSubscriptions   int                   `json:"active_subscriptions"`
	TotalPlans            int                   `json:"total_plans"`
	MonthlyRevenue        float64               `json:"monthly_revenue"`
	UserGrowth            []DailyCount          `json:"user_growth"`
	SubscriptionBreakdown SubscriptionBreakdown `json:"subscription_breakdown"`
	RecentActivity        []ActivityItem        `json:"recent_activity"`
}

// SubscriptionConfirmedEvent — событие для очереди подтверждающих писем.
type SubscriptionConfirmedEvent struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	PlanName string `json:"plan_name"`
}
