// Package models содержит доменные структуры приложения: пользователей,
// refresh-токены, тарифные планы и подписки. Структуры используются
// в бизнес‑логике и при работе с хранилищем.
package models

import "time"

// User представляет зарегистрированного пользователя системы.
// PasswordHash и токены подтверждения/сброса никогда не сериализуются в ответы API.
type User struct {
	UID                     string     `json:"uid"`
	Name                    string     `json:"name"`
	Email                   string     `json:"email"` // Уникальный, хранится в нижнем регистре
	PasswordHash            string     `json:"-"`
	Role                    string     `json:"role"` // admin или user
	IsVerified              bool       `json:"is_verified"`
	VerificationToken       *string    `json:"-"` // Одноразовый код подтверждения почты
	VerificationTokenExpiry *time.Time `json:"-"`
	ResetPasswordToken      *string    `json:"-"` // SHA-256 от выданного токена, не сам токен
	ResetPasswordExpiry     *time.Time `json:"-"`
	LastLogin               *time.Time `json:"last_login,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
}

// Роли пользователей.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// UserWithSubscription — строка админского списка пользователей:
// пользователь и его текущая подписка, если она есть.
type UserWithSubscription struct {
	User                User       `json:"user"`
	PlanName            *string    `json:"plan_name,omitempty"`
	SubscriptionStatus  *string    `json:"subscription_status,omitempty"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
}
