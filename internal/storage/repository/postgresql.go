// Package repository реализует хранилище данных на основе PostgreSQL:
// пользователи, refresh-токены, тарифные планы, подписки и агрегаты
// для админской панели.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Ошибки уровня хранилища. Сервисы сопоставляют их через errors.Is
// и переводят в доменные ошибки.
var (
	ErrUserExists      = errors.New("user already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrTokenNotFound   = errors.New("token not found or inactive")
	ErrPlanExists      = errors.New("plan with this name already exists")
	ErrPlanNotFound    = errors.New("plan not found")
	ErrPlanInUse       = errors.New("plan is referenced by an active subscription")
	ErrActiveSubExists = errors.New("active subscription already exists")
	ErrSubNotFound     = errors.New("subscription not found")
)

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL и проверяет его доступность.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// uniqueViolation — SQLSTATE нарушения уникального ограничения.
const uniqueViolation = "23505"

// isUniqueViolation сообщает, вызвана ли ошибка нарушением уникального
// ограничения с указанным именем. Пустое имя совпадает с любым ограничением.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
