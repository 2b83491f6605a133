// Package auth содержит бизнес-логику регистрации, входа и жизненного
// цикла сессии: выпуск пары токенов, ротацию refresh-токена, подтверждение
// почты и сброс пароля.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/subscriptionpro/subscription-pro/internal/lib/jwt"
	"github.com/subscriptionpro/subscription-pro/internal/lib/password"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/lib/token"
	"github.com/subscriptionpro/subscription-pro/internal/models"
	"github.com/subscriptionpro/subscription-pro/internal/storage/repository"
)

// Ошибки уровня сервиса. Хендлеры сопоставляют их с HTTP-статусами.
var (
	// ErrEmailTaken — почта уже занята другим пользователем.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials — неверная почта или пароль. Причина намеренно
	// не уточняется, чтобы не раскрывать существование аккаунта.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken — токен не найден, отозван или просрочен.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrEmailDelivery — письмо не удалось отправить, операция откатана.
	ErrEmailDelivery = errors.New("failed to send email")
)

// Срок действия кода подтверждения почты и токена сброса пароля.
const (
	verificationCodeTTL = 24 * time.Hour
	resetTokenTTL       = 30 * time.Minute
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (string, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, userUID string) error
	SetVerificationToken(ctx context.Context, userUID, code string, expiry time.Time) error
	VerifyUserByToken(ctx context.Context, code string) (*models.User, error)
	SetResetPasswordToken(ctx context.Context, userUID, tokenHash string, expiry time.Time) error
	ClearResetPasswordToken(ctx context.Context, userUID string) error
	ResetPasswordByToken(ctx context.Context, tokenHash, passwordHash string) error
}

// TokenRepository описывает контракт для работы с refresh-токенами.
type TokenRepository interface {
	CreateRefreshToken(ctx context.Context, t models.RefreshToken) error
	RotateRefreshToken(ctx context.Context, oldToken string, newToken models.RefreshToken) (string, error)
	RevokeRefreshToken(ctx context.Context, token, revokedByIP string) error
	DeleteExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// Mailer отправляет письма подтверждения почты и сброса пароля.
type Mailer interface {
	SendVerificationEmail(email, name, code string) error
	SendPasswordResetEmail(email, name, link string) error
}

// TokenPair — пара токенов, выдаваемая при входе и ротации.
type TokenPair struct {
	AccessToken  string
	RefreshToken models.RefreshToken
}

// AuthService отвечает за регистрацию, вход и жизненный цикл сессии.
type AuthService struct {
	users      UserRepository
	tokens     TokenRepository
	mailer     Mailer
	jwtMaker   jwt.Maker
	log        *slog.Logger
	refreshTTL time.Duration
	clientURL  string
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, tokens TokenRepository, mailer Mailer,
	jwtMaker jwt.Maker, log *slog.Logger, refreshTTL time.Duration, clientURL string) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		mailer:     mailer,
		jwtMaker:   jwtMaker,
		log:        log,
		refreshTTL: refreshTTL,
		clientURL:  clientURL,
	}
}

// Register создает нового пользователя с ролью user, отправляет код
// подтверждения почты и сразу выдает пару токенов: подтверждение почты
// не блокирует вход, оно требуется только для оплаты.
func (s *AuthService) Register(ctx context.Context, name, email, rawPassword, ip string) (*models.User, *TokenPair, error) {
	const op = "auth.Register"

	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hashed,
		Role:         models.RoleUser,
	}
	uid, err := s.users.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	created, err := s.users.GetUserByUID(ctx, uid)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sendVerificationCode(ctx, created); err != nil {
		// Регистрация не откатывается: код можно запросить повторно.
		s.log.Warn("failed to send verification email", "email", created.Email, sl.Err(err))
	}

	pair, err := s.issueTokenPair(ctx, created.UID, created.Role, ip)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, pair, nil
}

// Login проверяет пароль и выдает пару токенов. Несуществующая почта и
// неверный пароль дают одну и ту же ошибку ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, rawPassword, ip string) (*models.User, *TokenPair, error) {
	const op = "auth.Login"

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	if err := s.users.UpdateLastLogin(ctx, user.UID); err != nil {
		s.log.Warn("failed to update last login", "user_uid", user.UID, sl.Err(err))
	}
	// Попутная чистка мусора, вход от её исхода не зависит.
	if _, err := s.tokens.DeleteExpiredRefreshTokens(ctx); err != nil {
		s.log.Warn("failed to delete expired refresh tokens", sl.Err(err))
	}

	pair, err := s.issueTokenPair(ctx, user.UID, user.Role, ip)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, pair, nil
}

// Refresh выполняет ротацию refresh-токена: старый отзывается, взамен
// выдается новая пара. Повторное предъявление того же токена вернет
// ErrInvalidToken, отзыв атомарный.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ip string) (*TokenPair, error) {
	const op = "auth.Refresh"

	opaque, err := token.NewOpaque()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	newToken := models.RefreshToken{
		Token:       opaque,
		ExpiresAt:   time.Now().Add(s.refreshTTL),
		CreatedByIP: ip,
	}
	userUID, err := s.tokens.RotateRefreshToken(ctx, refreshToken, newToken)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	newToken.UserUID = userUID

	user, err := s.users.GetUserByUID(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	access, err := s.jwtMaker.GenerateToken(user.UID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: newToken}, nil
}

// Logout отзывает refresh-токен. Access-токен доживает свой срок сам.
func (s *AuthService) Logout(ctx context.Context, refreshToken, ip string) error {
	const op = "auth.Logout"

	if err := s.tokens.RevokeRefreshToken(ctx, refreshToken, ip); err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// VerifyEmail подтверждает почту по одноразовому коду.
func (s *AuthService) VerifyEmail(ctx context.Context, code string) (*models.User, error) {
	const op = "auth.VerifyEmail"

	user, err := s.users.VerifyUserByToken(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// ForgotPassword выдает токен сброса пароля и отправляет письмо со ссылкой.
// Для неизвестной почты ответ тот же, что и для известной: существование
// аккаунта не раскрывается. Если письмо отправить не удалось, токен
// отзывается и возвращается ErrEmailDelivery.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	const op = "auth.ForgotPassword"

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	raw, err := token.NewOpaque()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	// В хранилище попадает только хэш, сам токен уходит в письме.
	if err := s.users.SetResetPasswordToken(ctx, user.UID, token.Hash(raw), time.Now().Add(resetTokenTTL)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	link := s.clientURL + "/reset-password/" + raw
	if err := s.mailer.SendPasswordResetEmail(user.Email, user.Name, link); err != nil {
		s.log.Error("failed to send password reset email", "email", user.Email, sl.Err(err))
		if clearErr := s.users.ClearResetPasswordToken(ctx, user.UID); clearErr != nil {
			s.log.Error("failed to clear reset token after email failure",
				"user_uid", user.UID, sl.Err(clearErr))
		}
		return ErrEmailDelivery
	}
	return nil
}

// ResetPassword меняет пароль по токену из письма. Токен одноразовый:
// успешный сброс очищает его.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	const op = "auth.ResetPassword"

	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.ResetPasswordByToken(ctx, token.Hash(rawToken), hashed); err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CheckAuth возвращает актуальные данные пользователя по UID из access-токена.
func (s *AuthService) CheckAuth(ctx context.Context, userUID string) (*models.User, error) {
	const op = "auth.CheckAuth"

	user, err := s.users.GetUserByUID(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// ResendVerification выдает новый код подтверждения и отправляет его письмом.
func (s *AuthService) ResendVerification(ctx context.Context, userUID string) error {
	const op = "auth.ResendVerification"

	user, err := s.users.GetUserByUID(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if user.IsVerified {
		return nil
	}
	if err := s.sendVerificationCode(ctx, user); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *AuthService) sendVerificationCode(ctx context.Context, user *models.User) error {
	code, err := token.NewVerificationCode()
	if err != nil {
		return err
	}
	if err := s.users.SetVerificationToken(ctx, user.UID, code, time.Now().Add(verificationCodeTTL)); err != nil {
		return err
	}
	if err := s.mailer.SendVerificationEmail(user.Email, user.Name, code); err != nil {
		return fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}
	return nil
}

func (s *AuthService) issueTokenPair(ctx context.Context, userUID, role, ip string) (*TokenPair, error) {
	access, err := s.jwtMaker.GenerateToken(userUID, role)
	if err != nil {
		return nil, err
	}
	opaque, err := token.NewOpaque()
	if err != nil {
		return nil, err
	}
	refresh := models.RefreshToken{
		Token:       opaque,
		UserUID:     userUID,
		ExpiresAt:   time.Now().Add(s.refreshTTL),
		CreatedByIP: ip,
	}
	if err := s.tokens.CreateRefreshToken(ctx, refresh); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
