// Package auth содержит логику регистрации, подтверждения email и входа пользователей.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/lib/clock"
	"github.com/rivve/boarding-house/internal/lib/jwt"
	"github.com/rivve/boarding-house/internal/lib/password"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/models"
)

// VerificationTTL срок действия ссылки подтверждения email.
const VerificationTTL = 24 * time.Hour

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	// CreateUser сохраняет нового пользователя и возвращает его UID.
	CreateUser(ctx context.Context, user models.User) (string, error)
	// GetUserByEmail возвращает пользователя по email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// GetUserByUID возвращает пользователя по UID.
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
	// VerifyEmail подтверждает email по действующему токену.
	VerifyEmail(ctx context.Context, token string, now time.Time) (*models.User, error)
	// UpdateUserProfile меняет переданные поля профиля.
	UpdateUserProfile(ctx context.Context, userUID string, upd models.ProfileUpdate) (*models.User, error)
}

// ErrNothingToUpdate в запросе нет ни одного изменяемого поля.
var ErrNothingToUpdate = apperr.New(apperr.KindValidation, "nothing to update")

// Notifier отправка писем пользователям.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// RegisterInput данные регистрации.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Role      models.Role
}

// AuthService отвечает за регистрацию, вход и профиль пользователя.
type AuthService struct {
	users    UserRepository
	jwtMaker jwt.Maker
	notifier Notifier
	clock    clock.Clock
	baseURL  string
	log      *slog.Logger
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, jwtMaker jwt.Maker, notifier Notifier, clk clock.Clock, baseURL string, log *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		jwtMaker: jwtMaker,
		notifier: notifier,
		clock:    clk,
		baseURL:  baseURL,
		log:      log,
	}
}

// Register создает пользователя с неподтвержденным email и отправляет письмо со ссылкой подтверждения.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (string, error) {
	const op = "auth.Register"
	log := s.log.With(slog.String("op", op))

	if !in.Role.Valid() {
		return "", fmt.Errorf("%s: %w", op, apperr.New(apperr.KindValidation, "unknown role"))
	}
	hashed, err := password.GetHash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return "", fmt.Errorf("%s: %w", op, apperr.New(apperr.KindValidation, err.Error()))
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	token := uuid.NewString()
	expires := s.clock.Now().Add(VerificationTTL)
	uid, err := s.users.CreateUser(ctx, models.User{
		Email:                    strings.ToLower(strings.TrimSpace(in.Email)),
		Username:                 in.Username,
		FirstName:                in.FirstName,
		LastName:                 in.LastName,
		Phone:                    in.Phone,
		PasswordHash:             hashed,
		Role:                     in.Role,
		VerificationToken:        token,
		VerificationTokenExpires: &expires,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	log.Info("user registered", slog.String("user_uid", uid))

	err = s.notifier.Notify(ctx, models.Notification{
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Subject:  "Verify your RiVVE email",
		Template: models.TemplateVerifyEmail,
		Data: map[string]any{
			"Username": in.Username,
			"URL":      s.baseURL + "/verify-email?token=" + token,
		},
	})
	if err != nil {
		log.Error("failed to send verification email", sl.Err(err))
	}
	return uid, nil
}

// VerifyEmail подтверждает email по токену из письма.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	const op = "auth.VerifyEmail"
	user, err := s.users.VerifyEmail(ctx, token, s.clock.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("email verified", slog.String("op", op), slog.String("user_uid", user.UUID))
	return nil
}

// Login проверяет пароль пользователя и выдает JWT.
func (s *AuthService) Login(ctx context.Context, email, rawPassword string) (string, *models.User, error) {
	const op = "auth.Login"
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			return "", nil, fmt.Errorf("%s: %w", op, apperr.ErrInvalidCredentials)
		}
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, apperr.ErrInvalidCredentials)
	}
	token, err := s.jwtMaker.GenerateToken(user.UUID, user.Username, string(user.Role))
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	return token, user, nil
}

// Me возвращает профиль пользователя.
func (s *AuthService) Me(ctx context.Context, userUID string) (*models.User, error) {
	const op = "auth.Me"
	user, err := s.users.GetUserByUID(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// UpdateProfile меняет имя, фамилию и телефон пользователя.
func (s *AuthService) UpdateProfile(ctx context.Context, userUID string, upd models.ProfileUpdate) (*models.User, error) {
	const op = "auth.UpdateProfile"
	if upd.Empty() {
		return nil, fmt.Errorf("%s: %w", op, ErrNothingToUpdate)
	}
	for _, field := range []*string{upd.FirstName, upd.LastName, upd.Phone} {
		if field != nil {
			*field = strings.TrimSpace(*field)
		}
	}

	user, err := s.users.UpdateUserProfile(ctx, userUID, upd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("profile updated", slog.String("op", op), slog.String("user_uid", userUID))
	return user, nil
}
