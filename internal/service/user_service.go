package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"libertax/internal/domain"
	"libertax/internal/email"
	"libertax/internal/repository"
)

const (
	confirmationTTL   = 10 * time.Minute
	minPasswordLength = 6
	uniqueViolation   = "23505"
)

// UserService coordina alta, login y confirmacion de email de usuarios.
type UserService struct {
	logger              *zap.Logger
	users               repository.UserRepository
	emailSender         email.Sender
	limiter             AttemptLimiter
	requireConfirmation bool
}

type UserServiceOptions struct {
	RequireConfirmation bool
	Limiter             AttemptLimiter
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, emailSender email.Sender, opts UserServiceOptions) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewMemoryAttemptLimiter(15*time.Minute, 5)
	}
	return &UserService{
		logger:              logger,
		users:               users,
		emailSender:         emailSender,
		limiter:             limiter,
		requireConfirmation: opts.RequireConfirmation,
	}
}

// RequiresConfirmation indica si el alta espera el codigo enviado por email.
func (s *UserService) RequiresConfirmation() bool {
	return s.requireConfirmation
}

// Register crea el usuario. Si se exige confirmacion, envia el codigo y devuelve el usuario sin confirmar.
func (s *UserService) Register(ctx context.Context, emailAddr, password string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return domain.User{}, ErrInvalidEmail
	}
	if len([]rune(password)) < minPasswordLength {
		return domain.User{}, ErrWeakPassword
	}

	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return domain.User{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}

	var code string
	if s.requireConfirmation {
		var codeHash string
		var expiresAt time.Time
		code, codeHash, expiresAt, err = generateConfirmationCode()
		if err != nil {
			return domain.User{}, err
		}
		user.ConfirmationCodeHash = codeHash
		user.ConfirmationExpiresAt = &expiresAt
	} else {
		user.EmailConfirmedAt = &now
	}

	if err := s.users.Create(ctx, user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}

	if s.requireConfirmation {
		if err := s.sendCode(ctx, emailAddr, code, *user.ConfirmationExpiresAt); err != nil {
			return domain.User{}, err
		}
	}
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, emailAddr, password string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if !s.limiter.Allow(emailAddr) {
		return domain.User{}, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	if s.requireConfirmation && !user.Confirmed() {
		return domain.User{}, ErrEmailNotConfirmed
	}
	s.limiter.Reset(emailAddr)
	return user, nil
}

// ConfirmEmail valida el codigo de 6 digitos y marca el email como confirmado.
func (s *UserService) ConfirmEmail(ctx context.Context, emailAddr, code string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	code = strings.TrimSpace(code)
	if emailAddr == "" {
		return domain.User{}, ErrInvalidEmail
	}
	if !isValidConfirmationCode(code) {
		return domain.User{}, ErrCodeInvalid
	}
	if !s.limiter.Allow(emailAddr) {
		return domain.User{}, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	if user.Confirmed() {
		s.limiter.Reset(emailAddr)
		return user, nil
	}
	if user.ConfirmationCodeHash == "" || user.ConfirmationExpiresAt == nil {
		return domain.User{}, ErrCodeNotRequested
	}
	if time.Now().UTC().After(*user.ConfirmationExpiresAt) {
		return domain.User{}, ErrCodeExpired
	}
	if !verifyConfirmationCode(code, user.ConfirmationCodeHash) {
		return domain.User{}, ErrCodeInvalid
	}

	confirmedAt := time.Now().UTC()
	if err := s.users.ConfirmEmail(ctx, user.ID, confirmedAt); err != nil {
		return domain.User{}, err
	}
	s.limiter.Reset(emailAddr)

	user.EmailConfirmedAt = &confirmedAt
	user.ConfirmationCodeHash = ""
	user.ConfirmationExpiresAt = nil
	return user, nil
}

// ResendConfirmation genera un codigo nuevo para un usuario aun sin confirmar.
func (s *UserService) ResendConfirmation(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if !s.limiter.Allow(emailAddr) {
		return ErrRateLimited
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.Confirmed() {
		return nil
	}
	code, hash, expiresAt, err := generateConfirmationCode()
	if err != nil {
		return err
	}
	if err := s.users.UpdateConfirmationCode(ctx, user.ID, hash, expiresAt); err != nil {
		return err
	}
	return s.sendCode(ctx, emailAddr, code, expiresAt)
}

func (s *UserService) sendCode(ctx context.Context, emailAddr, code string, expiresAt time.Time) error {
	if s.emailSender == nil {
		return ErrConfirmationEmail
	}
	if err := s.emailSender.SendConfirmationCode(ctx, emailAddr, code, expiresAt); err != nil {
		s.logger.Warn("send confirmation code failed", zap.Error(err), zap.String("email", emailAddr))
		return ErrConfirmationEmail
	}
	return nil
}

func generateConfirmationCode() (string, string, time.Time, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", "", time.Time{}, err
	}
	code := fmt.Sprintf("%06d", n.Int64())

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", "", time.Time{}, err
	}
	saltStr := base64.StdEncoding.EncodeToString(salt)
	sum := sha256.Sum256([]byte(saltStr + ":" + code))

	expiresAt := time.Now().UTC().Add(confirmationTTL)
	return code, saltStr + ":" + base64.StdEncoding.EncodeToString(sum[:]), expiresAt, nil
}

func verifyConfirmationCode(code, stored string) bool {
	saltStr, expected, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	sum := sha256.Sum256([]byte(saltStr + ":" + code))
	got := base64.StdEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

func isValidConfirmationCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isValidEmail(addr string) bool {
	if addr == "" || strings.ContainsAny(addr, " <>") {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return false
	}
	_, domainPart, _ := strings.Cut(addr, "@")
	return strings.Contains(domainPart, ".")
}
