package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"libertax/internal/domain"
	"libertax/internal/repository"
)

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
	createErr    error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user.ID
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	id, ok := m.usersByEmail[email]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *mockUserRepo) UpdateConfirmationCode(_ context.Context, id, codeHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.ConfirmationCodeHash = codeHash
	user.ConfirmationExpiresAt = &expiresAt
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) ConfirmEmail(_ context.Context, id string, confirmedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.EmailConfirmedAt = &confirmedAt
	user.ConfirmationCodeHash = ""
	user.ConfirmationExpiresAt = nil
	m.usersByID[id] = user
	return nil
}

type mockEmailSender struct {
	lastTo      string
	lastCode    string
	lastExpires time.Time
	sent        int
	err         error
}

func (m *mockEmailSender) SendConfirmationCode(_ context.Context, toEmail string, code string, expiresAt time.Time) error {
	m.lastTo = toEmail
	m.lastCode = code
	m.lastExpires = expiresAt
	m.sent++
	return m.err
}

type mockLimiter struct {
	allow  bool
	resets int
}

func (m *mockLimiter) Allow(_ string) bool { return m.allow }

func (m *mockLimiter) Reset(_ string) { m.resets++ }

func TestUserServiceRegister_DirectConfirmation(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	svc := NewUserService(zap.NewNop(), repo, sender, UserServiceOptions{})

	user, err := svc.Register(context.Background(), " User@Example.com ", "secreto1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "user@example.com" || !user.Confirmed() {
		t.Fatalf("expected confirmed normalized user, got %+v", user)
	}
	if user.PasswordHash == "" || user.PasswordHash == "secreto1" {
		t.Fatalf("expected bcrypt hash")
	}
	if sender.sent != 0 {
		t.Fatalf("no email expected without confirmation")
	}

	if _, err := svc.Authenticate(context.Background(), "user@example.com", "secreto1"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "user@example.com", "otra-cosa"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody@example.com", "secreto1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestUserServiceRegister_Validation(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(zap.NewNop(), repo, &mockEmailSender{}, UserServiceOptions{})

	cases := []struct {
		email, password string
		want            error
	}{
		{"no-es-un-email", "secreto1", ErrInvalidEmail},
		{"a@b", "secreto1", ErrInvalidEmail},
		{"Juan <juan@example.com>", "secreto1", ErrInvalidEmail},
		{"juan@example.com", "12345", ErrWeakPassword},
	}
	for _, tc := range cases {
		if _, err := svc.Register(context.Background(), tc.email, tc.password); !errors.Is(err, tc.want) {
			t.Fatalf("%q/%q: expected %v, got %v", tc.email, tc.password, tc.want, err)
		}
	}
	if len(repo.usersByID) != 0 {
		t.Fatalf("invalid input must not create users")
	}
}

func TestUserServiceRegister_Duplicate(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(zap.NewNop(), repo, &mockEmailSender{}, UserServiceOptions{})

	if _, err := svc.Register(context.Background(), "user@example.com", "secreto1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(context.Background(), "USER@example.com", "secreto2"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	// carrera entre dos altas: la restriccion unica de la base decide
	repo = newMockUserRepo()
	repo.createErr = &pgconn.PgError{Code: "23505"}
	svc = NewUserService(zap.NewNop(), repo, &mockEmailSender{}, UserServiceOptions{})
	if _, err := svc.Register(context.Background(), "user@example.com", "secreto1"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken on unique violation, got %v", err)
	}
}

func TestUserServiceConfirmationFlow(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	svc := NewUserService(zap.NewNop(), repo, sender, UserServiceOptions{RequireConfirmation: true})

	start := time.Now().UTC()
	user, err := svc.Register(context.Background(), "user@example.com", "secreto1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Confirmed() {
		t.Fatalf("expected unconfirmed user")
	}
	if sender.lastTo != "user@example.com" || len(sender.lastCode) != 6 {
		t.Fatalf("expected code e-mailed, got %q to %q", sender.lastCode, sender.lastTo)
	}
	if sender.lastExpires.Before(start.Add(9*time.Minute)) || sender.lastExpires.After(start.Add(11*time.Minute)) {
		t.Fatalf("expected expiry around 10 minutes, got %v", sender.lastExpires)
	}

	if _, err := svc.Authenticate(context.Background(), "user@example.com", "secreto1"); !errors.Is(err, ErrEmailNotConfirmed) {
		t.Fatalf("expected ErrEmailNotConfirmed, got %v", err)
	}

	wrong := "000000"
	if sender.lastCode == wrong {
		wrong = "111111"
	}
	if _, err := svc.ConfirmEmail(context.Background(), "user@example.com", wrong); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}

	confirmed, err := svc.ConfirmEmail(context.Background(), "user@example.com", sender.lastCode)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !confirmed.Confirmed() {
		t.Fatalf("expected confirmed user")
	}
	stored, _ := repo.GetByEmail(context.Background(), "user@example.com")
	if stored.ConfirmationCodeHash != "" || !stored.Confirmed() {
		t.Fatalf("expected code cleared after confirmation, got %+v", stored)
	}
	if _, err := svc.Authenticate(context.Background(), "user@example.com", "secreto1"); err != nil {
		t.Fatalf("authenticate after confirm: %v", err)
	}
}

func TestUserServiceConfirm_Expired(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(zap.NewNop(), repo, &mockEmailSender{}, UserServiceOptions{RequireConfirmation: true})

	code, hash, _, err := generateConfirmationCode()
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	expiredAt := time.Now().UTC().Add(-time.Minute)
	_ = repo.Create(context.Background(), domain.User{
		ID:                    "u1",
		Email:                 "user@example.com",
		ConfirmationCodeHash:  hash,
		ConfirmationExpiresAt: &expiredAt,
		CreatedAt:             time.Now().UTC(),
	})

	if _, err := svc.ConfirmEmail(context.Background(), "user@example.com", code); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestUserServiceRegister_ConfirmationEmailFailure(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{err: errors.New("smtp down")}
	svc := NewUserService(zap.NewNop(), repo, sender, UserServiceOptions{RequireConfirmation: true})

	_, err := svc.Register(context.Background(), "user@example.com", "secreto1")
	if !errors.Is(err, ErrConfirmationEmail) {
		t.Fatalf("expected ErrConfirmationEmail, got %v", err)
	}

	sender.err = nil
	if err := svc.ResendConfirmation(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if _, err := svc.ConfirmEmail(context.Background(), "user@example.com", sender.lastCode); err != nil {
		t.Fatalf("confirm after resend: %v", err)
	}
}

func TestUserServiceAuthenticate_RateLimited(t *testing.T) {
	repo := newMockUserRepo()
	limiter := &mockLimiter{allow: false}
	svc := NewUserService(zap.NewNop(), repo, &mockEmailSender{}, UserServiceOptions{Limiter: limiter})

	if _, err := svc.Authenticate(context.Background(), "user@example.com", "secreto1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if _, err := svc.ConfirmEmail(context.Background(), "user@example.com", "123456"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on confirm, got %v", err)
	}
}

func TestUserServiceAuthenticate_ResetsLimiterOnSuccess(t *testing.T) {
	repo := newMockUserRepo()
	limiter := &mockLimiter{allow: true}
	svc := NewUserService(zap.NewNop(), repo, &mockEmailSender{}, UserServiceOptions{Limiter: limiter})

	if _, err := svc.Register(context.Background(), "user@example.com", "secreto1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "user@example.com", "secreto1"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if limiter.resets != 1 {
		t.Fatalf("expected limiter reset, got %d", limiter.resets)
	}
}
