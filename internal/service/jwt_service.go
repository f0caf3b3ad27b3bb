package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"libertax/internal/domain"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// JWTService emite y valida el par access/refresh de una sesion.
// Ambos tokens llevan el id de sesion; cerrar la sesion invalida los dos.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	sessions   SessionStore
}

type Claims struct {
	UserID         string `json:"uid"`
	Email          string `json:"email"`
	EmailConfirmed bool   `json:"email_confirmed"`
	TokenType      string `json:"typ"`
	SessionID      string `json:"sid"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "libertax",
		sessions:   NewMemorySessionStore(),
	}
}

func NewJWTServiceWithStore(secret string, accessTTL, refreshTTL time.Duration, store SessionStore) *JWTService {
	svc := NewJWTService(secret, accessTTL, refreshTTL)
	if store != nil {
		svc.sessions = store
	}
	return svc
}

// IssueSession abre una sesion nueva y firma su primer par de tokens.
func (s *JWTService) IssueSession(ctx context.Context, user domain.User) (domain.Session, error) {
	if len(s.secret) == 0 {
		return domain.Session{}, ErrJWTInvalid
	}
	sid := uuid.NewString()
	jti := uuid.NewString()
	if err := s.sessions.Open(ctx, SessionRecord{ID: sid, UserID: user.ID, RefreshJTI: jti}, s.refreshTTL); err != nil {
		return domain.Session{}, err
	}
	return s.signPair(user, sid, jti)
}

// RotateSession canjea un refresh token por un par nuevo de la misma sesion.
// Cada refresh se usa una sola vez; reusar uno viejo cierra la sesion.
func (s *JWTService) RotateSession(ctx context.Context, refreshToken string) (domain.Session, error) {
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return domain.Session{}, err
	}
	next := uuid.NewString()
	if err := s.sessions.Rotate(ctx, claims.SessionID, claims.ID, next, s.refreshTTL); err != nil {
		return domain.Session{}, ErrJWTInvalid
	}

	user := domain.User{ID: claims.UserID, Email: claims.Email}
	if claims.EmailConfirmed {
		at := claims.IssuedAt.Time
		user.EmailConfirmedAt = &at
	}
	return s.signPair(user, claims.SessionID, next)
}

// EndSession cierra la sesion del access token y, si viene, la del refresh token.
// Devuelve cuantas sesiones le quedan abiertas al usuario.
func (s *JWTService) EndSession(ctx context.Context, access Claims, refreshToken string) (int, error) {
	ids := []string{access.SessionID}
	if strings.TrimSpace(refreshToken) != "" {
		refresh, err := s.parseRefresh(refreshToken)
		if err == nil && refresh.UserID == access.UserID && refresh.SessionID != access.SessionID {
			ids = append(ids, refresh.SessionID)
		}
	}
	for _, id := range ids {
		if err := s.sessions.Close(ctx, access.UserID, id); err != nil {
			return 0, err
		}
	}
	return s.sessions.Count(ctx, access.UserID)
}

// ParseAccessToken valida firma, vencimiento y que la sesion siga abierta.
func (s *JWTService) ParseAccessToken(ctx context.Context, accessToken string) (Claims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(accessToken) == "" {
		return Claims{}, ErrJWTInvalid
	}
	claims, err := s.parseToken(accessToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenTypeAccess || !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	active, err := s.sessions.Active(ctx, claims.SessionID)
	if err != nil || !active {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) parseRefresh(refreshToken string) (Claims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(refreshToken) == "" {
		return Claims{}, ErrJWTInvalid
	}
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenTypeRefresh || claims.ID == "" || !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) signPair(user domain.User, sid, jti string) (domain.Session, error) {
	now := time.Now().UTC()
	access, err := s.sign(user, sid, "", now, s.accessTTL, tokenTypeAccess)
	if err != nil {
		return domain.Session{}, err
	}
	refresh, err := s.sign(user, sid, jti, now, s.refreshTTL, tokenTypeRefresh)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		ID:           sid,
		UserID:       user.ID,
		Email:        user.Email,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		ExpiresAt:    now.Add(s.accessTTL),
	}, nil
}

func (s *JWTService) sign(user domain.User, sid, jti string, now time.Time, ttl time.Duration, tokenType string) (string, error) {
	claims := Claims{
		UserID:         user.ID,
		Email:          user.Email,
		EmailConfirmed: user.Confirmed(),
		TokenType:      tokenType,
		SessionID:      sid,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *JWTService) parseToken(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" || claims.Subject != claims.UserID {
		return false
	}
	if strings.TrimSpace(claims.SessionID) == "" {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
