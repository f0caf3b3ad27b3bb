package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"libertax/internal/config"
	"libertax/internal/domain"
)

// SignUpPendingMessage se muestra cuando el alta espera la confirmacion por email.
const SignUpPendingMessage = "¡Registro iniciado! Por favor verifica tu email si es necesario."

type GateState string

const (
	GateConfigError     GateState = "config_error"
	GateUnauthenticated GateState = "unauthenticated"
	GateAuthenticated   GateState = "authenticated"
)

// GateOptions reune los textos configurables de la puerta de sesion.
type GateOptions struct {
	LoadingText      string `json:"loading_text"`
	ConfigErrorTitle string `json:"config_error_title"`
}

type GateUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// GateView es la pantalla que corresponde mostrar. Exactamente un estado a la vez.
type GateView struct {
	State    GateState         `json:"state"`
	Options  GateOptions       `json:"options"`
	Missing  []string          `json:"missing,omitempty"`
	Hint     string            `json:"hint,omitempty"`
	User     *GateUser         `json:"user,omitempty"`
	Composer *ComposerState    `json:"composer,omitempty"`
	Feed     []domain.FeedItem `json:"feed,omitempty"`
}

// AuthResult es la salida del panel de acceso.
type AuthResult struct {
	Session           *domain.Session   `json:"session,omitempty"`
	NeedsConfirmation bool              `json:"needs_confirmation"`
	Message           string            `json:"message,omitempty"`
	Feed              []domain.FeedItem `json:"feed,omitempty"`
}

// SessionService implementa la puerta de sesion y el panel de acceso.
type SessionService struct {
	logger     *zap.Logger
	users      *UserService
	jwt        *JWTService
	workspaces *WorkspaceRegistry
	hub        *SessionHub
	configErr  error
	opts       GateOptions
}

func NewSessionService(
	logger *zap.Logger,
	users *UserService,
	jwt *JWTService,
	workspaces *WorkspaceRegistry,
	hub *SessionHub,
	configErr error,
	opts GateOptions,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewSessionHub()
	}
	return &SessionService{
		logger:     logger,
		users:      users,
		jwt:        jwt,
		workspaces: workspaces,
		hub:        hub,
		configErr:  configErr,
		opts:       opts,
	}
}

func (s *SessionService) Hub() *SessionHub { return s.hub }

// ConfigError devuelve el error de configuracion detectado al arrancar, si lo hay.
func (s *SessionService) ConfigError() error { return s.configErr }

// Gate resuelve el estado de la sesion. La configuracion incompleta tiene prioridad;
// un token ausente, vencido o invalido cae en silencio a unauthenticated.
func (s *SessionService) Gate(ctx context.Context, accessToken string) GateView {
	view := GateView{Options: s.opts}

	if s.configErr != nil {
		view.State = GateConfigError
		var cfgErr *config.ConfigurationError
		if errors.As(s.configErr, &cfgErr) {
			view.Missing = cfgErr.Missing
			view.Hint = cfgErr.Hint()
		} else {
			view.Hint = s.configErr.Error()
		}
		return view
	}

	claims, err := s.jwt.ParseAccessToken(ctx, accessToken)
	if err != nil {
		view.State = GateUnauthenticated
		return view
	}

	ws := s.workspaces.Get(ctx, claims.UserID)
	composer := ws.Composer()
	view.State = GateAuthenticated
	view.User = &GateUser{ID: claims.UserID, Email: claims.Email}
	view.Composer = &composer
	view.Feed = ws.Feed()
	return view
}

func (s *SessionService) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	if err := s.ready(); err != nil {
		return AuthResult{}, err
	}
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return AuthResult{}, err
	}
	return s.startSession(ctx, user)
}

// SignUp crea la cuenta. Sin confirmacion obligatoria la sesion se materializa al instante;
// con confirmacion se devuelve el mensaje instructivo y ninguna sesion.
func (s *SessionService) SignUp(ctx context.Context, email, password string) (AuthResult, error) {
	if err := s.ready(); err != nil {
		return AuthResult{}, err
	}
	user, err := s.users.Register(ctx, email, password)
	if err != nil {
		return AuthResult{}, err
	}
	if !user.Confirmed() {
		return AuthResult{NeedsConfirmation: true, Message: SignUpPendingMessage}, nil
	}
	return s.startSession(ctx, user)
}

func (s *SessionService) Confirm(ctx context.Context, email, code string) (AuthResult, error) {
	if err := s.ready(); err != nil {
		return AuthResult{}, err
	}
	user, err := s.users.ConfirmEmail(ctx, email, code)
	if err != nil {
		return AuthResult{}, err
	}
	return s.startSession(ctx, user)
}

func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (domain.Session, error) {
	if err := s.ready(); err != nil {
		return domain.Session{}, err
	}
	sess, err := s.jwt.RotateSession(ctx, refreshToken)
	if err != nil {
		return domain.Session{}, err
	}
	s.hub.Publish(sess.UserID, domain.SessionTokenRefreshed)
	return sess, nil
}

// SignOut cierra la sesion del token. El workspace se descarta cuando al usuario
// no le quedan sesiones abiertas en otros dispositivos.
func (s *SessionService) SignOut(ctx context.Context, claims Claims, refreshToken string) error {
	remaining, err := s.jwt.EndSession(ctx, claims, refreshToken)
	if err != nil {
		s.logger.Warn("end session failed", zap.String("user_id", claims.UserID), zap.Error(err))
	}
	if err != nil || remaining == 0 {
		s.workspaces.Close(claims.UserID)
	}
	s.hub.Publish(claims.UserID, domain.SessionSignedOut)
	return nil
}

func (s *SessionService) startSession(ctx context.Context, user domain.User) (AuthResult, error) {
	sess, err := s.jwt.IssueSession(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}
	ws := s.workspaces.Open(ctx, user.ID)
	s.hub.Publish(user.ID, domain.SessionSignedIn)
	return AuthResult{Session: &sess, Feed: ws.Feed()}, nil
}

func (s *SessionService) ready() error {
	return s.configErr
}
