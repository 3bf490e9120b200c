package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/hmpv-lab-platform/internal/latency"
	"github.com/wolfman30/hmpv-lab-platform/internal/observability/metrics"
	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

var authTracer = otel.Tracer("hmpv.internal.auth")

var (
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrNoSession          = errors.New("auth: no active session")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrInvalidInput       = errors.New("auth: invalid input")
)

// State is the lifecycle position of a client session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Provider creates sessions and validates tokens.
type Provider struct {
	creds   Credentials
	store   *SessionStore
	issuer  *Issuer
	delays  latency.Profile
	logger  *logging.Logger
	metrics *metrics.LabMetrics
	newID   func() string
}

type ProviderOption func(*Provider)

func WithLatency(p latency.Profile) ProviderOption {
	return func(pr *Provider) { pr.delays = p }
}

func WithLogger(logger *logging.Logger) ProviderOption {
	return func(pr *Provider) {
		if logger != nil {
			pr.logger = logger
		}
	}
}

func WithMetrics(m *metrics.LabMetrics) ProviderOption {
	return func(pr *Provider) { pr.metrics = m }
}

func NewProvider(creds Credentials, store *SessionStore, issuer *Issuer, opts ...ProviderOption) *Provider {
	if store == nil {
		panic("auth: session store required")
	}
	if issuer == nil {
		panic("auth: token issuer required")
	}
	p := &Provider{
		creds:  creds,
		store:  store,
		issuer: issuer,
		logger: logging.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewSession starts an unauthenticated session with a fresh id.
func (p *Provider) NewSession() *Session {
	return p.Session(p.newID())
}

// Session returns the handle for an existing client session id.
func (p *Provider) Session(id string) *Session {
	return &Session{provider: p, id: id}
}

// Authenticate verifies a bearer token and checks the session has not been
// logged out since it was issued.
func (p *Provider) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := p.issuer.Verify(token)
	if err != nil {
		return nil, err
	}
	stored, _, err := p.store.Load(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if stored != token {
		return nil, fmt.Errorf("%w: session token rotated", ErrInvalidToken)
	}
	return claims, nil
}

// Session is one client's view of authentication state.
type Session struct {
	provider *Provider
	id       string

	mu    sync.Mutex
	state State
	user  *User
	token string
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the signed-in user, or nil.
func (s *Session) Current() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) IsAdmin() bool {
	u := s.Current()
	return u != nil && u.IsAdmin()
}

func (s *Session) begin() {
	s.mu.Lock()
	s.state = StateAuthenticating
	s.mu.Unlock()
}

func (s *Session) reset() {
	s.mu.Lock()
	s.state = StateUnauthenticated
	s.user = nil
	s.token = ""
	s.mu.Unlock()
}

func (s *Session) establish(ctx context.Context, user User) error {
	token, err := s.provider.issuer.Issue(user, s.id)
	if err != nil {
		return err
	}
	if err := s.provider.store.Save(ctx, s.id, token, user); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = StateAuthenticated
	s.user = &user
	s.token = token
	s.mu.Unlock()
	return nil
}

// Login checks the credential set and persists the session on success.
func (s *Session) Login(ctx context.Context, email, password string) (_ *User, err error) {
	ctx, span := authTracer.Start(ctx, "auth.login")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	s.begin()
	if err := s.provider.delays.Wait(ctx, latency.OpLogin); err != nil {
		s.reset()
		return nil, err
	}
	user, ok := s.provider.creds.Match(email, password)
	if !ok {
		s.reset()
		s.provider.metrics.ObserveLogin("", false)
		s.provider.logger.Warn("login rejected", "session_id", s.id)
		return nil, ErrInvalidCredentials
	}
	span.SetAttributes(attribute.String("hmpv.role", string(user.Role)))
	if err := s.establish(ctx, user); err != nil {
		s.reset()
		return nil, err
	}
	s.provider.metrics.ObserveLogin(string(user.Role), true)
	s.provider.logger.Info("login succeeded", "session_id", s.id, "user_id", user.ID, "role", user.Role)
	return &user, nil
}

// Register signs up a new patient. Emails are not checked for uniqueness.
func (s *Session) Register(ctx context.Context, name, email, password string) (_ *User, err error) {
	ctx, span := authTracer.Start(ctx, "auth.register")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidInput)
	}
	s.begin()
	if err := s.provider.delays.Wait(ctx, latency.OpRegister); err != nil {
		s.reset()
		return nil, err
	}
	user := User{
		ID:    "user-" + s.provider.newID(),
		Name:  name,
		Email: email,
		Role:  RolePatient,
	}
	if err := s.establish(ctx, user); err != nil {
		s.reset()
		return nil, err
	}
	s.provider.logger.Info("patient registered", "session_id", s.id, "user_id", user.ID)
	return &user, nil
}

// Logout drops the persisted session.
func (s *Session) Logout(ctx context.Context) error {
	err := s.provider.store.Clear(ctx, s.id)
	s.reset()
	return err
}

// Restore reloads a persisted session. The stored token must still verify.
func (s *Session) Restore(ctx context.Context) (_ *User, err error) {
	ctx, span := authTracer.Start(ctx, "auth.restore")
	defer span.End()
	defer func() {
		if err != nil && !errors.Is(err, ErrNoSession) {
			span.RecordError(err)
		}
	}()

	s.begin()
	token, user, err := s.provider.store.Load(ctx, s.id)
	if err != nil {
		s.reset()
		return nil, err
	}
	if err := s.provider.delays.Wait(ctx, latency.OpRestore); err != nil {
		s.reset()
		return nil, err
	}
	claims, err := s.provider.issuer.Verify(token)
	if err != nil || claims.SessionID != s.id {
		_ = s.provider.store.Clear(ctx, s.id)
		s.reset()
		return nil, ErrNoSession
	}
	if user == nil {
		u := claims.User()
		user = &u
	}
	s.mu.Lock()
	s.state = StateAuthenticated
	s.user = user
	s.token = token
	s.mu.Unlock()
	u := *user
	return &u, nil
}
