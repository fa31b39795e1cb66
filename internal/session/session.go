package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"absencetracker/internal/auth"
)

// ErrAuthenticationRejected is returned when login or registration fails.
var ErrAuthenticationRejected = errors.New("session: authentication rejected")

// State is the lifecycle state of a session.
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Authority exchanges credentials for tokens.
type Authority interface {
	Login(ctx context.Context, creds auth.Credentials) (string, error)
	Register(ctx context.Context, profile auth.Profile) (string, error)
}

// Transport carries the credential on outgoing requests.
type Transport interface {
	SetBearer(token string)
	ClearBearer()
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Store owns the current authenticated identity and its persisted credential.
type Store struct {
	authority Authority
	transport Transport
	tokens    TokenStore
	now       func() time.Time
	log       *slog.Logger

	mu     sync.RWMutex
	token  string
	claims auth.Claims
	state  State
}

// New creates an anonymous session store.
func New(authority Authority, transport Transport, tokens TokenStore, opts ...Option) *Store {
	s := &Store{
		authority: authority,
		transport: transport,
		tokens:    tokens,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore adopts the persisted credential if there is one and it has not
// expired. Expired or undecodable credentials are removed from storage.
func (s *Store) Restore(ctx context.Context) error {
	token, err := s.tokens.Load(ctx)
	if errors.Is(err, ErrNoToken) {
		s.drop()
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	claims, err := auth.Decode(token)
	if err != nil {
		s.discard(ctx)
		return fmt.Errorf("restore session: %w", err)
	}
	if claims.Expired(s.now()) {
		s.log.Info("persisted credential expired", slog.String("user", claims.UserID), slog.Time("expiry", claims.Expiry()))
		s.discard(ctx)
		return nil
	}
	s.adopt(token, claims)
	return nil
}

// Login authenticates against the authority and adopts the returned token.
// On failure the previous session is left untouched.
func (s *Store) Login(ctx context.Context, creds auth.Credentials) (auth.Identity, error) {
	token, err := s.authority.Login(ctx, creds)
	if err != nil {
		s.log.Warn("login failed", slog.String("username", creds.Username), slog.String("error", err.Error()))
		return auth.Identity{}, fmt.Errorf("login: %w: %w", ErrAuthenticationRejected, err)
	}
	return s.accept(ctx, "login", token)
}

// Register creates an account and adopts the returned token.
func (s *Store) Register(ctx context.Context, profile auth.Profile) (auth.Identity, error) {
	token, err := s.authority.Register(ctx, profile)
	if err != nil {
		s.log.Warn("register failed", slog.String("username", profile.Username), slog.String("error", err.Error()))
		return auth.Identity{}, fmt.Errorf("register: %w: %w", ErrAuthenticationRejected, err)
	}
	return s.accept(ctx, "register", token)
}

// Logout forgets the credential everywhere. Calling it twice is harmless.
// The in-memory session ends even when the persisted token cannot be removed.
func (s *Store) Logout(ctx context.Context) error {
	s.drop()
	if err := s.tokens.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Current returns the authenticated identity.
func (s *Store) Current() (auth.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Authenticated {
		return auth.Identity{}, false
	}
	return s.claims.Identity(), true
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns the adopted credential, or "" when anonymous.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Expired reports whether the adopted credential has expired by now. The
// session does not log itself out; callers decide what to do.
func (s *Store) Expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == Authenticated && s.claims.Expired(s.now())
}

func (s *Store) accept(ctx context.Context, op, token string) (auth.Identity, error) {
	claims, err := auth.Decode(token)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%s: %w: %w", op, ErrAuthenticationRejected, err)
	}
	if claims.Expired(s.now()) {
		return auth.Identity{}, fmt.Errorf("%s: %w: credential expired at %s", op, ErrAuthenticationRejected, claims.Expiry().Format(time.RFC3339))
	}
	if err := s.tokens.Save(ctx, token); err != nil {
		return auth.Identity{}, fmt.Errorf("%s: persist credential: %w", op, err)
	}
	s.adopt(token, claims)
	s.log.Info("session started", slog.String("user", claims.UserID), slog.String("via", op))
	return claims.Identity(), nil
}

func (s *Store) adopt(token string, claims auth.Claims) {
	s.mu.Lock()
	s.token = token
	s.claims = claims
	s.state = Authenticated
	s.mu.Unlock()
	s.transport.SetBearer(token)
}

func (s *Store) drop() {
	s.mu.Lock()
	s.token = ""
	s.claims = auth.Claims{}
	s.state = Anonymous
	s.mu.Unlock()
	s.transport.ClearBearer()
}

func (s *Store) discard(ctx context.Context) {
	if err := s.tokens.Clear(ctx); err != nil {
		s.log.Warn("clear persisted credential failed", slog.String("error", err.Error()))
	}
	s.drop()
}
