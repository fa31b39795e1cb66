package authority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"absencetracker/internal/attendance"
	"absencetracker/internal/auth"
	"absencetracker/internal/queue"
)

// Store is the persistence the service needs; *Repository implements it.
type Store interface {
	InsertUser(ctx context.Context, u User) error
	UserByUsername(ctx context.Context, username string) (User, error)
	ListAbsents(ctx context.Context) ([]attendance.Record, error)
	InsertAbsent(ctx context.Context, rec attendance.Record) error
	UpdateAbsent(ctx context.Context, owner string, rec attendance.Record) error
	DeleteAbsent(ctx context.Context, owner, remoteID string) error
	GetAbsent(ctx context.Context, remoteID string) (attendance.Record, error)
}

var _ Store = (*Repository)(nil)

// Tokens configures how access tokens are minted.
type Tokens struct {
	Issuer     string
	SigningKey string
	TTL        time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithQueue publishes a change event for every accepted write.
func WithQueue(q queue.Queue) Option {
	return func(s *Service) { s.queue = q }
}

// WithRegisterer registers the write counter on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Service) { reg.MustRegister(s.writes) }
}

// WithLogger sets the logger for registrations and failed event publishes.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// WithClock overrides time.Now when stamping change events.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements the account and absent operations behind the REST routes.
type Service struct {
	repo     Store
	tokens   Tokens
	queue    queue.Queue
	log      *slog.Logger
	hashCost int
	now      func() time.Time
	writes   *prometheus.CounterVec
}

// NewService wires a service over repo.
func NewService(repo Store, tokens Tokens, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		tokens:   tokens,
		log:      slog.Default(),
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "absencetracker_authority_writes_total",
			Help: "Absent writes accepted by the authority, by operation.",
		}, []string{"op"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account and returns a token for it.
func (s *Service) Register(ctx context.Context, p auth.Profile) (string, error) {
	p.Username = strings.TrimSpace(p.Username)
	if p.Username == "" || p.Password == "" {
		return "", fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	u := User{ID: newID(), Username: p.Username, Name: p.Name, Email: p.Email, PasswordHash: string(hash)}
	if u.Name == "" {
		u.Name = u.Username
	}
	if err := s.repo.InsertUser(ctx, u); err != nil {
		return "", fmt.Errorf("register %s: %w", p.Username, err)
	}
	s.log.Info("user registered", slog.String("user", u.ID), slog.String("username", u.Username))
	return s.issue(u)
}

// Login checks credentials and returns a token.
func (s *Service) Login(ctx context.Context, creds auth.Credentials) (string, error) {
	u, err := s.repo.UserByUsername(ctx, strings.TrimSpace(creds.Username))
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(creds.Password)); err != nil {
		return "", fmt.Errorf("login: %w", ErrInvalidCredentials)
	}
	return s.issue(u)
}

func (s *Service) issue(u User) (string, error) {
	token, _, err := auth.Issue(auth.Identity{ID: u.ID, Username: u.Username, Name: u.Name}, s.tokens.Issuer, s.tokens.SigningKey, s.tokens.TTL)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// List returns every absent.
func (s *Service) List(ctx context.Context) ([]attendance.Record, error) {
	return s.repo.ListAbsents(ctx)
}

// Create stores rec for the acting user and assigns its remote id.
func (s *Service) Create(ctx context.Context, actor auth.Claims, rec attendance.Record) (attendance.Record, error) {
	if rec.User.ID == "" {
		rec.User.ID = actor.UserID
	}
	if rec.User.ID != actor.UserID {
		return attendance.Record{}, ErrForbidden
	}
	if rec.Name == "" {
		rec.Name = actor.Name
	}
	if err := rec.Validate(); err != nil {
		return attendance.Record{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	rec.RemoteID = newID()
	if err := s.repo.InsertAbsent(ctx, rec); err != nil {
		return attendance.Record{}, fmt.Errorf("create absent: %w", err)
	}
	s.changed(ctx, queue.RecordCreated, actor, rec)
	return rec, nil
}

// Update replaces the editable fields of the absent stored under remoteID.
func (s *Service) Update(ctx context.Context, actor auth.Claims, remoteID string, rec attendance.Record) (attendance.Record, error) {
	rec.RemoteID = remoteID
	rec.User.ID = actor.UserID
	if rec.ID == "" {
		rec.ID = remoteID
	}
	if err := rec.Validate(); err != nil {
		return attendance.Record{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.repo.UpdateAbsent(ctx, actor.UserID, rec); err != nil {
		return attendance.Record{}, fmt.Errorf("update absent: %w", err)
	}
	updated, err := s.repo.GetAbsent(ctx, remoteID)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("update absent: %w", err)
	}
	s.changed(ctx, queue.RecordUpdated, actor, updated)
	return updated, nil
}

// Delete removes the absent stored under remoteID.
func (s *Service) Delete(ctx context.Context, actor auth.Claims, remoteID string) error {
	if err := s.repo.DeleteAbsent(ctx, actor.UserID, remoteID); err != nil {
		return fmt.Errorf("delete absent: %w", err)
	}
	s.changed(ctx, queue.RecordDeleted, actor, attendance.Record{RemoteID: remoteID, User: attendance.UserRef{ID: actor.UserID}})
	return nil
}

func (s *Service) changed(ctx context.Context, op string, actor auth.Claims, rec attendance.Record) {
	s.writes.WithLabelValues(op).Inc()
	if s.queue == nil {
		return
	}
	err := queue.PublishChange(ctx, s.queue, op, queue.Change{
		RemoteID: rec.RemoteID,
		LocalID:  rec.ID,
		UserID:   rec.User.ID,
		Actor:    actor.UserID,
		At:       s.now().UTC(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("queue publish failed", slog.String("op", op), slog.String("id", rec.RemoteID), slog.String("error", err.Error()))
	}
}
